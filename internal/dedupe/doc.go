// Package dedupe tracks recently seen idempotency keys so a repeated request
// inside a time window can be recognized and dropped.
package dedupe
