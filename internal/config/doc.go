// Package config handles configuration loading for chatline.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Anything the file leaves out keeps its Default() value.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATLINE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/chatline/config.yaml
//  3. ~/.config/chatline/config.yaml
//
// A file named *.toml is decoded as TOML; any other extension is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  url: "${CHATLINE_BACKEND_URL}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	backend:
//	  request_timeout: "30s"
//	responder:
//	  chunk_delay: "20ms"
//	dedupe:
//	  ttl: "5m"
//
// # Configuration Sections
//
//	backend:    url, request_timeout        (client)
//	server:     http_addr                   (reference server)
//	database:   path                        (reference server)
//	responder:  chunk_delay                 (reference server)
//	dedupe:     ttl, max_size               (reference server)
//	logging:    level, format               (both)
package config
