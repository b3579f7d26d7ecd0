// ABOUTME: Terminal presenter printing chat messages and streamed replies
// ABOUTME: Streams raw deltas as they arrive and renders finished messages with markup styling

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/render"
	"github.com/2389/chatline/internal/session"
)

var (
	userLabel      = color.New(color.FgGreen, color.Bold)
	assistantLabel = color.New(color.FgCyan, color.Bold)
	timeStyle      = color.New(color.FgHiBlack)
	noticeStyle    = color.New(color.FgHiBlack, color.Italic)
)

// terminalPresenter implements session.Presenter for a line-oriented terminal.
type terminalPresenter struct {
	mu  sync.Mutex
	out io.Writer

	// streaming is the reply currently being printed, printed what of it is
	// already on screen.
	streaming session.MessageRef
	printed   string

	conversations []api.Summary
	current       string
}

func newTerminalPresenter(out io.Writer) *terminalPresenter {
	return &terminalPresenter{out: out}
}

func (p *terminalPresenter) MessageAppended(msg session.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endStreamLocked()

	label := userLabel.Sprint("You")
	if msg.Role == api.RoleAssistant {
		label = assistantLabel.Sprint("Assistant")
	}
	fmt.Fprintf(p.out, "%s %s: ", timeStyle.Sprint(msg.Timestamp.Format("15:04")), label)

	if msg.Role == api.RoleAssistant && msg.Content == "" {
		p.streaming = msg.Ref
		p.printed = ""
		return
	}
	fmt.Fprintln(p.out, render.Terminal(msg.Content))
}

func (p *terminalPresenter) MessageContentUpdated(ref session.MessageRef, full string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ref != p.streaming {
		return
	}
	if strings.HasPrefix(full, p.printed) {
		fmt.Fprint(p.out, full[len(p.printed):])
	} else {
		fmt.Fprint(p.out, "\n"+full)
	}
	p.printed = full
}

func (p *terminalPresenter) ConversationsChanged(list []api.Summary, currentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conversations = list
	p.current = currentID
}

func (p *terminalPresenter) ChatCleared() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endStreamLocked()
	fmt.Fprintln(p.out, noticeStyle.Sprint("── new conversation ──"))
}

func (p *terminalPresenter) SendingChanged(sending bool) {
	if sending {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endStreamLocked()
}

// endStreamLocked finishes the line of a reply that was being streamed.
func (p *terminalPresenter) endStreamLocked() {
	if p.streaming == "" {
		return
	}
	fmt.Fprintln(p.out)
	p.streaming = ""
	p.printed = ""
}

// snapshot returns the last conversation list and current id.
func (p *terminalPresenter) snapshot() ([]api.Summary, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.conversations), p.current
}

func (p *terminalPresenter) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, noticeStyle.Sprintf(format, args...))
}

// printConversations writes a numbered conversation list, marking current.
func printConversations(w io.Writer, list []api.Summary, current string) {
	if len(list) == 0 {
		fmt.Fprintln(w, noticeStyle.Sprint("No conversations yet"))
		return
	}
	for i, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s %2d. %s %s\n", marker, i+1, title, timeStyle.Sprint(s.ID))
	}
}
