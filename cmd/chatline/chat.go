// ABOUTME: Interactive chat loop driving the session controller from stdin
// ABOUTME: Plain lines are sent as messages, slash commands manage conversations

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/chatline/internal/session"
)

var promptStyle = color.New(color.FgGreen)

const helpText = `Commands:
  /new          Start a new conversation
  /list         List conversations
  /load ID|N    Open a conversation by id or list number
  /delete ID|N  Delete a conversation
  /clear        Delete every conversation
  /help         Show this help
  /quit         Exit
Anything else is sent as a message. Ctrl-C interrupts a reply.`

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}
}

func runChat(cmd *cobra.Command, opts *options) error {
	a, err := opts.setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	pres := newTerminalPresenter(out)
	ctrl := session.NewController(a.client, pres,
		session.WithLogger(a.logger),
		session.WithRefreshTimeout(a.cfg.Backend.RequestTimeout),
	)
	defer ctrl.Close()

	color.New(color.FgCyan, color.Bold).Fprintf(out, "chatline %s", version)
	fmt.Fprintf(out, " connected to %s. Type /help for commands.\n", a.client.BaseURL())

	if _, err := ctrl.Refresh(ctx); err != nil {
		pres.notice("Could not load conversations: %v", err)
	}

	return newREPL(ctrl, pres, cmd.InOrStdin(), out).run(ctx)
}

type repl struct {
	ctrl *session.Controller
	pres *terminalPresenter
	in   *bufio.Scanner
	out  io.Writer
}

func newREPL(ctrl *session.Controller, pres *terminalPresenter, in io.Reader, out io.Writer) *repl {
	return &repl{
		ctrl: ctrl,
		pres: pres,
		in:   bufio.NewScanner(in),
		out:  out,
	}
}

func (r *repl) run(ctx context.Context) error {
	for {
		promptStyle.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}

		quit, err := r.handle(ctx, r.in.Text())
		if err != nil {
			r.pres.notice("Error: %v", err)
		}
		if quit {
			return nil
		}
	}
}

// handle runs one input line and reports whether the loop should stop.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(r.out, helpText)

	case "/new":
		r.ctrl.StartNewSession()

	case "/list":
		list, err := r.ctrl.Refresh(ctx)
		if err != nil {
			return false, err
		}
		printConversations(r.out, list, r.ctrl.State().ConversationID)

	case "/load":
		id, err := r.resolve(arg)
		if err != nil {
			return false, err
		}
		if _, err := r.ctrl.LoadConversation(ctx, id); err != nil {
			return false, err
		}

	case "/delete":
		id, err := r.resolve(arg)
		if err != nil {
			return false, err
		}
		if _, err := r.ctrl.DeleteConversation(ctx, id); err != nil {
			return false, err
		}
		r.pres.notice("Deleted %s", id)

	case "/clear":
		if !r.confirm("Clear all conversations? This cannot be undone. [y/N] ") {
			return false, nil
		}
		if _, err := r.ctrl.ClearAllConversations(ctx); err != nil {
			return false, err
		}
		r.pres.notice("All conversations cleared")

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

// send delivers text. Ctrl-C while the reply streams cancels only this send.
func (r *repl) send(ctx context.Context, text string) error {
	sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	_, err := r.ctrl.Send(sendCtx, text)
	switch {
	case err == nil, errors.Is(err, session.ErrSuperseded):
		return nil
	case sendCtx.Err() != nil && ctx.Err() == nil:
		r.pres.notice("(interrupted)")
		return nil
	default:
		return err
	}
}

// resolve accepts a conversation id or a 1-based number from the last list.
func (r *repl) resolve(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("missing conversation id")
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}
	list, _ := r.pres.snapshot()
	if n < 1 || n > len(list) {
		return "", fmt.Errorf("no conversation #%d", n)
	}
	return list[n-1].ID, nil
}

func (r *repl) confirm(prompt string) bool {
	fmt.Fprint(r.out, prompt)
	return r.in.Scan() && isYes(r.in.Text())
}
