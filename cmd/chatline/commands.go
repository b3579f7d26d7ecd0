// ABOUTME: One-shot subcommands for listing, showing, deleting and clearing conversations
// ABOUTME: Talk to the backend client directly without an interactive session

package main

import (
	"bufio"
	"fmt"
	"html"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/render"
)

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.close()

			list, err := a.client.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			printConversations(cmd.OutOrStdout(), list, "")
			return nil
		},
	}
}

func newShowCmd(opts *options) *cobra.Command {
	var asHTML bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.close()

			conv, err := a.client.GetConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asHTML {
				page, err := conversationHTML(conv)
				if err != nil {
					return err
				}
				fmt.Fprint(out, page)
				return nil
			}

			fmt.Fprintln(out, assistantLabel.Sprint(conv.Title))
			for _, m := range conv.Messages {
				label := userLabel.Sprint("You")
				if m.Role == api.RoleAssistant {
					label = assistantLabel.Sprint("Assistant")
				}
				fmt.Fprintf(out, "%s: %s\n", label, render.Terminal(m.Content))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "render the conversation as HTML")
	return cmd
}

// conversationHTML renders conv as an HTML fragment, one div per message.
func conversationHTML(conv *api.Conversation) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(conv.Title))
	for _, m := range conv.Messages {
		body, err := render.HTML(m.Content)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "<div class=\"message message-%s\">\n%s</div>\n", m.Role, body)
	}
	return b.String(), nil
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.DeleteConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprint(out, "Clear all conversations? This cannot be undone. [y/N] ")
				in := bufio.NewScanner(cmd.InOrStdin())
				if !in.Scan() || !isYes(in.Text()) {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			if err := a.client.ClearConversations(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "All conversations cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func isYes(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
