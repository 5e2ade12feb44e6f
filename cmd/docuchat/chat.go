package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/pkg/conversation"
)

var chatPull bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about the indexed documents",
	Long: `Starts an interactive session over an existing index. Type a question
and press enter. /clear forgets the conversation so far, /history prints it
and /exit (or exit) quits.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatPull, "pull", false, "download the index from the archive before opening it")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if chatPull {
		var pulled int
		err := withSpinner(cmd.ErrOrStderr(), "☁️  Downloading index...", func() error {
			var err error
			pulled, err = pullIndex(ctx, cfg)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to pull index: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "✓ Downloaded %d files\n", pulled)
	}

	a, err := newApp(ctx, cfg, appOptions{mode: openExisting})
	if err != nil {
		return err
	}
	defer a.Close()

	color.New(color.FgCyan).Fprintf(out, "\nChat with your documents (%d records indexed, type 'exit' to quit)\n", a.index.Count())
	return chatLoop(cmd, a.session, cmd.InOrStdin(), out)
}

func chatLoop(cmd *cobra.Command, session *conversation.Session, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	scanner := bufio.NewScanner(in)
	userPrompt := color.New(color.FgGreen)
	assistantPrompt := color.New(color.FgCyan)

	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "/exit", "quit", "/quit":
			return nil
		case "/clear":
			session.ClearHistory()
			color.New(color.FgYellow).Fprintln(out, "Conversation cleared.")
			continue
		case "/history":
			printHistory(out, session.History())
			continue
		}

		var answer string
		err := withSpinner(cmd.ErrOrStderr(), "🤖 Generating response...", func() error {
			var err error
			answer, err = session.Ask(ctx, query)
			return err
		})
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "Error: %v\n", err)
			continue
		}
		assistantPrompt.Fprintf(out, "Assistant: %s\n", answer)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return scanner.Err()
}

func printHistory(out io.Writer, history models.History) {
	if len(history) == 0 {
		color.New(color.FgYellow).Fprintln(out, "No messages yet.")
		return
	}
	for _, turn := range history {
		c := color.New(color.FgGreen)
		label := "You"
		if turn.Role == models.RoleAssistant {
			c = color.New(color.FgCyan)
			label = "Assistant"
		}
		c.Fprintf(out, "%s: %s\n", label, turn.Text)
	}
}
