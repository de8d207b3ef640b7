package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scholarrag/zoterag/internal/rag"
)

func newChatCmd() *cobra.Command {
	var focused bool
	var autoFilters bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive, multi-turn chat session over the library",
		Long: `Opens a REPL-style chat session: each line you type is sent as one
chat turn against the indexed library, with citations printed after the
answer. The session persists in memory for the process lifetime; type
"exit" or Ctrl-D to quit.`,
		RunE: func(c *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close()

			sessionID := uuid.NewString()
			ctx := context.Background()
			scanner := bufio.NewScanner(os.Stdin)

			fmt.Fprintln(c.OutOrStdout(), "zoterag chat — ask a question about your library (exit to quit)")
			for {
				fmt.Fprint(c.OutOrStdout(), "> ")
				if !scanner.Scan() {
					return nil
				}
				query := strings.TrimSpace(scanner.Text())
				if query == "" {
					continue
				}
				if query == "exit" || query == "quit" {
					return nil
				}

				resp := svc.Chat(ctx, rag.Request{
					Query:          query,
					SessionID:      sessionID,
					UseAutoFilters: autoFilters,
					Focused:        focused,
				})

				fmt.Fprintln(c.OutOrStdout())
				fmt.Fprintln(c.OutOrStdout(), resp.Summary)
				if len(resp.Citations) > 0 {
					fmt.Fprintln(c.OutOrStdout(), "\nSources:")
					for _, cit := range resp.Citations {
						fmt.Fprintf(c.OutOrStdout(), "  [%d] %s (%s) %s\n", cit.ID, cit.Title, cit.Year, cit.Authors)
					}
				}
				if resp.GeneratedTitle != nil {
					fmt.Fprintf(c.OutOrStdout(), "\n(session title: %s)\n", *resp.GeneratedTitle)
				}
				fmt.Fprintln(c.OutOrStdout())
			}
		},
	}

	cmd.Flags().BoolVar(&focused, "focused", false, "widen retrieval k and diversity caps for a deep-dive question")
	cmd.Flags().BoolVar(&autoFilters, "auto-filters", false, "extract metadata filters from the question text via the LM")
	return cmd
}
