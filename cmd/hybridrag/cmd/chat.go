package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/google/uuid"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive multi-turn conversation",
		Long: `Start an interactive REPL against the running hybridrag daemon.

Each line you type becomes one POST /query call carrying the same session ID,
so the daemon's short-term memory carries context across turns. Type 'exit'
or press Ctrl+D to leave.`,
		Example: `  hybridrag chat
  hybridrag chat --session support-42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, sessionID)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to resume (default: a new random session)")
	return cmd
}

func runChat(cmd *cobra.Command, sessionID string) error {
	out := output.New(cmd.OutOrStdout())
	client := newAPIClient()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	out.Statusf("", "Session: %s (type 'exit' to quit)", sessionID)
	out.Newline()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		var resp queryCmdResponse
		req := map[string]interface{}{"session_id": sessionID, "query": line}
		if err := client.postJSON(cmd.Context(), "/query", req, &resp); err != nil {
			out.Errorf("%v", err)
			continue
		}

		fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
		out.Newline()
	}

	return scanner.Err()
}
