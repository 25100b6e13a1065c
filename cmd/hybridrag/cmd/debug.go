package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Low-level retrieval and citation inspection",
	}
	cmd.AddCommand(newDebugRetrievalCmd())
	cmd.AddCommand(newDebugCitationsCmd())
	return cmd
}

func newDebugRetrievalCmd() *cobra.Command {
	var bm25K, vecK, topK int

	cmd := &cobra.Command{
		Use:   "retrieval <query>",
		Short: "Show raw lexical/vector hits and fusion scores for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient()
			req := map[string]interface{}{
				"query":  joinArgs(args),
				"bm25_k": bm25K,
				"vec_k":  vecK,
				"top_k":  topK,
			}
			var resp json.RawMessage
			if err := client.postJSON(cmd.Context(), "/debug/retrieval", req, &resp); err != nil {
				return err
			}
			return printIndentedJSON(cmd, resp)
		},
	}

	cmd.Flags().IntVar(&bm25K, "bm25-k", 0, "Override lexical candidate count")
	cmd.Flags().IntVar(&vecK, "vec-k", 0, "Override vector candidate count")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Override fused result count")
	return cmd
}

func newDebugCitationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "citations <query>",
		Short: "Run the full answer pipeline and show the citation validation report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient()
			req := map[string]interface{}{"query": joinArgs(args)}
			var resp json.RawMessage
			if err := client.postJSON(cmd.Context(), "/debug/citations", req, &resp); err != nil {
				return err
			}
			return printIndentedJSON(cmd, resp)
		},
	}
	return cmd
}

func joinArgs(args []string) string {
	s := args[0]
	for _, a := range args[1:] {
		s += " " + a
	}
	return s
}

func printIndentedJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
