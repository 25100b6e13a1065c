package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

type queryCmdResponse struct {
	Answer  string `json:"answer"`
	Sources []struct {
		ChunkID    int64   `json:"chunk_id"`
		Filename   string  `json:"filename"`
		ChunkIndex int     `json:"chunk_index"`
		FusedScore float64 `json:"fused_score"`
	} `json:"sources"`
	Debug struct {
		BM25Hits   int  `json:"bm25_hits"`
		VecHits    int  `json:"vec_hits"`
		Fused      int  `json:"fused"`
		CitationOK bool `json:"citation_ok"`
	} `json:"debug"`
}

func newQueryCmd() *cobra.Command {
	var (
		sessionID string
		topK      int
		showDebug bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question against the indexed documents",
		Long:  `Send a single question to the running hybridrag daemon and print the cited answer.`,
		Args:  cobra.MinimumNArgs(1),
		Example: `  hybridrag query "what does the refund policy say?"
  hybridrag query --session support-42 "and what about digital goods?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := args[0]
			for _, a := range args[1:] {
				question += " " + a
			}
			return runQuery(cmd, sessionID, question, topK, showDebug)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversational memory")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Override the number of chunks used to compose the answer")
	cmd.Flags().BoolVar(&showDebug, "debug", false, "Print retrieval debug counters alongside the answer")

	return cmd
}

func runQuery(cmd *cobra.Command, sessionID, question string, topK int, showDebug bool) error {
	out := output.New(cmd.OutOrStdout())
	client := newAPIClient()

	req := map[string]interface{}{
		"session_id": sessionID,
		"query":      question,
		"top_k":      topK,
	}

	var resp queryCmdResponse
	if err := client.postJSON(cmd.Context(), "/query", req, &resp); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
	out.Newline()
	out.Status("", "Sources:")
	for _, s := range resp.Sources {
		out.Statusf("", "  [%d] %s (chunk %d, score %.4f)", s.ChunkID, s.Filename, s.ChunkIndex, s.FusedScore)
	}

	if showDebug {
		out.Newline()
		out.Statusf("", "bm25_hits=%d vec_hits=%d fused=%d citation_ok=%v",
			resp.Debug.BM25Hits, resp.Debug.VecHits, resp.Debug.Fused, resp.Debug.CitationOK)
	}

	return nil
}
