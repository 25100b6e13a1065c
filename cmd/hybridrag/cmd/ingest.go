package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

type ingestCmdResponse struct {
	Received       []string `json:"received"`
	DocumentsAdded int      `json:"documents_added"`
	ChunksAdded    int      `json:"chunks_added"`
	VectorsAdded   int      `json:"vectors_added"`
	Skipped        []struct {
		Filename string
		Reason   string
	} `json:"skipped"`
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload and index documents",
		Long:  `Upload one or more files to the running hybridrag daemon for chunking, embedding, and indexing.`,
		Args:  cobra.MinimumNArgs(1),
		Example: `  hybridrag ingest notes.md
  hybridrag ingest docs/*.txt report.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args)
		},
	}
	return cmd
}

func runIngest(cmd *cobra.Command, paths []string) error {
	out := output.New(cmd.OutOrStdout())
	client := newAPIClient()

	var resp ingestCmdResponse
	if err := client.postFiles(cmd.Context(), "/ingest", paths, &resp); err != nil {
		return err
	}

	out.Success(fmt.Sprintf("Ingested %d document(s): %d chunks, %d vectors added",
		resp.DocumentsAdded, resp.ChunksAdded, resp.VectorsAdded))

	for _, s := range resp.Skipped {
		out.Warningf("Skipped %s: %s", s.Filename, s.Reason)
	}

	return nil
}
