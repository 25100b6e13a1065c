package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

type chunkCmdResponse struct {
	ChunkID    int64             `json:"chunk_id"`
	DocumentID int64             `json:"document_id"`
	Filename   string            `json:"filename"`
	ChunkIndex int               `json:"chunk_index"`
	Metadata   map[string]string `json:"metadata"`
	Text       string            `json:"text"`
}

func newChunkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chunk <id>",
		Short: "Print a stored chunk by ID",
		Long:  `Fetch and print a single chunk's text and metadata by its ID, for inspecting what an answer cited.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChunk(cmd, args[0])
		},
	}
}

func runChunk(cmd *cobra.Command, id string) error {
	out := output.New(cmd.OutOrStdout())
	client := newAPIClient()

	var resp chunkCmdResponse
	if err := client.get(cmd.Context(), "/chunks/"+id, &resp); err != nil {
		return err
	}

	out.Status("", fmt.Sprintf("%s (chunk %d of document %d)", resp.Filename, resp.ChunkIndex, resp.DocumentID))
	out.Newline()
	fmt.Fprintln(cmd.OutOrStdout(), resp.Text)

	return nil
}
