package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

type statsCmdResponse struct {
	ChunkStore struct {
		Documents  int `json:"documents"`
		Chunks     int `json:"chunks"`
		FTSEntries int `json:"fts_entries"`
	} `json:"chunk_store"`
	VectorIndex struct {
		Exists    bool   `json:"exists"`
		NTotal    int    `json:"ntotal"`
		Dim       int    `json:"dim"`
		Type      string `json:"type"`
		Trained   bool   `json:"trained"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"vector_index"`
	Accelerator struct {
		BuildHasGPU    bool     `json:"build_has_gpu"`
		DevicesVisible []string `json:"devices_visible"`
	} `json:"accelerator"`
	ActiveModels struct {
		Chat         string `json:"chat"`
		Embed        string `json:"embed"`
		BaseURL      string `json:"base_url"`
		NumPredict   int    `json:"num_predict"`
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
	} `json:"active_models"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and model statistics",
		Long:  `Fetch chunk store, vector index, and active model stats from the running hybridrag daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	client := newAPIClient()

	var resp statsCmdResponse
	if err := client.get(cmd.Context(), "/stats", &resp); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("", fmt.Sprintf("Documents: %d  Chunks: %d  FTS entries: %d",
		resp.ChunkStore.Documents, resp.ChunkStore.Chunks, resp.ChunkStore.FTSEntries))
	out.Status("", fmt.Sprintf("Vector index: exists=%v ntotal=%d dim=%d type=%s",
		resp.VectorIndex.Exists, resp.VectorIndex.NTotal, resp.VectorIndex.Dim, resp.VectorIndex.Type))
	out.Status("", fmt.Sprintf("Models: chat=%s embed=%s base_url=%s",
		resp.ActiveModels.Chat, resp.ActiveModels.Embed, resp.ActiveModels.BaseURL))
	out.Status("", fmt.Sprintf("Chunking: size=%d overlap=%d",
		resp.ActiveModels.ChunkSize, resp.ActiveModels.ChunkOverlap))

	return nil
}
