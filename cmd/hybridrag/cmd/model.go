package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

type modelsCmdResponse struct {
	Current struct {
		Chat  string `json:"chat"`
		Embed string `json:"embed"`
	} `json:"current"`
	Available struct {
		ChatModels  []string `json:"chat_models"`
		EmbedModels []string `json:"embed_models"`
		All         []string `json:"all"`
	} `json:"available"`
}

type setModelsCmdResponse struct {
	Success bool                       `json:"success"`
	Changes map[string]json.RawMessage `json:"changes"`
	Current struct {
		Chat  string `json:"chat"`
		Embed string `json:"embed"`
	} `json:"current"`
}

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect or change the active chat/embedding models",
	}
	cmd.AddCommand(newModelShowCmd())
	cmd.AddCommand(newModelSetCmd())
	return cmd
}

func newModelShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the currently active models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			client := newAPIClient()

			var resp modelsCmdResponse
			if err := client.get(cmd.Context(), "/models", &resp); err != nil {
				return err
			}

			out.Status("", fmt.Sprintf("chat:  %s", resp.Current.Chat))
			out.Status("", fmt.Sprintf("embed: %s", resp.Current.Embed))
			return nil
		},
	}
}

func newModelSetCmd() *cobra.Command {
	var chatModel, embedModel string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Swap the active chat and/or embedding model",
		Long: `Swap the active chat and/or embedding model on the running daemon.

Swapping the embedding model changes the vector dimension: existing vectors
stay on disk, but any search against the new dimension will report a
mismatch until documents are re-ingested.`,
		Example: `  hybridrag model set --chat llama3.1:70b
  hybridrag model set --embed nomic-embed-text`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModelSet(cmd, chatModel, embedModel)
		},
	}

	cmd.Flags().StringVar(&chatModel, "chat", "", "New chat model name")
	cmd.Flags().StringVar(&embedModel, "embed", "", "New embedding model name")
	return cmd
}

func runModelSet(cmd *cobra.Command, chatModel, embedModel string) error {
	out := output.New(cmd.OutOrStdout())
	client := newAPIClient()

	req := map[string]string{"chat_model": chatModel, "embed_model": embedModel}
	var resp setModelsCmdResponse
	if err := client.postJSON(cmd.Context(), "/models", req, &resp); err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("model swap rejected")
	}

	out.Success(fmt.Sprintf("chat=%s embed=%s", resp.Current.Chat, resp.Current.Embed))
	for field, change := range resp.Changes {
		out.Statusf("", "  %s: %s", field, string(change))
	}
	return nil
}
