package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/app"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/daemon"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all indexed data",
		Long: `Delete the chunk store, lexical index, vector index, and raw blobs under
the data directory. The user configuration file is left untouched.

hybridrag must not be running when this is called.`,
		Example: `  hybridrag reset
  hybridrag reset --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReset(cmd, yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func runReset(cmd *cobra.Command, yes bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}

	pidFile := daemon.NewPIDFile(pidFilePath(cfg))
	if pidFile.IsRunning() {
		return fmt.Errorf("hybridrag is running; run 'hybridrag stop' first")
	}

	dataDir := resolvedDataDir(cfg)

	if !yes {
		out.Warningf("This will permanently delete all indexed data under %s", dataDir)
		fmt.Fprint(cmd.OutOrStdout(), "Continue? [y/N] ")
		reader := bufio.NewReader(cmd.InOrStdin())
		line, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			out.Status("", "Aborted")
			return nil
		}
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}

	if err := a.Reset(); err != nil {
		return fmt.Errorf("resetting data: %w", err)
	}

	out.Success("All indexed data deleted")
	return nil
}
