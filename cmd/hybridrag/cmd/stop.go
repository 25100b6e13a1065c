package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/daemon"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running hybridrag daemon",
		Long:  `Send SIGTERM to the running hybridrag daemon for graceful shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd)
		},
	}
}

func runStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	pidFile := daemon.NewPIDFile(pidFilePath(cfg))

	if !pidFile.IsRunning() {
		out.Status("", "hybridrag is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop hybridrag: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Success(fmt.Sprintf("hybridrag stopped (was pid: %d)", pid))
			return nil
		}
	}

	out.Status("", "hybridrag not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill hybridrag: %w", err)
	}

	out.Success("hybridrag killed")
	return nil
}
