package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/app"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/config"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/daemon"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/httpapi"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/logging"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/output"
)

// loadCLIConfig merges defaults, user config, project config (.hybrid-rag.yaml
// in the current directory), and env vars, then applies the --data-dir flag
// as the final override.
func loadCLIConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	root, err := config.FindProjectRoot(cwd)
	if err != nil {
		root = cwd
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg, nil
}

func resolvedDataDir(cfg *config.Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return config.DefaultDataDir()
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(resolvedDataDir(cfg), "hybridrag.pid")
}

func newStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the hybridrag HTTP API daemon",
		Long: `Start the HTTP API server that backs every other hybridrag command.

By default it daemonizes into the background. Use --foreground to run in the
current terminal, which is useful for watching logs while debugging.`,
		Example: `  hybridrag start
  hybridrag start --foreground`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground instead of daemonizing")
	return cmd
}

func runStart(cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	pidFile := daemon.NewPIDFile(pidFilePath(cfg))

	if pidFile.IsRunning() {
		out.Status("", "hybridrag is already running")
		return nil
	}

	if foreground {
		return runServerForeground(cmd.Context(), out, cfg, pidFile)
	}

	out.Status("", "Starting hybridrag in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"start", "--foreground"}
	if dataDirFlag != "" {
		args = append(args, "--data-dir", dataDirFlag)
	}
	bgCmd := exec.Command(execPath, args...)
	bgCmd.Stdout = nil
	bgCmd.Stderr = nil
	bgCmd.Stdin = nil
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start hybridrag: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	client := newAPIClient()
	for i := 0; i < 50; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("hybridrag exited unexpectedly: %w", err)
			}
			return fmt.Errorf("hybridrag exited unexpectedly with code 0")
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if err := client.get(cmd.Context(), "/health", nil); err == nil {
			out.Success(fmt.Sprintf("hybridrag started (pid: %d)", bgCmd.Process.Pid))
			return nil
		}
	}

	return fmt.Errorf("hybridrag failed to become healthy within timeout")
}

func runServerForeground(ctx context.Context, out *output.Writer, cfg *config.Config, pidFile *daemon.PIDFile) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = true
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	if err := pidFile.Write(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer pidFile.Remove()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing hybridrag: %w", err)
	}
	defer a.Close()

	srv := httpapi.New(a)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Router()}

	out.Status("", fmt.Sprintf("Listening on %s", addr))
	out.Status("", fmt.Sprintf("Data dir: %s", a.DataDir()))
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	slog.Info("hybridrag starting", slog.String("addr", addr), slog.String("data_dir", a.DataDir()))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-sigCtx.Done():
		slog.Info("hybridrag shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
