package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/swstarter/core/internal/pkg/procname"
	"go.uber.org/zap"
)

// NewServeCmd creates the 'serve' command.
func NewServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, queue workers and maintenance jobs",
		Long: `Start the API server together with the query and stats lane workers.

The stats computation is registered as a repeatable job before anything is
served; if that registration fails the process exits.`,
		Example: `  swstarter serve --config /etc/swstarter/config.yml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, *configPath)
		},
	}
}

// runServe blocks until SIGINT or SIGTERM, then drains the supervisor tree.
func runServe(cmd *cobra.Command, configPath string) error {
	a, log, err := openApp(configPath, true)
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	if err := procname.Set(procname.ForRole("swstarter", "serve")); err != nil {
		log.Debug("process name not set", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server exited")
	return nil
}
