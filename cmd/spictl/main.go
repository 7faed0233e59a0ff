// Command spictl is the operator tool for the SPI dashboard database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"spi-dashboard/internal/config"
	"spi-dashboard/internal/db"
	"spi-dashboard/internal/logging"
	"spi-dashboard/internal/migrate"
)

const appName = "spictl"

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Operate the SPI dashboard database",
		Long:          "spictl applies migrations, imports the SPI dataset and replays it over MQTT.\nSettings come from the same environment variables as the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			slog.SetDefault(logging.New(cfg, version, appName))
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
	}
	root.AddCommand(newMigrateCmd(), newImportCmd(), newReplayCmd())
	return root
}

type configKey struct{}

func withConfig(ctx context.Context, cfg config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(cmd *cobra.Command) config.Config {
	cfg, _ := cmd.Context().Value(configKey{}).(config.Config)
	return cfg
}

// openDB opens and migrates the configured database.
func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate.Run(ctx, conn); err != nil {
		_ = db.Close(conn)
		return nil, err
	}
	return conn, nil
}

func closeDB(conn *sql.DB) {
	if err := db.Close(conn); err != nil {
		slog.Error("db close", "err", err)
	}
}
