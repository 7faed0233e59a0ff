package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"spi-dashboard/internal/modules/spi"
	"spi-dashboard/internal/modules/spi/loader"
	"spi-dashboard/internal/mqtt"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := openDB(cmd.Context(), configFrom(cmd))
			if err != nil {
				return err
			}
			defer closeDB(conn)
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [csv]",
		Short: "Replace the base dataset with a CSV file",
		Long:  "Replaces every stored reading with the rows of the CSV file. Defaults to DATASET_PATH.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			path := cfg.DatasetPath
			if len(args) == 1 {
				path = args[0]
			}
			conn, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB(conn)

			n, err := spi.ImportDataset(cmd.Context(), conn, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows from %s\n", n, path)
			return nil
		},
	}
}

func newReplayCmd() *cobra.Command {
	var interval time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "replay <csv>",
		Short: "Publish CSV rows to MQTT_TOPIC one by one",
		Long:  "Publishes each row of the CSV as a reading message so a running dashboard appends it to the base dataset.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			if !cfg.MQTTEnabled() {
				return errors.New("MQTT_BROKER is not set")
			}
			readings, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			if limit > 0 && limit < len(readings) {
				readings = readings[:limit]
			}

			pub := mqtt.NewPublisher(cfg, slog.Default())
			if err := pub.Connect(cmd.Context()); err != nil {
				return err
			}
			defer pub.Disconnect()

			ticker := time.NewTicker(max(interval, time.Millisecond))
			defer ticker.Stop()
			sent := 0
			for _, r := range readings {
				if err := pub.PublishReading(r); err != nil {
					return fmt.Errorf("row %d: %w", sent+1, err)
				}
				sent++
				select {
				case <-cmd.Context().Done():
					fmt.Fprintf(cmd.OutOrStdout(), "interrupted after %d rows\n", sent)
					return nil
				case <-ticker.C:
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d rows to %s\n", sent, cfg.MQTTTopic)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between published rows")
	cmd.Flags().IntVar(&limit, "limit", 0, "publish at most this many rows (0 = all)")
	return cmd
}
