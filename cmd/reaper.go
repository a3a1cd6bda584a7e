/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/storage"
)

// reaperCmd consumes blob.orphaned events and deletes the referenced blobs.
var reaperCmd = &cobra.Command{
	Use:   "reaper",
	Short: "Delete blobs left behind by failed uploads and deletes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.MQ.Backend == config.MQNone {
			return fmt.Errorf("reaper needs MQ_BACKEND set to %s or %s", config.MQRabbitMQ, config.MQPubSub)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := newLogger(cfg)

		blobs, err := storage.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		queue, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		log.Info(ctx, "reaper started", "channel", mq.ChannelBlobOrphaned, "mq", cfg.MQ.Backend)
		return services.NewBlobReaper(blobs, log).Run(ctx, queue)
	},
}

func init() {
	rootCmd.AddCommand(reaperCmd)
}
