/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Task tracking API with file attachments",
	Long: `taskboard serves the task and attachment REST API and ships the
operational commands around it: schema migrations, user provisioning and
the orphaned blob reaper.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) logging.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
}
