// Package cmd provides the command line interface for the application.
package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RufUsul/gator/cmd/daemon"
	"github.com/RufUsul/gator/internal/common"
)

var gVersion = "9.9.9" // overwritten by ldflags at build time

// LongAppName is the name of the application
const LongAppName = "Gator"

var examples = []string{
	fmt.Sprintf("  Configure a system-wide capture:                 $ %s daemon", common.AppName),
	fmt.Sprintf("  Configure with periodic sampling at 1 kHz:       $ %s daemon --sample-rate 1000", common.AppName),
	fmt.Sprintf("  Configure from a capture configuration file:     $ %s daemon --config capture.yaml", common.AppName),
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:               common.AppName,
	Short:             common.AppName,
	Long:              fmt.Sprintf(`%s (%s) captures hardware performance counters and kernel tracepoints on Arm targets.`, LongAppName, common.AppName),
	Example:           strings.Join(examples, "\n"),
	PersistentPreRunE: initializeApplication,
	Version:           gVersion,
}

var (
	// logging
	flagDebug     bool
	flagLogStdOut bool
)

const (
	flagDebugName     = "debug"
	flagLogStdOutName = "log-stdout"
)

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{}) // block the help command
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.AddCommand(daemon.Cmd)
	// Global (persistent) flags
	rootCmd.PersistentFlags().BoolVar(&flagDebug, flagDebugName, false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogStdOut, flagLogStdOutName, false, "write logs to stdout")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.EnableCommandSorting = false
	cobra.EnableCaseInsensitive = true
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func initializeApplication(cmd *cobra.Command, args []string) error {
	// configure logging
	var logOpts slog.HandlerOptions
	if flagDebug {
		logOpts.Level = slog.LevelDebug
		logOpts.AddSource = true
	} else {
		logOpts.Level = slog.LevelInfo
		logOpts.AddSource = false
	}
	logDest := os.Stderr
	if flagLogStdOut {
		logDest = os.Stdout
	}
	if term.IsTerminal(int(logDest.Fd())) {
		slog.SetDefault(slog.New(slog.NewTextHandler(logDest, &logOpts)))
	} else {
		// structured output when logs are redirected to a file or collector
		slog.SetDefault(slog.New(slog.NewJSONHandler(logDest, &logOpts)))
	}
	slog.Info("starting up", slog.String("app", common.AppName), slog.String("version", cmd.Root().Version),
		slog.Int("pid", os.Getpid()), slog.Int("uid", os.Getuid()))
	slog.Debug("log level set", slog.Bool("debug", flagDebug))
	return nil
}
