// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command telegram-redirector runs the multi-user Telegram message
// redirection service: a bot front end for connecting accounts and managing
// redirection rules, plus the relay core that mirrors messages between chats.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aiku/telegram-redirector/pkg/bot"
	"github.com/aiku/telegram-redirector/pkg/relay"
	"github.com/aiku/telegram-redirector/pkg/relay/backend"
	"github.com/aiku/telegram-redirector/pkg/transport/memory"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string
var writeExampleConfig bool

var rootCmd = &cobra.Command{
	Use:     "telegram-redirector",
	Short:   "Multi-user Telegram message redirection service",
	Version: fmt.Sprintf("0.1.0 (%s, %s, built %s)", Tag, Commit, BuildTime),
	RunE: func(cmd *cobra.Command, args []string) error {
		if writeExampleConfig {
			fmt.Print(relay.ExampleConfig)
			return nil
		}
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	rootCmd.Flags().BoolVarP(&writeExampleConfig, "example-config", "e", false, "print the example config and exit")
}

func run(ctx context.Context) error {
	cfg, err := relay.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	log.Info().Str("tag", Tag).Str("commit", Commit).Msg("Starting telegram-redirector")

	var dialer relay.Dialer
	switch cfg.Telegram.Transport {
	case "memory":
		dialer = memory.NewDialer()
	default:
		return fmt.Errorf("unknown telegram transport %q", cfg.Telegram.Transport)
	}

	store := backend.NewClient(cfg.Backend, *log)
	svc := relay.NewService(cfg, store, dialer, *log)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reconcile redirections: %w", err)
	}

	front, err := bot.New(cfg.Telegram, svc, *log)
	if err != nil {
		return err
	}
	if err := front.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Shutting down")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
