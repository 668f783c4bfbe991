// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Command collab is a terminal client for the real-time document
// collaboration service.
//
// Usage:
//
//	collab run <document-id> --user u1 --name Ada
//	collab run <document-id> --offline
//
// Configuration lives at ~/.arashek/collab.yaml and is created with
// defaults on first run. Every setting can be overridden per
// invocation with flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Arashek/ADE-stable-1.0-sub012/cmd/collab/config"
)

var (
	configPath string
	endpoint   string
	logLevel   string
	offline    bool

	userID   string
	userName string

	rootCmd = &cobra.Command{
		Use:   "collab",
		Short: "A cli client for the Arashek real-time collaboration service",
		Long: `Collab connects to a shared document session, mirrors remote
edits locally, and publishes your own edits, cursor moves, and
presence to the other participants.`,
	}

	runCmd = &cobra.Command{
		Use:   "run [document-id]",
		Short: "Join a document session and edit it interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  runSession,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default ~/.arashek/collab.yaml)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Websocket endpoint override")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	runCmd.Flags().StringVar(&userID, "user", "", "User id to join as (required unless --offline)")
	runCmd.Flags().StringVar(&userName, "name", "", "Display name for presence")
	runCmd.Flags().BoolVar(&offline, "offline", false, "Run against an in-memory document store, no server")

	rootCmd.AddCommand(runCmd)
}

// loadConfig resolves the config path and applies flag overrides.
func loadConfig() (config.CollabConfig, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.CollabConfig{}, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.CollabConfig{}, err
	}

	if endpoint != "" {
		cfg.Connection.Endpoint = endpoint
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
