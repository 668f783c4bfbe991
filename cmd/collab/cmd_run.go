// Copyright (C) 2025 Arashek
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Arashek/ADE-stable-1.0-sub012/cmd/collab/config"
	"github.com/Arashek/ADE-stable-1.0-sub012/pkg/logging"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/connection"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/datatypes"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/storage"
	"github.com/Arashek/ADE-stable-1.0-sub012/services/collab/store"
)

// runSession wires the full client stack and drops into the
// interactive edit loop until EOF or SIGINT.
func runSession(cmd *cobra.Command, args []string) error {
	documentID := args[0]
	if userID == "" {
		if !offline {
			return fmt.Errorf("--user is required")
		}
		userID = "local"
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "collab",
		JSON:    cfg.Logging.JSON,
		Quiet:   cfg.Logging.Quiet,
	})
	defer logger.Close()
	log := logger.Slog()

	svc, err := buildStorage(cfg, documentID)
	if err != nil {
		return err
	}

	baseDelay, err := config.Duration(cfg.Connection.ReconnectBaseDelay, time.Second)
	if err != nil {
		return err
	}
	heartbeat, err := config.Duration(cfg.Connection.HeartbeatInterval, 30*time.Second)
	if err != nil {
		return err
	}
	cacheTTL, err := config.Duration(cfg.Cache.TTL, 5*time.Minute)
	if err != nil {
		return err
	}

	manager, err := connection.NewManager(connection.Config{
		Endpoint:             cfg.Connection.Endpoint,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		ReconnectBaseDelay:   baseDelay,
		HeartbeatInterval:    heartbeat,
		EnableMetrics:        cfg.Connection.EnableMetrics,
	}, log)
	if err != nil {
		return err
	}

	docs, err := store.NewStore(store.Config{
		CacheTTL:      cacheTTL,
		EnableMetrics: cfg.Connection.EnableMetrics,
	}, log, svc)
	if err != nil {
		return err
	}
	docs.Attach(manager)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !offline {
		manager.Connect(ctx)
	}

	doc, err := docs.JoinDocument(ctx, documentID, datatypes.User{ID: userID, Name: userName})
	if err != nil {
		manager.Disconnect()
		return fmt.Errorf("joining document %s: %w", documentID, err)
	}
	fmt.Printf("Joined %s (version %d, %d users)\n", doc.ID, doc.Version, len(doc.Users))
	fmt.Println(sessionHelp)

	editLoop(ctx, docs, documentID)

	// Graceful teardown: leave first so peers see it, then drop the
	// connection and wait for pending durable writes.
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := docs.LeaveDocument(leaveCtx, documentID, userID); err != nil {
		log.Warn("leave failed", "error", err)
	}
	manager.Disconnect()
	docs.Close()
	return nil
}

// buildStorage picks the durable store implementation. Offline mode
// seeds an empty document so the session has something to edit.
func buildStorage(cfg config.CollabConfig, documentID string) (storage.Service, error) {
	if offline || cfg.Storage.Offline {
		svc := storage.NewMemoryService()
		svc.Seed(datatypes.Document{ID: documentID, Version: 1})
		return svc, nil
	}
	return storage.NewHTTPService(storage.HTTPConfig{BaseURL: cfg.Storage.BaseURL})
}

const sessionHelp = `Commands:
  i <pos> <text>        insert text at position
  d <pos> <len>         delete len characters at position
  r <pos> <len> <text>  replace len characters with text
  c <pos>               move cursor
  doc                   print document content and version
  users                 print the roster
  quit                  leave the session`

// editLoop reads commands from stdin until EOF, "quit", or context
// cancellation.
func editLoop(ctx context.Context, docs *store.Store, documentID string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "quit" {
				return
			}
			if err := runCommand(ctx, docs, documentID, line); err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}

func runCommand(ctx context.Context, docs *store.Store, documentID, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "i":
		if len(fields) < 3 {
			return fmt.Errorf("usage: i <pos> <text>")
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		return applyEdit(ctx, docs, documentID, datatypes.Change{
			Type:     datatypes.ChangeInsert,
			Position: pos,
			Text:     strings.Join(fields[2:], " "),
		})

	case "d":
		if len(fields) != 3 {
			return fmt.Errorf("usage: d <pos> <len>")
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		length, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		return applyEdit(ctx, docs, documentID, datatypes.Change{
			Type:     datatypes.ChangeDelete,
			Position: pos,
			Length:   length,
		})

	case "r":
		if len(fields) < 4 {
			return fmt.Errorf("usage: r <pos> <len> <text>")
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		length, err := strconv.Atoi(fields[2])
		if err != nil {
			return err
		}
		return applyEdit(ctx, docs, documentID, datatypes.Change{
			Type:     datatypes.ChangeReplace,
			Position: pos,
			Length:   length,
			Text:     strings.Join(fields[3:], " "),
		})

	case "c":
		if len(fields) != 2 {
			return fmt.Errorf("usage: c <pos>")
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		return docs.MoveCursor(ctx, documentID, userID, pos)

	case "doc":
		doc, ok := docs.GetDocument(documentID)
		if !ok {
			return fmt.Errorf("document not cached")
		}
		fmt.Printf("version %d:\n%s\n", doc.Version, doc.Content)
		return nil

	case "users":
		users, ok := docs.GetUsers(documentID)
		if !ok {
			return fmt.Errorf("document not cached")
		}
		for _, u := range users {
			cursor := "-"
			if u.Cursor != nil {
				cursor = strconv.Itoa(u.Cursor.Position)
			}
			fmt.Printf("%s\t%s\tcursor=%s\n", u.ID, u.Name, cursor)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func applyEdit(ctx context.Context, docs *store.Store, documentID string, change datatypes.Change) error {
	change.UserID = userID
	change.Timestamp = time.Now().UnixMilli()
	version, err := docs.ApplyChange(ctx, documentID, change)
	if err != nil {
		return err
	}
	fmt.Printf("applied, version %d\n", version)
	return nil
}
