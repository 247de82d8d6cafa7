// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Command cometctl exercises the SDK from the shell: it loads the
// layered configuration (comet.yaml plus COMET_* environment
// variables), opens an instance, pushes the requested payloads and
// flushes before exiting.
//
// Usage:
//
//	cometctl event -name "Product Viewed" -data '{"Category":"Books"}'
//	cometctl profile -data '{"Name":"Ada","Email":"ada@example.com"}'
//	cometctl login -data '{"Email":"ada@example.com"}'
//	cometctl flush
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	comet "github.com/cometsdk/comet-go"
	"github.com/cometsdk/comet-go/internal/config"
	"github.com/cometsdk/comet-go/internal/logging"
)

// drainWindow bounds how long the process lingers for the final flush.
const drainWindow = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:], *cfg); err != nil {
		logging.Error().Err(err).Msg("cometctl failed")
		os.Exit(1)
	}
}

func run(command string, args []string, cfg comet.Config) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	name := fs.String("name", "", "event name")
	data := fs.String("data", "", "JSON object payload")
	screen := fs.String("screen", "", "screen name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	inst, err := comet.NewInstance(cfg)
	if err != nil {
		return err
	}
	defer inst.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	inst.Start(ctx)
	inst.Resume()

	switch command {
	case "event":
		if *name == "" {
			return fmt.Errorf("event requires -name")
		}
		payload, err := parseData(*data)
		if err != nil {
			return err
		}
		inst.PushEvent(*name, payload)
	case "profile":
		payload, err := parseData(*data)
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return fmt.Errorf("profile requires -data")
		}
		inst.PushProfile(payload)
	case "login":
		payload, err := parseData(*data)
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return fmt.Errorf("login requires -data")
		}
		inst.OnUserLogin(payload)
	case "screen":
		if *screen == "" {
			return fmt.Errorf("screen requires -screen")
		}
		inst.RecordScreen(*screen)
	case "flush":
		// Nothing to queue; drain whatever earlier runs persisted.
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}

	inst.Flush()
	select {
	case <-time.After(drainWindow):
	case <-ctx.Done():
	}
	inst.Pause()
	return nil
}

func parseData(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parse -data: %w", err)
	}
	return m, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: cometctl <command> [flags]

commands:
  event    -name <event> [-data '{...}']
  profile  -data '{...}'
  login    -data '{...}'
  screen   -screen <name>
  flush`)
}
