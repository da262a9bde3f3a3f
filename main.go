// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/psu-emulator/internal/config"
	"github.com/ffutop/psu-emulator/internal/emulator"
	"github.com/ffutop/psu-emulator/internal/persistence"
	"github.com/ffutop/psu-emulator/internal/psu"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Configuration file path.")
	dumpFile := pflag.StringP("dump", "d", "", "Print a state mirror file and exit.")
	logLevel := pflag.StringP("log_level", "v", "", "Log verbosity level (debug, info, warn, error).")
	logFile := pflag.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	pflag.Parse()

	if *dumpFile != "" {
		if err := dump(os.Stdout, *dumpFile); err != nil {
			fmt.Printf("Failed to dump %s: %v\n", *dumpFile, err)
			os.Exit(1)
		}
		return
	}

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	setupLogger(cfg.Log)

	slog.Info("Starting PSU emulator...", "device", cfg.Device.Name, "dialect", cfg.Device.Dialect,
		"supplies", len(cfg.Device.Supplies))

	emu, err := emulator.FromConfig(cfg)
	if err != nil {
		slog.Error("Failed to build emulator", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- emu.Start(ctx)
	}()

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		slog.Info("Shutting down...")
		cancel()
		err = <-done
	case err = <-done:
	}
	if err != nil {
		slog.Error("Emulator stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("Goodbye.")
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
		} else {
			out = f
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// dump prints a file or mmap state mirror.
func dump(w io.Writer, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	st := persistence.NewFileStorage(path)
	defer st.Close()

	snap, err := st.Load()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "connected=%t address=%d supplies=%d\n", snap.Connected, snap.Address, len(snap.Supplies))
	for _, s := range snap.Supplies {
		fmt.Fprintf(w, "supply %d: power=%t voltage=%g/%g current=%g/%g interlock=%t tripped=%t\n",
			s.Address, s.Power, s.Voltage, s.FullscaleVoltage, s.Current, s.FullscaleCurrent, s.Interlock, s.Tripped())
		for _, ilk := range psu.Interlocks() {
			if s.Interlocks[ilk] {
				fmt.Fprintf(w, "  %s\n", ilk)
			}
		}
	}
	return nil
}
