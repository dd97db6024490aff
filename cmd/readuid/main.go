// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// readuid reads card UIDs from an MFRC522 reader. By default it monitors
// continuously; with -once it prints the first UID and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	_ "github.com/ZaparooProject/go-mfrc522/detection/i2c"
	_ "github.com/ZaparooProject/go-mfrc522/detection/spi"
	_ "github.com/ZaparooProject/go-mfrc522/detection/uart"
	"github.com/ZaparooProject/go-mfrc522/polling"
	"github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
)

type config struct {
	devicePath string
	timeout    time.Duration
	debug      bool
	once       bool
	wake       bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagTimeout    time.Duration
	flagDebug      bool
	flagOnce       bool
	flagWake       bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "", "Device path (auto-detect if empty)")
	flag.DurationVar(&flagTimeout, "timeout", 30*time.Second, "How long to wait for a card in -once mode")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagOnce, "once", false, "Read a single UID and exit")
	flag.BoolVar(&flagWake, "wake", false, "Use WUPA instead of REQA (also addresses halted cards)")
}

func parseConfig() *config {
	cfg := &config{
		devicePath: flagDevicePath,
		timeout:    flagTimeout,
		debug:      flagDebug,
		once:       flagOnce,
		wake:       flagWake,
	}

	if cfg.debug {
		mfrc522.SetDebugEnabled(true)
	}

	return cfg
}

// newTransportFromDevice creates a transport from a detected device.
func newTransportFromDevice(device detection.DeviceInfo) (mfrc522.Transport, error) {
	switch strings.ToLower(device.Transport) {
	case "uart":
		transport, err := uart.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	case "i2c":
		transport, err := i2c.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return transport, nil
	case "spi":
		transport, err := spi.New(device.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}

// newTransport creates a transport from a device path by pattern matching.
func newTransport(path string) (mfrc522.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	pathLower := strings.ToLower(path)

	if strings.Contains(pathLower, "i2c") {
		transport, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
		}
		return transport, nil
	}

	if strings.Contains(pathLower, "spi") {
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	}

	// Default to UART for serial ports
	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

// autoDetectTransport runs device detection and opens the best candidate.
func autoDetectTransport(ctx context.Context, cfg *config) (mfrc522.Transport, error) {
	if cfg.debug {
		_, _ = fmt.Println("Auto-detecting MFRC522 readers...")
	}

	opts := detection.DefaultOptions()
	detectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	devices, err := detection.DetectAll(detectCtx, &opts)
	if err != nil {
		return nil, fmt.Errorf("device detection failed: %w", err)
	}

	// Prefer the highest-confidence candidate
	best := devices[0]
	for _, d := range devices[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	if cfg.debug {
		_, _ = fmt.Printf("Using %s\n", best)
	}
	return newTransportFromDevice(best)
}

func connectToDevice(ctx context.Context, cfg *config) (*mfrc522.Device, error) {
	var transport mfrc522.Transport
	var err error

	if cfg.devicePath == "" {
		transport, err = autoDetectTransport(ctx, cfg)
	} else {
		if cfg.debug {
			_, _ = fmt.Printf("Opening device: %s\n", cfg.devicePath)
		}
		transport, err = newTransport(cfg.devicePath)
	}
	if err != nil {
		return nil, err
	}

	device, err := mfrc522.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if err := device.Init(); err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("failed to initialize chip: %w", err)
	}

	if cfg.debug {
		if version, versionErr := device.Version(); versionErr == nil {
			_, _ = fmt.Printf("MFRC522 version: 0x%02X\n", version)
		}
	}

	return device, nil
}

func requestMode(cfg *config) mfrc522.RequestMode {
	if cfg.wake {
		return mfrc522.RequestAll
	}
	return mfrc522.RequestIdle
}

func runMonitorMode(ctx context.Context, device *mfrc522.Device, cfg *config) error {
	sessionConfig := polling.DefaultConfig()
	sessionConfig.RequestMode = requestMode(cfg)
	session := polling.NewSession(device, sessionConfig)
	defer func() {
		if err := session.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
	}()

	_, _ = fmt.Println("Monitoring for cards. Press Ctrl+C to stop...")

	session.OnCardDetected = func(card *mfrc522.DetectedCard) error {
		_, _ = fmt.Printf("Card detected: UID=%s ATQA=0x%02X\n", card.UID, byte(card.Type))
		return nil
	}
	session.OnCardChanged = func(card *mfrc522.DetectedCard) error {
		_, _ = fmt.Printf("Card changed: UID=%s ATQA=0x%02X\n", card.UID, byte(card.Type))
		return nil
	}
	session.OnCardRemoved = func() {
		_, _ = fmt.Println("Card removed - ready for next card...")
	}

	// Start the session in a goroutine to allow for immediate cancellation
	done := make(chan error, 1)
	go func() {
		done <- session.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("polling session failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runOnceMode(ctx context.Context, device *mfrc522.Device, cfg *config) error {
	_, _ = fmt.Fprintln(os.Stderr, "Waiting for a card...")

	mode := requestMode(cfg)
	deadline := time.Now().Add(cfg.timeout)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return errors.New("timeout waiting for card")
		}

		card, err := device.DetectCard(mode)
		if err != nil {
			if errors.Is(err, mfrc522.ErrNoCardFound) || errors.Is(err, mfrc522.ErrNoUIDFound) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("card detection failed: %w", err)
		}

		// UID on stdout only, so scripts can consume it cleanly
		_, _ = fmt.Println(card.UID)
		return nil
	}
}

func run(ctx context.Context, cfg *config) error {
	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	if cfg.once {
		return runOnceMode(ctx, device, cfg)
	}
	return runMonitorMode(ctx, device, cfg)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
