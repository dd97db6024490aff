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

// Package spi detects MFRC522 readers on SPI buses.
package spi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
)

// Config represents SPI device configuration
type Config struct {
	// Additional metadata
	Metadata map[string]string `json:"metadata,omitempty"`
	// Device path (e.g., "/dev/spidev0.0")
	Device string `json:"device"`
	// Human-readable name
	Name string `json:"name,omitempty"`
}

// detector implements the Detector interface for SPI devices
type detector struct{}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// Detect searches for MFRC522 readers on SPI buses
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	configs := gatherConfigs()
	if len(configs) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, config := range configs {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		if detection.IsPathIgnored(config.Device, opts.IgnorePaths) {
			continue
		}

		device := createDeviceInfo(config)
		if opts.Mode == detection.Passive {
			devices = append(devices, device)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		confirmed := probeDevice(probeCtx, config.Device, opts.Mode)
		cancel()
		if confirmed {
			device.Confidence = detection.High
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// gatherConfigs collects SPI configurations from config file, environment
// and the standard Linux spidev paths
func gatherConfigs() []Config {
	var configs []Config

	if fileConfigs := loadConfigFile(); fileConfigs != nil {
		configs = append(configs, fileConfigs...)
	}
	if envConfig := loadEnvConfig(); envConfig != nil {
		configs = append(configs, *envConfig)
	}
	configs = append(configs, globSPIDevices()...)

	return deduplicateConfigs(configs)
}

// createDeviceInfo creates a DeviceInfo from a Config
func createDeviceInfo(config Config) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "spi",
		Path:       config.Device,
		Name:       config.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	for k, v := range config.Metadata {
		device.Metadata[k] = v
	}
	if device.Name == "" {
		device.Name = fmt.Sprintf("SPI device at %s", config.Device)
	}
	return device
}

// loadConfigFile loads SPI configurations from a JSON file
func loadConfigFile() []Config {
	configPaths := []string{
		"mfrc522-spi.json",
		".mfrc522-spi.json",
		filepath.Join(os.Getenv("HOME"), ".config", "mfrc522", "spi.json"),
		"/etc/mfrc522/spi.json",
	}

	for _, path := range configPaths {
		// #nosec G304 -- paths are hardcoded above, not user input
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var configs []Config
		if err := json.Unmarshal(data, &configs); err != nil {
			// Try single config format
			var config Config
			if err := json.Unmarshal(data, &config); err == nil {
				return []Config{config}
			}
			continue
		}
		return configs
	}

	return nil
}

// loadEnvConfig loads SPI configuration from the environment
func loadEnvConfig() *Config {
	device := os.Getenv("MFRC522_SPI_DEVICE")
	if device == "" {
		return nil
	}
	return &Config{
		Device: device,
		Name:   "SPI device from environment",
	}
}

// globSPIDevices returns the spidev character devices present on the system
func globSPIDevices() []Config {
	var configs []Config

	matches, err := filepath.Glob("/dev/spidev*")
	if err != nil {
		return configs
	}

	for _, path := range matches {
		if _, err := os.Stat(path); err == nil {
			configs = append(configs, Config{
				Device: path,
				Name:   fmt.Sprintf("SPI device %s", filepath.Base(path)),
			})
		}
	}
	return configs
}

// deduplicateConfigs removes duplicate SPI configurations
func deduplicateConfigs(configs []Config) []Config {
	seen := make(map[string]bool)
	var unique []Config

	for _, config := range configs {
		if !seen[config.Device] {
			seen[config.Device] = true
			unique = append(unique, config)
		}
	}
	return unique
}

// probeDevice attempts to verify an SPI device is an MFRC522 by reading
// its version register through a real transport. A single attempt only;
// retrying against devices that are not readers just stalls detection.
func probeDevice(_ context.Context, path string, mode detection.Mode) bool {
	transport, err := spi.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	device, err := mfrc522.New(transport)
	if err != nil {
		return false
	}

	switch mode {
	case detection.Passive:
		return false

	case detection.Safe:
		version, err := device.Version()
		if err != nil {
			return false
		}
		// 0x00 and 0xFF mean a floating or shorted bus, not a chip.
		return version != 0x00 && version != 0xFF

	case detection.Full:
		// Full init exercises the timer, modulation and antenna registers.
		return device.Init() == nil

	default:
		return false
	}
}
