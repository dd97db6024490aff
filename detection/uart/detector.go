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

// Package uart detects MFRC522 readers behind USB-serial bridges.
package uart

import (
	"context"
	"strings"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
)

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect searches for MFRC522 readers on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts()
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	filtered := d.filterPorts(ports, opts)
	devices := d.processPortsToDevices(ctx, filtered, opts)

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts removes blocked and ignored devices from the port list
func (*detector) filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPortsToDevices converts ports to device infos with probing
func (d *detector) processPortsToDevices(ctx context.Context, ports []serialPort,
	opts *detection.Options,
) []detection.DeviceInfo {
	var devices []detection.DeviceInfo

	for i := range ports {
		select {
		case <-ctx.Done():
			return devices
		default:
		}

		device, shouldInclude := d.processPort(ctx, &ports[i], opts)
		if shouldInclude {
			devices = append(devices, device)
		}
	}

	return devices
}

// processPort handles a single port's detection logic
func (d *detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	confidence, shouldProbe := determinePortHandling(port, opts.Mode)

	// Skip port entirely in passive mode when nothing suggests a reader
	if opts.Mode == detection.Passive && confidence == 0 {
		return detection.DeviceInfo{}, false
	}

	device := createDeviceInfo(port, confidence)

	if shouldProbe {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		probeSuccess := probeDeviceFn(probeCtx, port.Path, opts.Mode)
		cancel()

		switch {
		case probeSuccess:
			device.Confidence = detection.High
		case opts.Mode == detection.Safe:
			// A device that doesn't answer the version read is not a
			// reader, however promising its USB descriptor looks.
			// Returning it anyway blocks real readers that enumerate later.
			return detection.DeviceInfo{}, false
		}
	}

	return device, true
}

// determinePortHandling decides confidence level and whether to probe based on mode
func determinePortHandling(port *serialPort, mode detection.Mode) (detection.Confidence, bool) {
	switch mode {
	case detection.Passive:
		if isLikelyReader(port) {
			return detection.Medium, false
		}
		return 0, false // Signal to skip this port

	case detection.Safe:
		if isLikelyReader(port) {
			return detection.Medium, true
		}
		return detection.Low, true

	case detection.Full:
		return detection.Low, true

	default:
		return detection.Low, false
	}
}

// createDeviceInfo builds a DeviceInfo struct from port data
func createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}

	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// isLikelyReader checks if a serial port looks like an MFRC522 breakout
func isLikelyReader(port *serialPort) bool {
	// USB-serial bridges commonly soldered onto RC522 UART boards
	knownBridges := []string{
		"067B:2303", // Prolific PL2303
		"0403:6001", // FTDI FT232
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
	}

	upperVIDPID := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if upperVIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	for _, keyword := range []string{"mfrc522", "rc522", "rfid", "13.56"} {
		if strings.Contains(lowerProduct, keyword) {
			return true
		}
	}

	return false
}

// probeDeviceFn is swappable for tests.
var probeDeviceFn = probeDevice

// probeDevice attempts to communicate with a device to verify it's an MFRC522.
//
// NO RETRY POLICY: a single attempt only. Retrying failed connections during
// auto-detection could stress devices that are not actually readers and drag
// out the detection phase. Connection retries belong at the device level for
// known reader paths.
func probeDevice(_ context.Context, path string, mode detection.Mode) bool {
	transport, err := uart.New(path)
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
		return version != 0x00 && version != 0xFF

	case detection.Full:
		return device.Init() == nil

	default:
		return false
	}
}
