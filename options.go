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

package mfrc522

import (
	"fmt"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithPollBudget overrides the completion poll budget of the command
// executor. The default is DefaultPollBudget; values below 1 are rejected.
func WithPollBudget(budget int) Option {
	return func(d *Device) error {
		if budget < 1 {
			return fmt.Errorf("poll budget must be at least 1, got %d", budget)
		}
		d.config.PollBudget = budget
		return nil
	}
}

// WithRetryConfig sets the retry configuration for the device
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.config.RetryConfig = config
		if tr, ok := d.transport.(*TransportWithRetry); ok {
			tr.SetRetryConfig(config)
		}
		return nil
	}
}

// WithMaxRetries sets the maximum number of retries for bus operations
func WithMaxRetries(maxAttempts int) Option {
	return func(device *Device) error {
		if device.config.RetryConfig == nil {
			device.config.RetryConfig = DefaultRetryConfig()
		}
		device.config.RetryConfig.MaxAttempts = maxAttempts
		if tr, ok := device.transport.(*TransportWithRetry); ok {
			tr.SetRetryConfig(device.config.RetryConfig)
		}
		return nil
	}
}

// WithRetryBackoff sets the initial backoff duration for retries
func WithRetryBackoff(initialBackoff time.Duration) Option {
	return func(device *Device) error {
		if device.config.RetryConfig == nil {
			device.config.RetryConfig = DefaultRetryConfig()
		}
		device.config.RetryConfig.InitialBackoff = initialBackoff
		if tr, ok := device.transport.(*TransportWithRetry); ok {
			tr.SetRetryConfig(device.config.RetryConfig)
		}
		return nil
	}
}
