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

package polling

import (
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
)

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the expected
	// poll interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep checks if the elapsed time since last poll indicates a system sleep.
// Returns true if elapsed time exceeds (pollInterval + TimeDiscontinuityThreshold).
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	expectedMax := pollInterval + cfg.TimeDiscontinuityThreshold
	return elapsed > expectedMax
}

// Config holds polling configuration options
type Config struct {
	// PollInterval is the delay between card detection attempts
	PollInterval time.Duration
	// CardRemovalTimeout is how long a card may go unseen before it is
	// reported as removed
	CardRemovalTimeout time.Duration
	// RequestMode selects REQA or WUPA for each poll. WUPA also addresses
	// halted cards.
	RequestMode mfrc522.RequestMode
	// SleepRecovery configures automatic recovery after host sleep/wake cycles.
	// The MFRC522 loses its timer and modulation registers when the host cuts
	// bus power, so recovery re-runs device initialization.
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       250 * time.Millisecond,
		CardRemovalTimeout: 600 * time.Millisecond,
		RequestMode:        mfrc522.RequestIdle,
		SleepRecovery:      DefaultSleepRecoveryConfig(),
	}
}
