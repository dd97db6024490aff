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
	"os"
	"strings"
)

// debugEnabled controls whether debug logging is active
var debugEnabled = false

func init() {
	// Enable debug logging if the environment asks for it
	if os.Getenv("MFRC522_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// SetDebugEnabled allows programmatic control of debug logging.
// Useful for testing or application-controlled debug modes.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// Debugf prints debug information when debug mode is enabled
func Debugf(format string, args ...any) {
	if debugEnabled {
		_, _ = fmt.Printf("DEBUG: %s\n", fmt.Sprintf(format, args...))
	}
}

// Debugln prints debug information when debug mode is enabled
func Debugln(args ...any) {
	if debugEnabled {
		_, _ = fmt.Print("DEBUG: ")
		_, _ = fmt.Println(args...)
	}
}

// formatHexBytes renders a byte slice as space-separated hex for debug output
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// debugf and debugln are the package-internal logging helpers
func debugf(format string, args ...any) { Debugf(format, args...) }
func debugln(args ...any)               { Debugln(args...) }
