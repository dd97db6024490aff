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

// Package polling provides continuous card monitoring on top of a Device.
// A Session polls for cards at a fixed interval, tracks presence with a
// removal timer, and reports detections through callbacks.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// Session handles continuous card monitoring with a state machine
type Session struct {
	// OnCardDetected fires when a card first enters the field
	OnCardDetected func(card *mfrc522.DetectedCard) error
	// OnCardRemoved fires when the removal timer expires with no card seen
	OnCardRemoved func()
	// OnCardChanged fires when a different card replaces the current one
	OnCardChanged func(card *mfrc522.DetectedCard) error

	config     *Config
	device     *mfrc522.Device
	recoverer  DeviceRecoverer
	pauseChan  chan struct{}
	resumeChan chan struct{}
	ackChan    chan struct{}
	lastCycle  time.Time
	state      CardState
	stateMutex syncutil.RWMutex
	execMutex  syncutil.Mutex
	closed     atomic.Bool
	isPaused   atomic.Bool
}

// NewSession creates a new card monitoring session
func NewSession(device *mfrc522.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RequestMode == 0 {
		config.RequestMode = mfrc522.RequestIdle
	}
	return &Session{
		device: device,
		config: config,
		recoverer: NewDefaultRecoverer(device, nil,
			config.SleepRecovery.RecoveryBackoff,
			config.SleepRecovery.MaxRecoveryAttempts),
		state:      CardState{},
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		ackChan:    make(chan struct{}, 1),
	}
}

// Start begins continuous monitoring for cards. It blocks until ctx is
// cancelled or an unrecoverable error occurs.
func (s *Session) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.handleContextAndPause(ctx); err != nil {
			return err
		}

		s.checkSleepRecovery(ctx)

		if err := s.executePollingCycle(ctx); err != nil {
			return err
		}

		if err := s.waitForNextPollOrPause(ctx, ticker); err != nil {
			return err
		}
	}
}

// GetState returns the current card state
func (s *Session) GetState() CardState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// GetDevice returns the underlying device
func (s *Session) GetDevice() *mfrc522.Device {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.device
}

// SetRecoverer replaces the default sleep/wake recoverer. Useful when the
// caller can reopen the transport from scratch.
func (s *Session) SetRecoverer(r DeviceRecoverer) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.recoverer = r
}

// SetOnCardDetected sets the callback for when a card is detected.
func (s *Session) SetOnCardDetected(callback func(*mfrc522.DetectedCard) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardDetected = callback
}

// SetOnCardRemoved sets the callback for when a card is removed.
func (s *Session) SetOnCardRemoved(callback func()) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardRemoved = callback
}

// SetOnCardChanged sets the callback for when the card changes.
func (s *Session) SetOnCardChanged(callback func(*mfrc522.DetectedCard) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardChanged = callback
}

// Close cleans up the session resources
func (s *Session) Close() error {
	// Mark session as closed to prevent timer callbacks from executing
	s.closed.Store(true)

	s.stateMutex.Lock()
	if s.state.RemovalTimer != nil {
		safeTimerStop(s.state.RemovalTimer)
		s.state.RemovalTimer = nil
	}
	s.stateMutex.Unlock()

	s.isPaused.Store(false)

	// Drain pause/resume channels to prevent future state corruption
	select {
	case <-s.pauseChan:
	default:
	}
	select {
	case <-s.resumeChan:
	default:
	}

	return nil
}

// Pause temporarily stops the polling loop.
// This is used to coordinate exclusive device access.
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		// Non-blocking send for when no loop is running; the isPaused
		// flag carries the state either way.
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts the polling loop after a pause
func (s *Session) Resume() {
	if s.isPaused.CompareAndSwap(true, false) {
		select {
		case s.resumeChan <- struct{}{}:
		default:
		}
	}
}

// pauseWithAck pauses polling and waits for acknowledgment
func (s *Session) pauseWithAck(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if s.isPaused.Load() {
		return nil
	}
	if !s.isPaused.CompareAndSwap(false, true) {
		return nil // Another goroutine beat us to it
	}

	select {
	case s.pauseChan <- struct{}{}:
		// Wait for the polling goroutine to acknowledge, with a timeout
		// for when no loop is running.
		ackTimeout := time.NewTimer(100 * time.Millisecond)
		defer ackTimeout.Stop()

		select {
		case <-s.ackChan:
			return nil
		case <-ackTimeout.C:
			return nil
		case <-ctx.Done():
			s.isPaused.Store(false)
			return ctx.Err()
		}
	case <-ctx.Done():
		s.isPaused.Store(false)
		return ctx.Err()
	default:
		return nil
	}
}

// WithDevice runs fn with exclusive access to the device, pausing the
// polling loop for the duration. The Device is not safe for concurrent
// use, so any direct register traffic from outside the session must go
// through here while polling is active.
func (s *Session) WithDevice(ctx context.Context, fn func(*mfrc522.Device) error) error {
	s.execMutex.Lock()
	defer s.execMutex.Unlock()

	if err := s.pauseWithAck(ctx); err != nil {
		return fmt.Errorf("failed to pause polling: %w", err)
	}
	defer s.Resume()

	return fn(s.GetDevice())
}

// WaitForCard blocks until a card is detected or the timeout expires,
// then runs fn with exclusive device access while the card is present.
func (s *Session) WaitForCard(
	ctx context.Context,
	timeout time.Duration,
	fn func(*mfrc522.Device, *mfrc522.DetectedCard) error,
) error {
	s.execMutex.Lock()
	defer s.execMutex.Unlock()

	if err := s.pauseWithAck(ctx); err != nil {
		return fmt.Errorf("failed to pause polling: %w", err)
	}
	defer s.Resume()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		card, err := s.performSinglePoll()
		if err == nil {
			return fn(s.GetDevice(), card)
		}
		if !errors.Is(err, ErrNoCardInPoll) {
			return fmt.Errorf("card detection failed: %w", err)
		}

		select {
		case <-ticker.C:
			continue
		case <-timeoutCtx.Done():
			if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
				return errors.New("timeout waiting for card")
			}
			return timeoutCtx.Err()
		}
	}
}

// checkSleepRecovery reinitializes the chip if the gap since the last poll
// cycle indicates the host slept. The MFRC522 keeps no state across a power
// dip, so the timer and modulation registers need to be rewritten.
func (s *Session) checkSleepRecovery(ctx context.Context) {
	now := time.Now()
	last := s.lastCycle
	s.lastCycle = now

	if last.IsZero() {
		return
	}
	if !s.config.SleepRecovery.DetectSleep(now.Sub(last), s.config.PollInterval) {
		return
	}

	s.stateMutex.RLock()
	recoverer := s.recoverer
	s.stateMutex.RUnlock()
	if recoverer == nil {
		return
	}

	if err := recoverer.AttemptRecovery(ctx); err != nil {
		mfrc522.Debugf("polling: sleep recovery failed: %v", err)
		return
	}

	s.stateMutex.Lock()
	s.device = recoverer.GetDevice()
	s.stateMutex.Unlock()
}

// executePollingCycle performs one polling cycle and processes results
func (s *Session) executePollingCycle(ctx context.Context) error {
	card, err := s.performSinglePoll()
	if err != nil {
		if !errors.Is(err, ErrNoCardInPoll) {
			s.handlePollingError(ctx, err)
		}
		return nil
	}

	if err := s.processPollingResults(card); err != nil {
		return fmt.Errorf("callback error during polling: %w", err)
	}
	return nil
}

// waitForNextPollOrPause waits for the next poll interval or handles pause signals
func (s *Session) waitForNextPollOrPause(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ticker.C:
		return nil
	case <-s.pauseChan:
		return s.handlePauseSignal(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handlePauseSignal sends acknowledgment and waits for resume
func (s *Session) handlePauseSignal(ctx context.Context) error {
	select {
	case s.ackChan <- struct{}{}:
	default:
	}
	return s.waitForResume(ctx)
}

func (s *Session) handleContextAndPause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.pauseChan:
		return s.handlePauseSignal(ctx)
	default:
		return nil
	}
}

func (s *Session) waitForResume(ctx context.Context) error {
	select {
	case <-s.resumeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// performSinglePoll performs a single card detection cycle
func (s *Session) performSinglePoll() (*mfrc522.DetectedCard, error) {
	card, err := s.GetDevice().DetectCard(s.config.RequestMode)
	if err != nil {
		// An empty field is the normal case, not an error.
		if errors.Is(err, mfrc522.ErrNoCardFound) || errors.Is(err, mfrc522.ErrNoUIDFound) {
			return nil, ErrNoCardInPoll
		}
		return nil, fmt.Errorf("card detection failed: %w", err)
	}
	return card, nil
}

// handlePollingError handles errors from polling operations
func (s *Session) handlePollingError(ctx context.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return
	}

	// Serious device errors look like a removal from the caller's side.
	s.handleCardRemoval()

	if mfrc522.IsFatal(err) {
		s.stateMutex.RLock()
		recoverer := s.recoverer
		s.stateMutex.RUnlock()
		if recoverer == nil {
			return
		}
		if recoveryErr := recoverer.AttemptRecovery(ctx); recoveryErr != nil {
			mfrc522.Debugf("polling: device recovery failed: %v", recoveryErr)
			return
		}
		s.stateMutex.Lock()
		s.device = recoverer.GetDevice()
		s.stateMutex.Unlock()
	}
}

// handleCardRemoval handles card removal state changes
func (s *Session) handleCardRemoval() {
	// Bail out if session is closed to prevent timer callbacks from
	// executing after cleanup
	if s.closed.Load() {
		return
	}

	s.stateMutex.Lock()
	// If we're in reading state, a new poll cycle is actively processing.
	// This handles the edge case where timer.Stop() returned false (the
	// callback already spawned) but the callback runs after
	// TransitionToReading() released the lock.
	if s.state.DetectionState == StateReading {
		s.stateMutex.Unlock()
		return
	}
	wasPresent := s.state.Present
	if wasPresent {
		s.state.TransitionToIdle()
	}
	onRemoved := s.OnCardRemoved
	s.stateMutex.Unlock()

	// Call the callback outside the lock to avoid potential deadlocks
	if wasPresent && onRemoved != nil {
		onRemoved()
	}
}

// processPollingResults processes the detected card and returns any callback errors
func (s *Session) processPollingResults(card *mfrc522.DetectedCard) error {
	if card == nil {
		return nil
	}

	// Stop any existing removal timer and transition to reading state
	// BEFORE calling callbacks, so a stale timer cannot fire mid-callback.
	s.stateMutex.Lock()
	s.state.TransitionToReading()
	s.stateMutex.Unlock()

	cardChanged, err := s.updateCardState(card)
	if err != nil {
		return err
	}

	// After callbacks complete, arm the appropriate timer for this card
	s.stateMutex.Lock()
	if cardChanged {
		s.state.TransitionToPostReadGrace(s.config.CardRemovalTimeout, func() {
			s.handleCardRemoval()
		})
	} else {
		s.state.TransitionToDetected(s.config.CardRemovalTimeout, func() {
			s.handleCardRemoval()
		})
	}
	s.stateMutex.Unlock()

	return nil
}

// safeCallCallback executes a callback with panic recovery
func (*Session) safeCallCallback(
	callback func(*mfrc522.DetectedCard) error,
	card *mfrc522.DetectedCard,
	callbackName string,
) error {
	var callbackErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callbackErr = fmt.Errorf("%s callback panicked: %v", callbackName, r)
			}
		}()
		callbackErr = callback(card)
	}()
	if callbackErr != nil {
		return fmt.Errorf("%s callback failed: %w", callbackName, callbackErr)
	}
	return nil
}

// updateCardState updates the card state and returns whether the card changed
// along with any callback error
func (s *Session) updateCardState(card *mfrc522.DetectedCard) (bool, error) {
	currentUID := card.UID.String()

	// Capture state and callbacks under lock to avoid races
	s.stateMutex.RLock()
	wasPresent := s.state.Present
	wasChanged := wasPresent && s.state.LastUID != currentUID
	onDetected := s.OnCardDetected
	onChanged := s.OnCardChanged
	s.stateMutex.RUnlock()

	// Call callbacks outside of lock with panic recovery
	if !wasPresent && onDetected != nil {
		if err := s.safeCallCallback(onDetected, card, "OnCardDetected"); err != nil {
			return false, err
		}
	} else if wasChanged && onChanged != nil {
		if err := s.safeCallCallback(onChanged, card, "OnCardChanged"); err != nil {
			return false, err
		}
	}

	// Update state under lock
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	if !wasPresent || wasChanged {
		s.state.Present = true
		s.state.LastUID = currentUID
		s.state.LastType = fmt.Sprintf("0x%02X", byte(card.Type))
		return true, nil
	}

	return false, nil
}
