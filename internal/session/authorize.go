package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"flatex_bot/internal/broker/flatex"
)

var (
	// ErrAuthorizationTimeout indicates the operator did not enter a code in time.
	ErrAuthorizationTimeout = errors.New("authorization timed out waiting for the code")

	// ErrAuthorizationInProgress indicates another authorization is waiting for a code.
	ErrAuthorizationInProgress = errors.New("authorization already in progress")

	// ErrSessionChanged indicates the session was replaced while authorizing.
	ErrSessionChanged = errors.New("session changed during authorization")

	// ErrNoCodeSource indicates no CodeFunc was configured.
	ErrNoCodeSource = errors.New("no code source configured")

	// ErrEmptyCode indicates the operator entered an empty code.
	ErrEmptyCode = errors.New("empty authorization code")
)

// Authorize runs the second-factor exchange: it requests a challenge, waits
// up to timeout for the operator's code and confirms it. The PIN digest is
// stored only after the server accepted it and only for the session it was
// confirmed against. A timeout <= 0 selects the configured default.
func (m *Manager) Authorize(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.authTimeout
	}
	if !m.authorizing.CompareAndSwap(false, true) {
		return ErrAuthorizationInProgress
	}
	defer m.authorizing.Store(false)

	sid, err := m.sessionID()
	if err != nil {
		return err
	}

	m.mu.Lock()
	codeFn := m.codeFn
	m.mu.Unlock()
	if codeFn == nil {
		return ErrNoCodeSource
	}

	challenge, err := m.client.RequestAuthCode(ctx, m.principal, sid, m.authMethod)
	if err != nil {
		return fmt.Errorf("requesting authorization code: %w", m.observe(sid, err))
	}

	code, err := awaitCode(ctx, codeFn, timeout)
	if err != nil {
		if errors.Is(err, ErrAuthorizationTimeout) {
			m.logger.Warn("authorization timed out", zap.Duration("timeout", timeout))
		}
		return err
	}

	pin := flatex.Hash(code)
	useCase := challenge.IdentificationUseCase.AuthUseCaseID
	if _, err := m.client.ConfirmAuthCode(ctx, m.principal, sid, pin, useCase, m.authMethod); err != nil {
		return fmt.Errorf("confirming authorization code: %w", m.observe(sid, err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok, err := m.store.Get(KeySessionID)
	if err != nil {
		return err
	}
	if !ok || current != sid {
		return ErrSessionChanged
	}
	if err := m.store.Set(KeyTransactionPin, string(pin)); err != nil {
		return err
	}
	m.logger.Info("authorization confirmed")
	return nil
}

// awaitCode races the code collector against timeout. The collector's
// context is cancelled once the race is decided, and a late code is dropped.
func awaitCode(ctx context.Context, codeFn CodeFunc, timeout time.Duration) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		code string
		err  error
	}
	resultChan := make(chan result, 1)
	go func() {
		code, err := codeFn(waitCtx)
		resultChan <- result{code: code, err: err}
	}()

	select {
	case r := <-resultChan:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return "", ErrAuthorizationTimeout
			}
			return "", r.err
		}
		code := strings.Join(strings.Fields(r.code), "")
		if code == "" {
			return "", ErrEmptyCode
		}
		return code, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrAuthorizationTimeout
	}
}
