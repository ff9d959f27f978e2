package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"flatex_bot/internal/broker/flatex"
)

func connectedManager(t *testing.T, proto *fakeProtocol, codeFn CodeFunc) (*Manager, *Store) {
	t.Helper()
	m, store := newTestManager(t, proto, codeFn)
	runTick(m)
	if !store.Has(KeySessionID) {
		t.Fatal("setup: no session")
	}
	return m, store
}

func TestAuthorize_CodeArrivesInTime(t *testing.T) {
	proto := newFakeProtocol()
	m, store := connectedManager(t, proto, func(ctx context.Context) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "123456", nil
	})

	if err := m.Authorize(context.Background(), time.Second); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	pin, ok, _ := store.Get(KeyTransactionPin)
	if !ok || flatex.Digest(pin) != flatex.Hash("123456") {
		t.Errorf("stored PIN = %q, want digest", pin)
	}
	if !m.IsAuthorized() {
		t.Error("IsAuthorized() = false after Authorize")
	}
}

func TestAuthorize_TimeoutDiscardsLateCode(t *testing.T) {
	proto := newFakeProtocol()
	late := make(chan struct{})
	m, store := connectedManager(t, proto, func(ctx context.Context) (string, error) {
		defer close(late)
		time.Sleep(150 * time.Millisecond)
		return "123456", nil
	})

	start := time.Now()
	err := m.Authorize(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, ErrAuthorizationTimeout) {
		t.Fatalf("Authorize() error = %v, want ErrAuthorizationTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 120*time.Millisecond {
		t.Errorf("Authorize() returned after %v, want near the timeout", elapsed)
	}

	<-late
	if store.Has(KeyTransactionPin) {
		t.Error("late code must not set the PIN")
	}
	if proto.count("confirm-auth") != 0 {
		t.Error("late code must not be confirmed")
	}
}

func TestAuthorize_CollectorHonoursContext(t *testing.T) {
	proto := newFakeProtocol()
	m, _ := connectedManager(t, proto, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	if err := m.Authorize(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrAuthorizationTimeout) {
		t.Errorf("Authorize() error = %v, want ErrAuthorizationTimeout", err)
	}
}

func TestAuthorize_ConfirmFailureLeavesPinUnset(t *testing.T) {
	proto := newFakeProtocol()
	proto.confirmErr = &flatex.Error{Code: flatex.CodePINInvalid, Text: "pin invalid"}
	m, store := connectedManager(t, proto, func(ctx context.Context) (string, error) {
		return "000000", nil
	})

	err := m.Authorize(context.Background(), time.Second)
	if flatex.Code(err) != flatex.CodePINInvalid {
		t.Fatalf("Authorize() error = %v, want PIN invalid", err)
	}
	if store.Has(KeyTransactionPin) {
		t.Error("PIN must only be stored after confirmation")
	}
	if !store.Has(KeySessionID) {
		t.Error("a PIN failure must not clear the session")
	}
}

func TestAuthorize_SessionChangedDuringWait(t *testing.T) {
	proto := newFakeProtocol()
	var store *Store
	m, store := connectedManager(t, proto, func(ctx context.Context) (string, error) {
		store.Set(KeySessionID, "replaced")
		return "123456", nil
	})

	if err := m.Authorize(context.Background(), time.Second); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("Authorize() error = %v, want ErrSessionChanged", err)
	}
	if store.Has(KeyTransactionPin) {
		t.Error("PIN must not be stored for a replaced session")
	}
}

func TestAuthorize_InProgress(t *testing.T) {
	proto := newFakeProtocol()
	release := make(chan struct{})
	entered := make(chan struct{})
	m, _ := connectedManager(t, proto, func(ctx context.Context) (string, error) {
		close(entered)
		<-release
		return "123456", nil
	})

	errc := make(chan error, 1)
	go func() { errc <- m.Authorize(context.Background(), time.Second) }()
	<-entered

	if err := m.Authorize(context.Background(), time.Second); !errors.Is(err, ErrAuthorizationInProgress) {
		t.Errorf("second Authorize() error = %v, want ErrAuthorizationInProgress", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Errorf("first Authorize() error = %v", err)
	}
}

func TestAuthorize_EmptyCode(t *testing.T) {
	m, _ := connectedManager(t, newFakeProtocol(), func(ctx context.Context) (string, error) {
		return "  ", nil
	})
	if err := m.Authorize(context.Background(), time.Second); !errors.Is(err, ErrEmptyCode) {
		t.Errorf("Authorize() error = %v, want ErrEmptyCode", err)
	}
}

func TestAuthorize_NoCodeSource(t *testing.T) {
	m, _ := connectedManager(t, newFakeProtocol(), nil)
	if err := m.Authorize(context.Background(), time.Second); !errors.Is(err, ErrNoCodeSource) {
		t.Errorf("Authorize() error = %v, want ErrNoCodeSource", err)
	}
}
