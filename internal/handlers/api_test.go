package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"flatex_bot/internal/chat"
	"flatex_bot/internal/database"
	"flatex_bot/internal/services"
	"flatex_bot/internal/session"
)

type echoRunner struct {
	sender, input string
}

func (e *echoRunner) Execute(ctx context.Context, sender, input string, out chat.Replier) {
	e.sender, e.input = sender, input
	out.SendHTML(ctx, "<pre>"+input+"</pre>")
}

type fixedStatus session.DebugInfo

func (f fixedStatus) DebugInfo() session.DebugInfo { return session.DebugInfo(f) }

func setupRouter(t *testing.T, token string) (http.Handler, *echoRunner, *services.AuditService) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runner := &echoRunner{}
	audit := services.NewAuditService(db, nil)
	deps := NewDependencies().
		WithCommands(runner).
		WithStatus(fixedStatus{State: "ready", Running: true, HasSession: true, Authorized: true}).
		WithAuditService(audit).
		WithWebhookToken(token)
	deps.RateBurst = 100
	return NewRouter(ctx, deps), runner, audit
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	rec := do(h, "GET", "/health", "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("GET /health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	rec := do(h, "GET", "/status", "", "")

	var info session.DebugInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.State != "ready" || !info.Authorized || info.HasCashAccount {
		t.Errorf("status = %+v", info)
	}
}

func TestCommands(t *testing.T) {
	h, runner, _ := setupRouter(t, "s3cret")

	rec := do(h, "POST", "/commands", "s3cret", `{"command":"orders open\u200b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /commands = %d %s", rec.Code, rec.Body.String())
	}
	var resp CommandResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if runner.input != "orders open" || runner.sender != "webhook" {
		t.Errorf("runner got %q from %q", runner.input, runner.sender)
	}
	if len(resp.Replies) != 1 || resp.Replies[0].Format != "html" || resp.Replies[0].Body != "<pre>orders open</pre>" {
		t.Errorf("replies = %+v", resp.Replies)
	}
}

func TestCommands_Rejected(t *testing.T) {
	h, _, _ := setupRouter(t, "s3cret")

	tests := []struct {
		name  string
		token string
		body  string
		want  int
	}{
		{"no token", "", `{"command":"balance"}`, http.StatusUnauthorized},
		{"wrong token", "guess", `{"command":"balance"}`, http.StatusUnauthorized},
		{"bad json", "s3cret", `{"command":`, http.StatusBadRequest},
		{"blank command", "s3cret", `{"command":"   "}`, http.StatusBadRequest},
		{"too long", "s3cret", `{"command":"` + strings.Repeat("x", maxCommandLength+1) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(h, "POST", "/commands", tt.token, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCommands_DisabledWithoutToken(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	if rec := do(h, "POST", "/commands", "anything", `{"command":"balance"}`); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAudit(t *testing.T) {
	h, _, audit := setupRouter(t, "s3cret")
	audit.Record(services.AuditPlaceOrder, "@alice:example.org", "4711", "DE0005140008", nil, nil)
	audit.Record(services.AuditCancelOrder, "@alice:example.org", "4711", "", nil, nil)
	audit.Record(services.AuditAuthorize, "webhook", "", "", nil, nil)

	rec := do(h, "GET", "/audit?limit=2", "s3cret", "")
	var entries []services.AuditEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Action != services.AuditAuthorize {
		t.Errorf("GET /audit = %+v", entries)
	}

	rec = do(h, "GET", "/audit?order_id=4711", "s3cret", "")
	entries = nil
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Action != services.AuditPlaceOrder {
		t.Errorf("GET /audit?order_id = %+v", entries)
	}

	if rec := do(h, "GET", "/audit?limit=0", "s3cret", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}
}
