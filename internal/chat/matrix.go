package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	apiPrefix    = "/_matrix/client/v3"
	syncTimeout  = 30 * time.Second
	retryBackoff = 5 * time.Second
	msgTypeText  = "m.text"
	formatHTML   = "org.matrix.custom.html"
	eventMessage = "m.room.message"
)

// ErrNotConnected is returned when sending before Connect.
var ErrNotConnected = errors.New("matrix: not connected")

// TokenStore persists the sync position across restarts.
type TokenStore interface {
	LoadSyncToken() (string, error)
	SaveSyncToken(token string) error
}

// MatrixConfig configures the Matrix transport.
type MatrixConfig struct {
	HomeServerURL string
	AccessToken   string
	RoomID        string
}

// Matrix is a Transport on the Matrix client-server API. It listens to a
// single room and ignores its own messages.
type Matrix struct {
	client  *resty.Client
	roomID  string
	tokens  TokenStore
	handler Handler
	logger  *zap.Logger

	mu       sync.Mutex
	userID   string
	cancel   context.CancelFunc
	done     chan struct{}
	handlers sync.WaitGroup
}

var _ Transport = (*Matrix)(nil)

// NewMatrix creates a Matrix transport delivering room messages to handler.
func NewMatrix(cfg MatrixConfig, tokens TokenStore, handler Handler, logger *zap.Logger) *Matrix {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetBaseURL(cfg.HomeServerURL + apiPrefix)
	client.SetAuthToken(cfg.AccessToken)
	client.SetTimeout(syncTimeout + 15*time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &Matrix{
		client:  client,
		roomID:  cfg.RoomID,
		tokens:  tokens,
		handler: handler,
		logger:  logger.Named("matrix"),
	}
}

type matrixError struct {
	ErrCode string `json:"errcode"`
	Message string `json:"error"`
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]struct {
			Timeline struct {
				Events []roomEvent `json:"events"`
			} `json:"timeline"`
		} `json:"join"`
		Invite map[string]json.RawMessage `json:"invite"`
	} `json:"rooms"`
}

type roomEvent struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	EventID string `json:"event_id"`
	Content struct {
		MsgType string `json:"msgtype"`
		Body    string `json:"body"`
	} `json:"content"`
}

// Connect resolves the bot's user id and starts the sync loop. Without a
// stored sync token the backlog is skipped so old commands are not replayed.
// The lock is only taken to publish the loop, so sends are not held up by
// the initial sync.
func (m *Matrix) Connect(ctx context.Context) error {
	if m.connected() {
		return nil
	}

	var who struct {
		UserID string `json:"user_id"`
	}
	if err := m.call(ctx, m.client.R().SetResult(&who), "GET", "/account/whoami"); err != nil {
		return fmt.Errorf("resolving user id: %w", err)
	}

	since, err := m.tokens.LoadSyncToken()
	if err != nil {
		return fmt.Errorf("loading sync token: %w", err)
	}
	if since == "" {
		initial, err := m.sync(ctx, "", 0)
		if err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
		m.joinInvites(ctx, initial)
		since = initial.NextBatch
		m.saveToken(since)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.userID = who.UserID
	m.cancel, m.done = cancel, done
	go m.loop(loopCtx, who.UserID, since, done)

	m.logger.Info("connected", zap.String("user", m.userID), zap.String("room", m.roomID))
	return nil
}

func (m *Matrix) connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Disconnect stops the sync loop and waits for running handlers.
func (m *Matrix) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	stopped := make(chan struct{})
	go func() {
		<-done
		m.handlers.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		m.logger.Info("disconnected")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendText posts a plain text message to the room.
func (m *Matrix) SendText(ctx context.Context, text string) error {
	return m.send(ctx, map[string]string{
		"msgtype": msgTypeText,
		"body":    text,
	})
}

// SendHTML posts an HTML message with a plain text fallback.
func (m *Matrix) SendHTML(ctx context.Context, html string) error {
	return m.send(ctx, map[string]string{
		"msgtype":        msgTypeText,
		"body":           PlainText(html),
		"format":         formatHTML,
		"formatted_body": html,
	})
}

func (m *Matrix) send(ctx context.Context, content map[string]string) error {
	m.mu.Lock()
	connected := m.userID != ""
	m.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	req := m.client.R().
		SetPathParams(map[string]string{
			"room": m.roomID,
			"txn":  uuid.NewString(),
		}).
		SetBody(content)
	return m.call(ctx, req, "PUT", "/rooms/{room}/send/"+eventMessage+"/{txn}")
}

func (m *Matrix) loop(ctx context.Context, self, since string, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		resp, err := m.sync(ctx, since, syncTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("sync failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
			continue
		}

		m.joinInvites(ctx, resp)
		m.dispatch(ctx, self, resp)
		since = resp.NextBatch
		m.saveToken(since)
	}
}

func (m *Matrix) sync(ctx context.Context, since string, timeout time.Duration) (*syncResponse, error) {
	var out syncResponse
	req := m.client.R().
		SetQueryParam("timeout", strconv.FormatInt(timeout.Milliseconds(), 10)).
		SetResult(&out)
	if since != "" {
		req.SetQueryParam("since", since)
	}
	if err := m.call(ctx, req, "GET", "/sync"); err != nil {
		return nil, err
	}
	return &out, nil
}

// dispatch hands text messages of the configured room to the handler,
// skipping the bot's own messages.
func (m *Matrix) dispatch(ctx context.Context, self string, resp *syncResponse) {
	room, ok := resp.Rooms.Join[m.roomID]
	if !ok {
		return
	}
	for _, ev := range room.Timeline.Events {
		if ev.Type != eventMessage || ev.Content.Body == "" || ev.Sender == self {
			continue
		}
		sender, body := ev.Sender, Sanitize(ev.Content.Body)
		m.handlers.Add(1)
		go func() {
			defer m.handlers.Done()
			m.handler(ctx, sender, body)
		}()
	}
}

func (m *Matrix) joinInvites(ctx context.Context, resp *syncResponse) {
	if _, invited := resp.Rooms.Invite[m.roomID]; !invited {
		return
	}
	req := m.client.R().SetPathParam("room", m.roomID).SetBody(map[string]any{})
	if err := m.call(ctx, req, "POST", "/rooms/{room}/join"); err != nil {
		m.logger.Warn("joining room failed", zap.Error(err))
	}
}

func (m *Matrix) saveToken(token string) {
	if err := m.tokens.SaveSyncToken(token); err != nil {
		m.logger.Warn("saving sync token failed", zap.Error(err))
	}
}

func (m *Matrix) call(ctx context.Context, req *resty.Request, method, path string) error {
	var apiErr matrixError
	resp, err := req.SetContext(ctx).SetError(&apiErr).Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if apiErr.ErrCode != "" {
			return fmt.Errorf("matrix %s %s: %s %s", method, path, apiErr.ErrCode, apiErr.Message)
		}
		return fmt.Errorf("matrix %s %s: status %d", method, path, resp.StatusCode())
	}
	return nil
}
