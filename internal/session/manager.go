package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flatex_bot/internal/broker"
	"flatex_bot/internal/broker/flatex"
)

const (
	DefaultInterval    = 5 * time.Minute
	DefaultAuthTimeout = 30 * time.Second
)

var (
	// ErrNotConnected means no session id is stored.
	ErrNotConnected = errors.New("session id is not set")
	// ErrNoAccount means the account needed by an operation was not resolved.
	ErrNoAccount = errors.New("account is not resolved")
	// ErrNotAuthorized means no transaction PIN is stored.
	ErrNotAuthorized = errors.New("transaction PIN is not set")
)

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSessionInvalid
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSessionInvalid:
		return "session-invalid"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Protocol is the brokerage protocol as used by the Manager.
// *flatex.Client implements it.
type Protocol interface {
	Login(ctx context.Context, principal string, credential flatex.Digest) (*flatex.LogonResponse, error)
	Accounts(ctx context.Context, principal, sessionID string) (*flatex.PreparationResponse, error)
	Ping(ctx context.Context, sessionID string) error
	Balance(ctx context.Context, principal, sessionID string, cash flatex.Account) (*flatex.BalanceResponse, error)
	Portfolio(ctx context.Context, principal, sessionID string, depot flatex.Account) (*flatex.PortfolioResponse, error)
	Orders(ctx context.Context, principal, sessionID string, depot flatex.Account, archivedOnly, openOnly bool) (*flatex.OrderListResponse, error)
	RequestAuthCode(ctx context.Context, principal, sessionID, method string) (*flatex.SubmitCredentialResponse, error)
	ConfirmAuthCode(ctx context.Context, principal, sessionID string, pin flatex.Digest, useCaseID, method string) (*flatex.ConfirmAuthUseCaseResponse, error)
	Search(ctx context.Context, sessionID, query string) (*flatex.SearchPaperResponse, error)
	PlaceOrder(ctx context.Context, principal, sessionID string, pin flatex.Digest, depot, cash flatex.Account, args flatex.PlaceOrderArgs, method string) (*flatex.PlaceOrderResponse, error)
	CancelOrder(ctx context.Context, principal, sessionID string, pin flatex.Digest, depot flatex.Account, orderID, method string) (*flatex.CancelOrderResponse, error)
}

// CodeFunc collects a second-factor code from the operator. It must return
// when ctx is done.
type CodeFunc func(ctx context.Context) (string, error)

// Options configures a Manager.
type Options struct {
	Principal   string
	Credential  string
	Interval    time.Duration
	AuthTimeout time.Duration
	AuthMethod  string
	CodeFunc    CodeFunc
	Logger      *zap.Logger
}

// Manager owns the brokerage session: it logs in, keeps the session alive,
// resolves accounts and runs every operation against the current session.
type Manager struct {
	client      Protocol
	store       *Store
	principal   string
	credential  flatex.Digest
	interval    time.Duration
	authTimeout time.Duration
	authMethod  string
	codeFn      CodeFunc
	logger      *zap.Logger

	mu         sync.Mutex
	state      State
	stop       context.CancelFunc
	done       chan struct{}
	gen        uint64
	tickCancel context.CancelFunc

	authorizing atomic.Bool
}

var _ broker.Trader = (*Manager)(nil)

// NewManager creates a disconnected Manager.
func NewManager(client Protocol, store *Store, opts Options) *Manager {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}
	if opts.AuthMethod == "" {
		opts.AuthMethod = flatex.DefaultAuthMethod
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Manager{
		client:      client,
		store:       store,
		principal:   opts.Principal,
		credential:  flatex.Hash(opts.Credential),
		interval:    opts.Interval,
		authTimeout: opts.AuthTimeout,
		authMethod:  opts.AuthMethod,
		codeFn:      opts.CodeFunc,
		logger:      opts.Logger.Named("session"),
	}
}

// SetCodeFunc replaces the code collector used by Authorize.
func (m *Manager) SetCodeFunc(fn CodeFunc) {
	m.mu.Lock()
	m.codeFn = fn
	m.mu.Unlock()
}

// Connect starts the keep-alive loop. The first tick runs immediately.
// Calling Connect on a running Manager does nothing.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		return
	}
	loopCtx, stop := context.WithCancel(ctx)
	m.stop = stop
	m.done = make(chan struct{})
	m.state = StateConnecting

	go m.run(loopCtx, m.done)
}

// Disconnect stops the loop and cancels the in-flight tick. It is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.stop == nil {
		m.mu.Unlock()
		return
	}
	m.stop()
	done := m.done
	m.stop, m.done, m.tickCancel = nil, nil, nil
	m.gen++
	m.state = StateDisconnected
	m.mu.Unlock()

	<-done
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var prev <-chan struct{}
	for {
		prev = m.startTick(ctx, prev)
		select {
		case <-ctx.Done():
			<-prev
			return
		case <-ticker.C:
		}
	}
}

// startTick supersedes the previous tick and starts a new one once the
// previous one has returned.
func (m *Manager) startTick(ctx context.Context, prev <-chan struct{}) <-chan struct{} {
	tickCtx, gen := m.nextGeneration(ctx)
	if prev != nil {
		<-prev
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.tick(tickCtx, gen)
	}()
	return done
}

// nextGeneration cancels the running tick and returns the context and
// generation of the next one.
func (m *Manager) nextGeneration(ctx context.Context) (context.Context, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tickCancel != nil {
		m.tickCancel()
	}
	tickCtx, cancel := context.WithCancel(ctx)
	m.tickCancel = cancel
	m.gen++
	return tickCtx, m.gen
}

// ifCurrent runs fn under the lock only while gen is the newest generation.
// Results of superseded ticks are dropped.
func (m *Manager) ifCurrent(gen uint64, fn func() error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false, nil
	}
	return true, fn()
}

func (m *Manager) tick(ctx context.Context, gen uint64) {
	if ctx.Err() != nil {
		return
	}
	sid, ok, err := m.store.Get(KeySessionID)
	if err != nil {
		m.logger.Error("reading session", zap.Error(err))
		return
	}

	if ok {
		m.keepAlive(ctx, gen, sid)
		return
	}
	m.login(ctx, gen)
}

func (m *Manager) keepAlive(ctx context.Context, gen uint64, sid string) {
	err := m.client.Ping(ctx, sid)
	switch {
	case err == nil:
		m.ifCurrent(gen, func() error {
			m.state = StateConnected
			return nil
		})
		m.resolveAccounts(ctx, gen, sid)
	case ctx.Err() != nil:
		// superseded or disconnected
	case flatex.IsSessionInvalid(err):
		m.logger.Info("session invalidated by keep-alive")
		if _, err := m.ifCurrent(gen, m.invalidateLocked); err != nil {
			m.logger.Error("clearing session", zap.Error(err))
		}
	default:
		m.logger.Warn("keep-alive failed", zap.Error(err))
	}
}

func (m *Manager) login(ctx context.Context, gen uint64) {
	resp, err := m.client.Login(ctx, m.principal, m.credential)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("login failed", zap.String("code", flatex.Code(err)), zap.Error(err))
		_, err := m.ifCurrent(gen, func() error {
			m.state = StateDisconnected
			return m.store.Clear(KeyTransactionPin)
		})
		if err != nil {
			m.logger.Error("clearing transaction PIN", zap.Error(err))
		}
		return
	}

	applied, err := m.ifCurrent(gen, func() error {
		if err := m.store.Set(KeySessionID, resp.SessionID); err != nil {
			return err
		}
		m.state = StateConnected
		// A PIN never outlives the session it was confirmed for.
		return m.store.Clear(KeyTransactionPin)
	})
	if err != nil {
		m.logger.Error("storing session", zap.Error(err))
		return
	}
	if !applied {
		return
	}
	m.logger.Info("logged in", zap.Strings("auth_methods", resp.AuthenticationMethodList))
	m.resolveAccounts(ctx, gen, resp.SessionID)
}

// resolveAccounts fetches the account listing when an account is missing.
func (m *Manager) resolveAccounts(ctx context.Context, gen uint64, sid string) {
	if m.store.Has(KeyAccountCash) && m.store.Has(KeyAccountPortfolio) {
		return
	}

	resp, err := m.client.Accounts(ctx, m.principal, sid)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("resolving accounts failed", zap.Error(err))
		if flatex.IsSessionInvalid(err) {
			m.ifCurrent(gen, m.invalidateLocked)
		}
		return
	}

	cash := resp.Find(flatex.AccountTypeCash)
	depot := resp.Find(flatex.AccountTypeDepot)
	_, err = m.ifCurrent(gen, func() error {
		if err := m.store.SetAccount(KeyAccountCash, cash); err != nil {
			return err
		}
		return m.store.SetAccount(KeyAccountPortfolio, depot)
	})
	if err != nil {
		m.logger.Error("storing accounts", zap.Error(err))
		return
	}
	m.logger.Info("accounts resolved", zap.Bool("cash", cash != nil), zap.Bool("portfolio", depot != nil))
}

// invalidateLocked clears session id and PIN together. m.mu must be held.
func (m *Manager) invalidateLocked() error {
	m.state = StateSessionInvalid
	return errors.Join(
		m.store.Clear(KeySessionID),
		m.store.Clear(KeyTransactionPin),
	)
}

// observe clears the session when err says the server rejected sid, unless
// a newer session was stored in the meantime. err is returned unchanged.
func (m *Manager) observe(sid string, err error) error {
	if !flatex.IsSessionInvalid(err) {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok, getErr := m.store.Get(KeySessionID)
	if getErr != nil || !ok || current != sid {
		return err
	}
	m.logger.Info("session invalidated by operation")
	if clearErr := m.invalidateLocked(); clearErr != nil {
		m.logger.Error("clearing session", zap.Error(clearErr))
	}
	return err
}

func (m *Manager) sessionID() (string, error) {
	sid, ok, err := m.store.Get(KeySessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotConnected
	}
	return sid, nil
}

func (m *Manager) account(key Key) (flatex.Account, error) {
	acc, err := m.store.Account(key)
	if err != nil {
		return flatex.Account{}, err
	}
	if acc == nil {
		return flatex.Account{}, fmt.Errorf("%w: %s", ErrNoAccount, key)
	}
	return *acc, nil
}

func (m *Manager) pin() (flatex.Digest, error) {
	pin, ok, err := m.store.Get(KeyTransactionPin)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAuthorized
	}
	return flatex.Digest(pin), nil
}

// IsAuthorized reports whether a transaction PIN is stored.
func (m *Manager) IsAuthorized() bool {
	return m.store.Has(KeyTransactionPin)
}

// Balance fetches the cash account balance.
func (m *Manager) Balance(ctx context.Context) (*flatex.BalanceResponse, error) {
	sid, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	cash, err := m.account(KeyAccountCash)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Balance(ctx, m.principal, sid, cash)
	return resp, m.observe(sid, err)
}

// Securities fetches the depot positions.
func (m *Manager) Securities(ctx context.Context) (*flatex.PortfolioResponse, error) {
	sid, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	depot, err := m.account(KeyAccountPortfolio)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Portfolio(ctx, m.principal, sid, depot)
	return resp, m.observe(sid, err)
}

// Orders lists depot orders.
func (m *Manager) Orders(ctx context.Context, archivedOnly, openOnly bool) (*flatex.OrderListResponse, error) {
	sid, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	depot, err := m.account(KeyAccountPortfolio)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Orders(ctx, m.principal, sid, depot, archivedOnly, openOnly)
	return resp, m.observe(sid, err)
}

// Search looks up papers.
func (m *Manager) Search(ctx context.Context, query string) (*flatex.SearchPaperResponse, error) {
	sid, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Search(ctx, sid, query)
	return resp, m.observe(sid, err)
}

// PlaceOrder places an order, authorizing first when no PIN is stored.
func (m *Manager) PlaceOrder(ctx context.Context, args flatex.PlaceOrderArgs) (*flatex.PlaceOrderResponse, error) {
	if err := m.ensureAuthorized(ctx); err != nil {
		return nil, err
	}

	sid, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	depot, err := m.account(KeyAccountPortfolio)
	if err != nil {
		return nil, err
	}
	cash, err := m.account(KeyAccountCash)
	if err != nil {
		return nil, err
	}
	pin, err := m.pin()
	if err != nil {
		return nil, err
	}

	resp, err := m.client.PlaceOrder(ctx, m.principal, sid, pin, depot, cash, args, m.authMethod)
	return resp, m.observe(sid, err)
}

// CancelOrder cancels an order, authorizing first when no PIN is stored.
func (m *Manager) CancelOrder(ctx context.Context, orderID string) (*flatex.CancelOrderResponse, error) {
	if err := m.ensureAuthorized(ctx); err != nil {
		return nil, err
	}

	sid, err := m.sessionID()
	if err != nil {
		return nil, err
	}
	depot, err := m.account(KeyAccountPortfolio)
	if err != nil {
		return nil, err
	}
	pin, err := m.pin()
	if err != nil {
		return nil, err
	}

	resp, err := m.client.CancelOrder(ctx, m.principal, sid, pin, depot, orderID, m.authMethod)
	return resp, m.observe(sid, err)
}

func (m *Manager) ensureAuthorized(ctx context.Context) error {
	if m.IsAuthorized() {
		return nil
	}
	return m.Authorize(ctx, m.authTimeout)
}

// DebugInfo reports which pieces of session state are present. Values are never exposed.
type DebugInfo struct {
	State               string `json:"state"`
	Running             bool   `json:"running"`
	HasSession          bool   `json:"has_session"`
	Authorized          bool   `json:"authorized"`
	HasCashAccount      bool   `json:"has_cash_account"`
	HasPortfolioAccount bool   `json:"has_portfolio_account"`
}

// DebugInfo returns a snapshot of the session state.
func (m *Manager) DebugInfo() DebugInfo {
	m.mu.Lock()
	state, running := m.state, m.stop != nil
	m.mu.Unlock()

	return DebugInfo{
		State:               state.String(),
		Running:             running,
		HasSession:          m.store.Has(KeySessionID),
		Authorized:          m.store.Has(KeyTransactionPin),
		HasCashAccount:      m.store.Has(KeyAccountCash),
		HasPortfolioAccount: m.store.Has(KeyAccountPortfolio),
	}
}
