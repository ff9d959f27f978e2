package broker

import (
	"context"
	"time"

	"flatex_bot/internal/broker/flatex"
)

// Trader is the brokerage surface offered to the chat commands and the
// admin API. Every method returns a typed result or an error; failures are
// retryable by the caller and are never retried automatically.
type Trader interface {
	// IsAuthorized reports whether a transaction PIN is stored.
	IsAuthorized() bool

	// Authorize runs the second-factor exchange; timeout <= 0 selects the default.
	Authorize(ctx context.Context, timeout time.Duration) error

	Balance(ctx context.Context) (*flatex.BalanceResponse, error)
	Securities(ctx context.Context) (*flatex.PortfolioResponse, error)
	Orders(ctx context.Context, archivedOnly, openOnly bool) (*flatex.OrderListResponse, error)
	Search(ctx context.Context, query string) (*flatex.SearchPaperResponse, error)

	// PlaceOrder and CancelOrder authorize first when no PIN is stored.
	PlaceOrder(ctx context.Context, args flatex.PlaceOrderArgs) (*flatex.PlaceOrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (*flatex.CancelOrderResponse, error)
}
