package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"flatex_bot/internal/broker/flatex"
	"flatex_bot/internal/cache"
	apperrors "flatex_bot/internal/errors"
)

// exchangePriorities lists issuer venues tried when no exchange is given.
var exchangePriorities = []string{
	"A54", // HSBC
	"A57", // Société Générale
	"A71", // Goldman Sachs
	"A75", // UBS Investments
	"A19", // JP Morgan
}

var (
	errUnsupportedOrder = errors.New("unsupported order type (place a market order with --force)")
	errNoPosition       = errors.New("no position in portfolio")
	errNoQuantity       = errors.New("no quantity available")
)

// exchangeError carries the rendered list of exchanges a paper trades on.
type exchangeError struct {
	html string
}

func (e *exchangeError) Error() string { return "no matching exchange" }

// priceFlags are the optional price flags of orders-buy and orders-sell.
type priceFlags struct {
	limit      string
	stopMarket string
	oco        bool
	force      bool
	exchange   string
}

func parsePrice(flag, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return nil, fmt.Errorf("--%s: invalid price %q", flag, raw)
	}
	return &d, nil
}

func (f priceFlags) prices() (limit, stop *decimal.Decimal, err error) {
	if limit, err = parsePrice("limit", f.limit); err != nil {
		return nil, nil, err
	}
	if stop, err = parsePrice("stop-market", f.stopMarket); err != nil {
		return nil, nil, err
	}
	return limit, stop, nil
}

// buyOrder picks limit, then stop-market, then a forced market order.
func (f priceFlags) buyOrder(currency string) (flatex.Order, error) {
	limit, stop, err := f.prices()
	if err != nil {
		return flatex.Order{}, err
	}
	switch {
	case limit != nil:
		return flatex.LimitBuy(-1, flatex.Price{Value: *limit, Currency: currency})
	case stop != nil:
		return flatex.StopMarketBuy(flatex.Price{Value: *stop, Currency: currency})
	case f.force:
		return flatex.MarketBuy(2)
	}
	return flatex.Order{}, errUnsupportedOrder
}

// sellOrder picks OCO, then limit, then stop-market, then a forced market order.
func (f priceFlags) sellOrder(currency string) (flatex.Order, error) {
	limit, stop, err := f.prices()
	if err != nil {
		return flatex.Order{}, err
	}
	switch {
	case f.oco && limit != nil && stop != nil:
		return flatex.OCOMarketSell(
			flatex.Price{Value: *stop, Currency: currency},
			flatex.Price{Value: *limit, Currency: currency},
		)
	case limit != nil:
		return flatex.LimitSell(-1, flatex.Price{Value: *limit, Currency: currency})
	case stop != nil:
		return flatex.StopMarketSell(5, flatex.Price{Value: *stop, Currency: currency})
	case f.force:
		return flatex.MarketSell(0)
	}
	return flatex.Order{}, errUnsupportedOrder
}

// findPaper searches the brokerage for an ISIN or SIN. Results are cached.
func (r *Router) findPaper(ctx context.Context, sin string) (*flatex.Paper, error) {
	key := cache.Search("flatex", sin)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*flatex.Paper), nil
		}
	}

	resp, err := r.trader.Search(ctx, sin)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to retrieve information: %w", sin, err)
	}
	paper := resp.Find(sin)
	if paper == nil {
		return nil, apperrors.NotFoundf("%s: unable to match paper", sin)
	}
	if r.cache != nil {
		r.cache.Set(key, paper)
	}
	return paper, nil
}

// selectExchange returns the requested exchange or the first available
// one from exchangePriorities.
func selectExchange(paper *flatex.Paper, sin, requested string) (flatex.ExchangeInfo, error) {
	if requested != "" {
		for _, info := range paper.ExchangeInfoList {
			if info.Exchange == requested {
				return info, nil
			}
		}
	} else {
		for _, prio := range exchangePriorities {
			for _, info := range paper.ExchangeInfoList {
				if info.Exchange == prio {
					return info, nil
				}
			}
		}
	}

	html, err := render("exchanges", exchangesView{SIN: sin, Exchange: requested, Exchanges: paper.ExchangeInfoList})
	if err != nil {
		return flatex.ExchangeInfo{}, err
	}
	return flatex.ExchangeInfo{}, &exchangeError{html: html}
}

// sellQuantity returns qty, or the whole available quantity when qty is
// nil. It fails when nothing or not enough is available.
func sellQuantity(position *flatex.Security, qty *decimal.Decimal) (decimal.Decimal, error) {
	if position.QuantityAvailable == nil || !position.QuantityAvailable.Value.IsPositive() {
		return decimal.Decimal{}, errNoQuantity
	}
	available := position.QuantityAvailable.Value
	if qty == nil {
		return available, nil
	}
	if qty.GreaterThan(available) {
		return decimal.Decimal{}, errNoQuantity
	}
	return *qty, nil
}

func positionCurrency(position *flatex.Security, fallback string) string {
	if p := position.PurchasePerfData; p != nil && p.Value != nil && p.Value.Currency != "" {
		return p.Value.Currency
	}
	return fallback
}

var nonDigits = regexp.MustCompile(`\D`)

// cleanOrderID strips everything but digits, so "#4711," becomes "4711".
func cleanOrderID(raw string) string {
	return nonDigits.ReplaceAllString(raw, "")
}

func parseQuantity(raw string) (decimal.Decimal, error) {
	qty, err := decimal.NewFromString(raw)
	if err != nil || !qty.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("invalid quantity %q", raw)
	}
	return qty, nil
}
