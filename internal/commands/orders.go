package commands

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"flatex_bot/internal/broker"
	"flatex_bot/internal/broker/flatex"
	apperrors "flatex_bot/internal/errors"
)

// Listing modes of the orders command.
const (
	ModeAll   = "all"
	ModeToday = "today"
	ModeOpen  = "open"
)

const defaultPageSize = 10

// visibleStates are shown unless hidden orders are requested.
var visibleStates = map[flatex.OrderState]bool{
	flatex.OrderReceived: true,
	flatex.OrderRouted:   true,
	flatex.OrderExecuted: true,
}

// OrderQuery selects which orders to list.
type OrderQuery struct {
	Mode       string
	PageSize   int
	ShowHidden bool
}

// listFilters maps a mode to the (archivedOnly, openOnly) listings it merges.
var listFilters = map[string][][2]bool{
	ModeToday: {{false, false}},
	ModeOpen:  {{false, true}},
	ModeAll:   {{false, false}, {false, true}, {true, false}},
}

// ListOrders fetches, merges and pages orders. The result holds the newest
// PageSize orders, oldest first.
func ListOrders(ctx context.Context, trader broker.Trader, q OrderQuery) ([]flatex.OrderRecord, error) {
	filters, ok := listFilters[q.Mode]
	if !ok {
		return nil, apperrors.Validation(fmt.Sprintf("unknown mode %q (want all, today or open)", q.Mode))
	}

	var merged []flatex.OrderRecord
	for _, f := range filters {
		resp, err := trader.Orders(ctx, f[0], f[1])
		if err != nil {
			return nil, err
		}
		merged = append(merged, resp.Orders...)
	}

	orders := newestFirst(merged)
	if !q.ShowHidden {
		orders = slices.DeleteFunc(orders, func(o flatex.OrderRecord) bool {
			return !visibleStates[o.State]
		})
	}

	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if len(orders) > size {
		orders = orders[:size]
	}
	slices.Reverse(orders)
	return orders, nil
}

// newestFirst sorts by numeric order id, descending, keeping the first
// record of each id.
func newestFirst(orders []flatex.OrderRecord) []flatex.OrderRecord {
	sorted := slices.Clone(orders)
	slices.SortStableFunc(sorted, func(a, b flatex.OrderRecord) int {
		return compareOrderIDs(b.OrderID, a.OrderID)
	})
	return slices.CompactFunc(sorted, func(a, b flatex.OrderRecord) bool {
		return a.OrderID == b.OrderID
	})
}

func compareOrderIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
