package flatex

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Order type literals carried by trailing-stop and one-cancels-other orders.
const (
	OrderTypeTrailingStop = "TRS"
	OrderTypeOCO          = "OCO"
)

// OrderKind enumerates the supported order shapes.
type OrderKind int

const (
	KindUnsupported OrderKind = iota
	KindMarketBuy
	KindMarketSell
	KindLimitBuy
	KindLimitSell
	KindStopMarketBuy
	KindStopMarketSell
	KindStopLimitBuy
	KindStopLimitSell
	KindTrailingStopMarketBuy
	KindTrailingStopMarketSell
	KindTrailingStopLimitBuy
	KindTrailingStopLimitSell
	KindOCOMarketBuy
	KindOCOMarketSell
	KindOCOLimitBuy
	KindOCOLimitSell
)

var kindNames = map[OrderKind]string{
	KindUnsupported:            "unsupported",
	KindMarketBuy:              "market buy",
	KindMarketSell:             "market sell",
	KindLimitBuy:               "limit buy",
	KindLimitSell:              "limit sell",
	KindStopMarketBuy:          "stop-market buy",
	KindStopMarketSell:         "stop-market sell",
	KindStopLimitBuy:           "stop-limit buy",
	KindStopLimitSell:          "stop-limit sell",
	KindTrailingStopMarketBuy:  "trailing-stop-market buy",
	KindTrailingStopMarketSell: "trailing-stop-market sell",
	KindTrailingStopLimitBuy:   "trailing-stop-limit buy",
	KindTrailingStopLimitSell:  "trailing-stop-limit sell",
	KindOCOMarketBuy:           "OCO-market buy",
	KindOCOMarketSell:          "OCO-market sell",
	KindOCOLimitBuy:            "OCO-limit buy",
	KindOCOLimitSell:           "OCO-limit sell",
}

func (k OrderKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OrderKind(%d)", int(k))
}

// OrderFields is the wire form of an order specification.
type OrderFields struct {
	Sell              bool   `json:"sell"`
	LimitExtension    int    `json:"limitExtension"`
	LimitPrice        *Price `json:"limitPrice,omitempty"`
	StopLimit         *Price `json:"stopLimit,omitempty"`
	LimitPriceOCO     *Price `json:"limitPriceOCO,omitempty"`
	TrailingStopLimit *Price `json:"trailingStopLimit,omitempty"`
	TrailingLimit     *Price `json:"trailingLimit,omitempty"`
	OrderType         string `json:"orderType,omitempty"`
}

type priceField uint8

const (
	fieldLimitPrice priceField = 1 << iota
	fieldStopLimit
	fieldLimitPriceOCO
	fieldTrailingStopLimit
	fieldTrailingLimit
)

func (f *OrderFields) priceFields() priceField {
	var set priceField
	if f.LimitPrice != nil {
		set |= fieldLimitPrice
	}
	if f.StopLimit != nil {
		set |= fieldStopLimit
	}
	if f.LimitPriceOCO != nil {
		set |= fieldLimitPriceOCO
	}
	if f.TrailingStopLimit != nil {
		set |= fieldTrailingStopLimit
	}
	if f.TrailingLimit != nil {
		set |= fieldTrailingLimit
	}
	return set
}

type orderShape struct {
	kind       OrderKind
	orderType  string
	fields     priceField
	sell       bool
	extensions []int
}

// orderShapes is the discriminator table. Every row has a distinct
// (orderType, fields, sell) triple, so at most one row matches.
var orderShapes = []orderShape{
	{KindMarketBuy, "", 0, false, []int{0, 2}},
	{KindMarketSell, "", 0, true, []int{-1, 0}},
	{KindLimitBuy, "", fieldLimitPrice, false, []int{-1, 0, 3}},
	{KindLimitSell, "", fieldLimitPrice, true, []int{-1, 0}},
	{KindStopMarketBuy, "", fieldStopLimit, false, []int{4}},
	{KindStopMarketSell, "", fieldStopLimit, true, []int{5, 9}},
	{KindStopLimitBuy, "", fieldStopLimit | fieldLimitPrice, false, []int{6}},
	{KindStopLimitSell, "", fieldStopLimit | fieldLimitPrice, true, []int{7}},
	{KindTrailingStopMarketBuy, OrderTypeTrailingStop, fieldStopLimit | fieldTrailingStopLimit, false, []int{4}},
	{KindTrailingStopMarketSell, OrderTypeTrailingStop, fieldStopLimit | fieldTrailingStopLimit, true, []int{5}},
	{KindTrailingStopLimitBuy, OrderTypeTrailingStop, fieldStopLimit | fieldTrailingStopLimit | fieldTrailingLimit, false, []int{6}},
	{KindTrailingStopLimitSell, OrderTypeTrailingStop, fieldStopLimit | fieldTrailingStopLimit | fieldTrailingLimit, true, []int{7}},
	{KindOCOMarketBuy, OrderTypeOCO, fieldStopLimit | fieldLimitPriceOCO, false, []int{4}},
	{KindOCOMarketSell, OrderTypeOCO, fieldStopLimit | fieldLimitPriceOCO, true, []int{5}},
	{KindOCOLimitBuy, OrderTypeOCO, fieldStopLimit | fieldLimitPrice | fieldLimitPriceOCO, false, []int{6}},
	{KindOCOLimitSell, OrderTypeOCO, fieldStopLimit | fieldLimitPrice | fieldLimitPriceOCO, true, []int{7}},
}

// Classify recognizes the order shape of f: the orderType literal is checked
// first, then the set of price fields present, then side and limit extension.
func Classify(f OrderFields) OrderKind {
	fields := f.priceFields()
	for _, shape := range orderShapes {
		if shape.orderType != f.OrderType {
			continue
		}
		if shape.fields != fields {
			continue
		}
		if shape.sell == f.Sell && slices.Contains(shape.extensions, f.LimitExtension) {
			return shape.kind
		}
	}
	return KindUnsupported
}

// Order is an immutable, validated order specification.
type Order struct {
	kind   OrderKind
	fields OrderFields
}

// NewOrder validates f against the known order shapes.
func NewOrder(f OrderFields) (Order, error) {
	kind := Classify(f)
	if kind == KindUnsupported {
		return Order{}, fmt.Errorf("%w: sell=%t limitExtension=%d orderType=%q",
			ErrUnsupportedOrder, f.Sell, f.LimitExtension, f.OrderType)
	}
	for _, p := range []*Price{f.LimitPrice, f.StopLimit, f.LimitPriceOCO, f.TrailingStopLimit, f.TrailingLimit} {
		if p != nil && p.Currency == "" {
			return Order{}, fmt.Errorf("%w: price without currency", ErrUnsupportedOrder)
		}
	}
	f.LimitPrice = clonePrice(f.LimitPrice)
	f.StopLimit = clonePrice(f.StopLimit)
	f.LimitPriceOCO = clonePrice(f.LimitPriceOCO)
	f.TrailingStopLimit = clonePrice(f.TrailingStopLimit)
	f.TrailingLimit = clonePrice(f.TrailingLimit)
	return Order{kind: kind, fields: f}, nil
}

func clonePrice(p *Price) *Price {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Kind returns the recognized order shape.
func (o Order) Kind() OrderKind { return o.kind }

// Sell reports whether the order sells.
func (o Order) Sell() bool { return o.fields.Sell }

// Fields returns a copy of the wire fields.
func (o Order) Fields() OrderFields {
	f := o.fields
	f.LimitPrice = clonePrice(f.LimitPrice)
	f.StopLimit = clonePrice(f.StopLimit)
	f.LimitPriceOCO = clonePrice(f.LimitPriceOCO)
	f.TrailingStopLimit = clonePrice(f.TrailingStopLimit)
	f.TrailingLimit = clonePrice(f.TrailingLimit)
	return f
}

// IsZero reports whether o was never constructed.
func (o Order) IsZero() bool { return o.kind == KindUnsupported }

// MarshalJSON implements json.Marshaler.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.fields)
}

// MarketBuy builds a market buy order; limitExtension must be 0 or 2.
func MarketBuy(limitExtension int) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: limitExtension})
}

// MarketSell builds a market sell order; limitExtension must be -1 or 0.
func MarketSell(limitExtension int) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: limitExtension})
}

// LimitBuy builds a limit buy order; limitExtension must be -1, 0 or 3.
func LimitBuy(limitExtension int, limit Price) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: limitExtension, LimitPrice: &limit})
}

// LimitSell builds a limit sell order; limitExtension must be -1 or 0.
func LimitSell(limitExtension int, limit Price) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: limitExtension, LimitPrice: &limit})
}

// StopMarketBuy builds a stop-market buy order.
func StopMarketBuy(stop Price) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: 4, StopLimit: &stop})
}

// StopMarketSell builds a stop-market sell order; limitExtension must be 5 or 9.
func StopMarketSell(limitExtension int, stop Price) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: limitExtension, StopLimit: &stop})
}

// StopLimitBuy builds a stop-limit buy order.
func StopLimitBuy(stop, limit Price) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: 6, StopLimit: &stop, LimitPrice: &limit})
}

// StopLimitSell builds a stop-limit sell order.
func StopLimitSell(stop, limit Price) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: 7, StopLimit: &stop, LimitPrice: &limit})
}

// TrailingStopMarketBuy builds a trailing-stop-market buy order.
// The trailing distance currency may be PRZ for a percentage distance.
func TrailingStopMarketBuy(stop, trailing Price) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: 4, StopLimit: &stop, TrailingStopLimit: &trailing, OrderType: OrderTypeTrailingStop})
}

// TrailingStopMarketSell builds a trailing-stop-market sell order.
func TrailingStopMarketSell(stop, trailing Price) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: 5, StopLimit: &stop, TrailingStopLimit: &trailing, OrderType: OrderTypeTrailingStop})
}

// TrailingStopLimitBuy builds a trailing-stop-limit buy order.
func TrailingStopLimitBuy(stop, trailing, trailingLimit Price) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: 6, StopLimit: &stop, TrailingStopLimit: &trailing, TrailingLimit: &trailingLimit, OrderType: OrderTypeTrailingStop})
}

// TrailingStopLimitSell builds a trailing-stop-limit sell order.
func TrailingStopLimitSell(stop, trailing, trailingLimit Price) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: 7, StopLimit: &stop, TrailingStopLimit: &trailing, TrailingLimit: &trailingLimit, OrderType: OrderTypeTrailingStop})
}

// OCOMarketBuy builds a one-cancels-other market buy order.
func OCOMarketBuy(stop, limitOCO Price) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: 4, StopLimit: &stop, LimitPriceOCO: &limitOCO, OrderType: OrderTypeOCO})
}

// OCOMarketSell builds a one-cancels-other market sell order.
func OCOMarketSell(stop, limitOCO Price) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: 5, StopLimit: &stop, LimitPriceOCO: &limitOCO, OrderType: OrderTypeOCO})
}

// OCOLimitBuy builds a one-cancels-other limit buy order.
func OCOLimitBuy(stop, limit, limitOCO Price) (Order, error) {
	return NewOrder(OrderFields{LimitExtension: 6, StopLimit: &stop, LimitPrice: &limit, LimitPriceOCO: &limitOCO, OrderType: OrderTypeOCO})
}

// OCOLimitSell builds a one-cancels-other limit sell order.
func OCOLimitSell(stop, limit, limitOCO Price) (Order, error) {
	return NewOrder(OrderFields{Sell: true, LimitExtension: 7, StopLimit: &stop, LimitPrice: &limit, LimitPriceOCO: &limitOCO, OrderType: OrderTypeOCO})
}

// OrderState is the lifecycle state of an order at the brokerage.
type OrderState int

const (
	OrderReceived  OrderState = 1
	OrderRouted    OrderState = 2
	OrderExecuted  OrderState = 4
	OrderCancelled OrderState = 5
	OrderExpired   OrderState = 7
	OrderRejected  OrderState = 11
)

var orderStates = []OrderState{OrderReceived, OrderRouted, OrderExecuted, OrderCancelled, OrderExpired, OrderRejected}

// Pending reports whether the order is still waiting for execution.
func (s OrderState) Pending() bool {
	return s == OrderReceived || s == OrderRouted
}

// ValidityKind says how long an order stays valid.
type ValidityKind int

const (
	ValidDay       ValidityKind = 1
	ValidMonthEnd  ValidityKind = 2
	ValidUntilDate ValidityKind = 3
)

// OrderRecord is a read-only snapshot of an order from the order list.
type OrderRecord struct {
	OrderFields
	Account       *AccountRef      `json:"account"`
	Creation      *Timestamp       `json:"creation"`
	CreationType  int              `json:"creationType"`
	CustomerOrder bool             `json:"customerOrder"`
	Depot         *AccountRef      `json:"depot"`
	OrderID       string           `json:"orderId"`
	Paper         *Instrument      `json:"paper"`
	SparplanID    json.RawMessage  `json:"sparplanId,omitempty"`
	State         OrderState       `json:"state"`
	StockExchange string           `json:"stockExchange"`
	Validity      string           `json:"validity"`
	ValidityKind  ValidityKind     `json:"validityKind"`
	Value         *Value           `json:"value"`
	ValueDone     *decimal.Decimal `json:"valueDone,omitempty"`
}

// Kind classifies the record's order fields.
func (r *OrderRecord) Kind() OrderKind {
	return Classify(r.OrderFields)
}

// OrderListResponse is the response to processOrderList.
type OrderListResponse struct {
	Response
	Depot   *AccountRef   `json:"depot"`
	Orders  []OrderRecord `json:"orders,omitempty"`
	HasMore *bool         `json:"hasMore"`
}

func (r *OrderListResponse) validate(v *validator) {
	r.Response.validate(v)
	v.require("depot", r.Depot != nil)
	v.require("hasMore", r.HasMore != nil)
	for i := range r.Orders {
		o := &r.Orders[i]
		v.nested(indexed("orders", i), func() {
			v.require("orderId", o.OrderID != "")
			v.require("creation", o.Creation != nil)
			v.instrument("paper", o.Paper)
			v.value("value", o.Value)
			if !slices.Contains(orderStates, o.State) {
				v.fail("state", "unexpected value %d", o.State)
			}
			if o.ValidityKind < ValidDay || o.ValidityKind > ValidUntilDate {
				v.fail("validityKind", "unexpected value %d", o.ValidityKind)
			}
			if o.Kind() == KindUnsupported {
				v.fail("orderType", "unsupported order shape sell=%t limitExtension=%d", o.Sell, o.LimitExtension)
			}
		})
	}
}
