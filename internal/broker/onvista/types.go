package onvista

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType classifies an instrument.
type EntityType string

const (
	EntityBasket        EntityType = "BASKET"
	EntityBond          EntityType = "BOND"
	EntityCommodity     EntityType = "COMMODITY"
	EntityCurrency      EntityType = "CURRENCY"
	EntityDerivative    EntityType = "DERIVATIVE"
	EntityFund          EntityType = "FUND"
	EntityFuture        EntityType = "FUTURE"
	EntityIndex         EntityType = "INDEX"
	EntityOption        EntityType = "OPTION"
	EntityPreciousMetal EntityType = "PRECIOUS_METAL"
	EntityStock         EntityType = "STOCK"
)

// pathSegments maps entity types to their snapshot URL segment.
var pathSegments = map[EntityType]string{
	EntityBasket:        "baskets",
	EntityBond:          "bonds",
	EntityCommodity:     "commodities",
	EntityCurrency:      "currencies",
	EntityDerivative:    "derivatives",
	EntityFund:          "funds",
	EntityFuture:        "futures",
	EntityIndex:         "indices",
	EntityOption:        "options",
	EntityPreciousMetal: "precious_metals",
	EntityStock:         "stocks",
}

// Instrument identifies a listed instrument.
type Instrument struct {
	EntityType    EntityType `json:"entityType"`
	EntitySubType string     `json:"entitySubType,omitempty"`
	EntityValue   string     `json:"entityValue"`
	Name          string     `json:"name"`
	ISIN          string     `json:"isin,omitempty"`
	WKN           string     `json:"wkn,omitempty"`
	Symbol        string     `json:"symbol,omitempty"`
}

// Market is the venue a quote comes from.
type Market struct {
	Name         string `json:"name"`
	CodeMarket   string `json:"codeMarket,omitempty"`
	NameExchange string `json:"nameExchange,omitempty"`
	CodeExchange string `json:"codeExchange,omitempty"`
	IDNotation   int64  `json:"idNotation"`
	IsoCountry   string `json:"isoCountry,omitempty"`
}

// Quote is a price snapshot on one market. Absent prices stay nil.
type Quote struct {
	Market       Market           `json:"market"`
	IsoCurrency  string           `json:"isoCurrency"`
	Bid          *decimal.Decimal `json:"bid,omitempty"`
	VolumeBid    *decimal.Decimal `json:"volumeBid,omitempty"`
	Ask          *decimal.Decimal `json:"ask,omitempty"`
	AskVolume    *decimal.Decimal `json:"askVolume,omitempty"`
	Last         *decimal.Decimal `json:"last,omitempty"`
	Volume       *decimal.Decimal `json:"volume,omitempty"`
	DatetimeLast *time.Time       `json:"datetimeLast,omitempty"`
}

// SearchResponse lists instruments matching a query.
type SearchResponse struct {
	List []Instrument `json:"list"`
}

// SnapshotResponse carries the main quote and the per-market quotes.
type SnapshotResponse struct {
	Type       string     `json:"type"`
	Instrument Instrument `json:"instrument"`
	Quote      Quote      `json:"quote"`
	QuoteList  *struct {
		List []Quote `json:"list"`
	} `json:"quoteList,omitempty"`
}

// Quotes returns every quote of the snapshot, main quote first.
func (s *SnapshotResponse) Quotes() []Quote {
	quotes := []Quote{s.Quote}
	if s.QuoteList != nil {
		quotes = append(quotes, s.QuoteList.List...)
	}
	return quotes
}

// Error is an error body returned by the market data API.
type Error struct {
	Code    int    `json:"errorCode"`
	Message string `json:"errorMessage"`
	Display string `json:"displayErrorMessage"`
	Status  int    `json:"statusCode"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}
