package commands

import (
	"bytes"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"flatex_bot/internal/broker/flatex"
	"flatex_bot/internal/broker/onvista"
)

var funcs = template.FuncMap{
	"money": money,
	"price": func(d *decimal.Decimal) string {
		if d == nil {
			return "-"
		}
		return d.StringFixed(2)
	},
}

var reports = template.Must(template.New("reports").Funcs(funcs).Parse(`
{{define "balance"}}<table>
<tr><td>Booked</td><td>{{money .Booked}}</td></tr>
<tr><td>Available</td><td>{{money .Available}}</td></tr>
<tr><td>Credit line</td><td>{{money .CreditLine}}</td></tr>
</table>{{end}}

{{define "securities"}}{{if not .}}<p>No securities.</p>{{else}}<table>
<tr><th>Symbol</th><th>Name</th><th>Qty</th><th>Invested</th><th>Change</th><th></th></tr>
{{range .}}<tr>
<td><code>{{.Symbol}}</code></td>
<td><a href="{{.URL}}">{{.Name}}</a></td>
<td>{{.Quantity}}</td>
<td>{{.Initial}}</td>
<td>{{if .Green}}<font color="green">{{else if .Red}}<font color="red">{{else}}<font>{{end}}{{.Change}}</font></td>
<td>{{.ChangePct}}</td>
</tr>
{{end}}</table>{{end}}{{end}}

{{define "orders"}}{{if not .}}<p>No orders.</p>{{else}}<table>
<tr><th>Id</th><th>Date</th><th>Time</th><th>Side</th><th>Paper</th><th>Qty</th><th>Type</th><th>Exchange</th><th>State</th></tr>
{{range .}}<tr>
<td><code>{{.ID}}</code></td>
<td>{{.Date}}</td>
<td>{{.Time}}</td>
<td>{{if .Sell}}Sell{{else}}Buy{{end}}</td>
<td><a href="{{.URL}}">{{.Name}}</a></td>
<td>{{.Quantity}}</td>
<td>{{.Args}}</td>
<td>{{.Exchange}}</td>
<td>{{if .Deleted}}<del>{{.State}}</del>{{else if .Pending}}<i>{{.State}}</i>{{else if .Executed}}<b>{{.State}}</b>{{else}}{{.State}}{{end}}</td>
</tr>
{{end}}</table>{{end}}{{end}}

{{define "exchanges"}}<p>{{.SIN}}: {{if .Exchange}}exchange <code>{{.Exchange}}</code> not available{{else}}no preferred exchange available{{end}}, choose one with <code>--exchange</code>:</p>
<ul>{{range .Exchanges}}<li><code>{{.Exchange}}</code> {{.ExchangeDescription}} ({{.Currency}})</li>
{{end}}</ul>{{end}}

{{define "quote"}}<p><b>{{.Instrument.Name}}</b>{{with .Instrument.ISIN}} <code>{{.}}</code>{{end}}</p>
<table>
<tr><th>Market</th><th>Bid</th><th>Ask</th><th>Last</th><th>Time</th></tr>
{{range .Quotes}}<tr>
<td>{{.Market.Name}}</td>
<td>{{price .Bid}}</td>
<td>{{price .Ask}}</td>
<td>{{price .Last}} {{.IsoCurrency}}</td>
<td>{{with .DatetimeLast}}{{.Format "02.01.2006 15:04:05"}}{{end}}</td>
</tr>
{{end}}</table>{{end}}

{{define "status"}}<ul>
<li>State: {{.State}}</li>
<li>Session: {{if .HasSession}}yes{{else}}no{{end}}</li>
<li>Authorized: {{if .Authorized}}yes{{else}}no{{end}}</li>
<li>Accounts: {{if and .HasCashAccount .HasPortfolioAccount}}resolved{{else}}missing{{end}}</li>
</ul>{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := reports.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func money(v *flatex.Value) string {
	if v == nil {
		return "-"
	}
	return v.Value.StringFixed(2) + " " + v.Currency
}

type balanceView struct {
	Booked     *flatex.Value
	Available  *flatex.Value
	CreditLine *flatex.Value
}

func newBalanceView(info *flatex.BalanceInfo) balanceView {
	view := balanceView{
		Available:  info.MaxBuyingPowerOrder,
		CreditLine: info.CreditLine,
	}
	if info.BalanceBooked != nil {
		view.Booked = info.BalanceBooked.Amount
	}
	return view
}

type securityView struct {
	Symbol    string
	Name      string
	URL       string
	Quantity  string
	Initial   string
	Change    string
	ChangePct string
	Green     bool
	Red       bool
}

var hundred = decimal.NewFromInt(100)

// newSecurityView values the position at purchase and current rating prices.
func newSecurityView(s *flatex.Security) securityView {
	view := securityView{Symbol: "-", Name: "-"}
	if s.Paper != nil {
		view.Name = s.Paper.Name
		view.URL = onvistaURL(s.Paper.ISIN)
		if s.Paper.Symbol != "" {
			view.Symbol = s.Paper.Symbol
		}
	}
	if s.Quantity == nil || s.PurchasePerfData == nil || s.PurchasePerfData.RatingPrice == nil ||
		s.CurrentPerfData == nil || s.CurrentPerfData.RatingPrice == nil {
		return view
	}

	qty := s.Quantity.Value
	purchase, current := s.PurchasePerfData.RatingPrice, s.CurrentPerfData.RatingPrice
	initial := qty.Mul(purchase.Value)
	now := qty.Mul(current.Value)

	view.Quantity = qty.String()
	view.Initial = initial.StringFixed(2) + " " + purchase.Currency
	view.Change = now.Sub(initial).StringFixed(2) + " " + current.Currency
	if initial.IsZero() {
		return view
	}
	ratio := now.Div(initial).Sub(decimal.NewFromInt(1)).Round(4)
	view.ChangePct = ratio.Mul(hundred).StringFixed(2) + " %"
	view.Green = ratio.IsPositive()
	view.Red = ratio.IsNegative()
	return view
}

type orderView struct {
	ID       string
	Date     string
	Time     string
	Sell     bool
	Name     string
	URL      string
	Quantity string
	Args     string
	Exchange string
	State    string
	Deleted  bool
	Pending  bool
	Executed bool
}

var stateNames = map[flatex.OrderState]string{
	flatex.OrderReceived:  "received",
	flatex.OrderRouted:    "routed",
	flatex.OrderExecuted:  "executed",
	flatex.OrderCancelled: "cancelled",
	flatex.OrderExpired:   "expired",
	flatex.OrderRejected:  "rejected",
}

func newOrderView(o *flatex.OrderRecord, loc *time.Location) orderView {
	view := orderView{
		ID:       o.OrderID,
		Sell:     o.Sell,
		Args:     orderArgs(o),
		Exchange: exchangeName(o.StockExchange),
		State:    stateNames[o.State],
		Deleted:  !visibleStates[o.State],
		Pending:  o.State.Pending(),
		Executed: o.State == flatex.OrderExecuted,
	}
	if o.Creation != nil {
		created := o.Creation.In(loc)
		view.Date = created.Format("02.01.2006")
		view.Time = created.Format("15:04:05")
	}
	if o.Paper != nil {
		view.Name = o.Paper.Name
		view.URL = onvistaURL(o.Paper.ISIN)
	}
	if o.Value != nil {
		view.Quantity = o.Value.Value.String()
	}
	return view
}

func fixed(p *flatex.Price) string {
	if p == nil {
		return "?"
	}
	return p.Value.StringFixed(2)
}

// orderArgs summarises the prices that define the order.
func orderArgs(o *flatex.OrderRecord) string {
	switch o.Kind() {
	case flatex.KindMarketBuy, flatex.KindMarketSell:
		return "Market"
	case flatex.KindLimitBuy, flatex.KindLimitSell:
		return fixed(o.LimitPrice)
	case flatex.KindStopMarketBuy, flatex.KindStopMarketSell:
		return fixed(o.StopLimit)
	case flatex.KindStopLimitBuy, flatex.KindStopLimitSell:
		return fixed(o.LimitPrice) + " / " + fixed(o.StopLimit)
	case flatex.KindOCOMarketBuy, flatex.KindOCOMarketSell, flatex.KindOCOLimitBuy, flatex.KindOCOLimitSell:
		return fixed(o.LimitPriceOCO) + " / " + fixed(o.StopLimit)
	case flatex.KindTrailingStopMarketBuy, flatex.KindTrailingStopMarketSell,
		flatex.KindTrailingStopLimitBuy, flatex.KindTrailingStopLimitSell:
		return fixed(o.TrailingStopLimit) + " / " + fixed(o.StopLimit)
	default:
		return "?"
	}
}

func exchangeName(code string) string {
	if code == "ETR" {
		return "Xetra"
	}
	return code
}

func onvistaURL(isin string) string {
	return "https://www.onvista.de/" + isin
}

type exchangesView struct {
	SIN       string
	Exchange  string
	Exchanges []flatex.ExchangeInfo
}

type quoteView struct {
	Instrument onvista.Instrument
	Quotes     []onvista.Quote
}
