package flatex

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Account types returned by processPreparation.
const (
	AccountTypeCash  = "CSH"
	AccountTypeDepot = "DEP"
)

// Account identifies a cash or depot account at the brokerage.
type Account struct {
	Number      string `json:"number"`
	BankName    string `json:"bankName"`
	BIC         string `json:"bic"`
	BLZ         string `json:"blz"`
	CountryCode string `json:"countryCode"`
}

// Value is an amount with currency. The brokerage sends amounts as decimal strings.
type Value struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// Price is the price shape used by order fields.
type Price = Value

// NewPrice is a convenience constructor for a price.
func NewPrice(value decimal.Decimal, currency string) *Price {
	return &Price{Value: value, Currency: currency}
}

func (v *validator) value(field string, val *Value) {
	if val == nil {
		v.require(field, false)
		return
	}
	v.nested(field, func() {
		v.require("currency", val.Currency != "")
	})
}

// Bank holds the bank coordinates of an account.
type Bank struct {
	BankName    string `json:"bankName"`
	BIC         string `json:"bic"`
	BLZ         string `json:"blz"`
	CountryCode string `json:"countryCode"`
}

// AccountInfo is an entry of the account listing.
type AccountInfo struct {
	Number      string `json:"number"`
	AccountType string `json:"accountType"`
	Bank        *Bank  `json:"bank"`
}

// Account converts the listing entry into an Account.
func (a *AccountInfo) Account() *Account {
	return &Account{
		Number:      a.Number,
		BankName:    a.Bank.BankName,
		BIC:         a.Bank.BIC,
		BLZ:         a.Bank.BLZ,
		CountryCode: a.Bank.CountryCode,
	}
}

// AccountRef is an account reference carrying only its number.
type AccountRef struct {
	Number string `json:"number"`
}

// Instrument describes a paper.
type Instrument struct {
	ISIN     string `json:"isin"`
	Name     string `json:"name"`
	SIN      string `json:"sin"`
	Unit     *int   `json:"unit"`
	Symbol   string `json:"symbol,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Currency string `json:"currency,omitempty"`
}

func (v *validator) instrument(field string, in *Instrument) {
	if in == nil {
		v.require(field, false)
		return
	}
	v.nested(field, func() {
		v.require("isin", in.ISIN != "")
		v.require("name", in.Name != "")
		v.require("unit", in.Unit != nil)
	})
}

// LogonResponse is the response to processLogon.
type LogonResponse struct {
	Response
	AuthenticationMethodList []string `json:"authenticationMethodList"`
	SessionID                string   `json:"sessionId"`
}

func (r *LogonResponse) validate(v *validator) {
	r.Response.validate(v)
	v.require("authenticationMethodList", r.AuthenticationMethodList != nil)
	v.require("sessionId", r.SessionID != "")
}

// PreparationResponse is the response to processPreparation.
type PreparationResponse struct {
	Response
	AccountInfos []AccountInfo `json:"accountInfos"`
}

func (r *PreparationResponse) validate(v *validator) {
	r.Response.validate(v)
	v.require("accountInfos", r.AccountInfos != nil)
	for i := range r.AccountInfos {
		info := &r.AccountInfos[i]
		v.nested(indexed("accountInfos", i), func() {
			v.require("number", info.Number != "")
			v.require("accountType", info.AccountType != "")
			v.require("bank", info.Bank != nil)
		})
	}
}

// Find returns the first account of the given type, or nil.
func (r *PreparationResponse) Find(accountType string) *Account {
	for i := range r.AccountInfos {
		if r.AccountInfos[i].AccountType == accountType {
			return r.AccountInfos[i].Account()
		}
	}
	return nil
}

// BalanceBooked is the booked balance at a point in time.
type BalanceBooked struct {
	Amount   *Value     `json:"amount"`
	Datetime *Timestamp `json:"datetime"`
}

// BalanceInfo is the cash account balance.
type BalanceInfo struct {
	Account                     *AccountRef    `json:"account"`
	BalanceBooked               *BalanceBooked `json:"balanceBooked"`
	CreditLine                  *Value         `json:"creditLine"`
	MaxBuyingPowerMoneyTransfer *Value         `json:"maxBuyingPowerMoneyTransfer"`
	MaxBuyingPowerOrder         *Value         `json:"maxBuyingPowerOrder"`
}

// BalanceResponse is the response to processBalance.
type BalanceResponse struct {
	Response
	BalanceInfo *BalanceInfo `json:"balanceInfo"`
}

func (r *BalanceResponse) validate(v *validator) {
	r.Response.validate(v)
	info := r.BalanceInfo
	if info == nil {
		v.require("balanceInfo", false)
		return
	}
	v.nested("balanceInfo", func() {
		v.require("account", info.Account != nil)
		if info.BalanceBooked == nil {
			v.require("balanceBooked", false)
		} else {
			v.nested("balanceBooked", func() {
				v.value("amount", info.BalanceBooked.Amount)
				v.require("datetime", info.BalanceBooked.Datetime != nil)
			})
		}
		v.value("creditLine", info.CreditLine)
		v.value("maxBuyingPowerMoneyTransfer", info.MaxBuyingPowerMoneyTransfer)
		v.value("maxBuyingPowerOrder", info.MaxBuyingPowerOrder)
	})
}

// PerfData is a valuation snapshot of a position.
type PerfData struct {
	RatingFxPrice          string     `json:"ratingFxPrice"`
	RatingPrice            *Value     `json:"ratingPrice"`
	RatingPriceStckExchKey string     `json:"ratingPriceStckExchKey,omitempty"`
	RatingPriceTime        *Timestamp `json:"ratingPriceTime,omitempty"`
	Value                  *Value     `json:"value"`
}

func (v *validator) perfData(field string, p *PerfData) {
	if p == nil {
		v.require(field, false)
		return
	}
	v.nested(field, func() {
		v.value("ratingPrice", p.RatingPrice)
		v.value("value", p.Value)
	})
}

// Security is a position in the depot.
type Security struct {
	CurrentPerfData            *PerfData   `json:"currentPerfData"`
	Custodian                  int         `json:"custodian"`
	LendingValue               *Value      `json:"lendingValue"`
	LendingWeight              string      `json:"lendingWeight"`
	LockType                   int         `json:"lockType"`
	Paper                      *Instrument `json:"paper"`
	PreviousDayPerfData        *PerfData   `json:"previousDayPerfData,omitempty"`
	PurchasePerfData           *PerfData   `json:"purchasePerfData"`
	Quantity                   *Value      `json:"quantity"`
	QuantityAvailable          *Value      `json:"quantityAvailable"`
	RiskClass                  string      `json:"riskClass"`
	StorageLocation            int         `json:"storageLocation"`
	StorageLocationDescription string      `json:"storageLocationDescription"`
}

// PortfolioResponse is the response to processPortfolio.
type PortfolioResponse struct {
	Response
	Depot             *AccountRef `json:"depot"`
	DepotLendingValue *Value      `json:"depotLendingValue"`
	DepotValue        *Value      `json:"depotValue"`
	DepotValuePrevDay *Value      `json:"depotValuePrevDay,omitempty"`
	Securities        []Security  `json:"securities,omitempty"`
}

func (r *PortfolioResponse) validate(v *validator) {
	r.Response.validate(v)
	v.require("depot", r.Depot != nil)
	v.value("depotLendingValue", r.DepotLendingValue)
	v.value("depotValue", r.DepotValue)
	for i := range r.Securities {
		s := &r.Securities[i]
		v.nested(indexed("securities", i), func() {
			v.perfData("currentPerfData", s.CurrentPerfData)
			v.perfData("purchasePerfData", s.PurchasePerfData)
			v.instrument("paper", s.Paper)
			v.value("quantity", s.Quantity)
			v.value("quantityAvailable", s.QuantityAvailable)
		})
	}
}

// Find returns the position for an ISIN or SIN, or nil.
func (r *PortfolioResponse) Find(isinOrSIN string) *Security {
	for i := range r.Securities {
		if p := r.Securities[i].Paper; p != nil && (p.ISIN == isinOrSIN || p.SIN == isinOrSIN) {
			return &r.Securities[i]
		}
	}
	return nil
}

// UseCase identifies a second-factor challenge.
type UseCase struct {
	AuthUseCaseID string `json:"authUseCaseId"`
}

// SubmitCredentialResponse is the response to processSubmitCredential.
type SubmitCredentialResponse struct {
	Response
	IdentificationUseCase *UseCase `json:"identificationUseCase"`
}

func (r *SubmitCredentialResponse) validate(v *validator) {
	r.Response.validate(v)
	if r.IdentificationUseCase == nil {
		v.require("identificationUseCase", false)
		return
	}
	v.nested("identificationUseCase", func() {
		v.require("authUseCaseId", r.IdentificationUseCase.AuthUseCaseID != "")
	})
}

// ConfirmAuthUseCaseResponse is the response to processConfirmAuthUseCase.
type ConfirmAuthUseCaseResponse struct {
	Response
	Inner *struct {
		Error                 *EnvelopeError `json:"error"`
		IdentificationUseCase *UseCase       `json:"identificationUseCase"`
	} `json:"response"`
}

func (r *ConfirmAuthUseCaseResponse) nestedError() *EnvelopeError {
	if r.Inner == nil {
		return nil
	}
	return r.Inner.Error
}

func (r *ConfirmAuthUseCaseResponse) validate(v *validator) {
	r.Response.validate(v)
	if r.Inner == nil {
		v.require("response", false)
		return
	}
	v.nested("response", func() {
		v.envelope("error", r.Inner.Error)
		v.require("identificationUseCase", r.Inner.IdentificationUseCase != nil)
	})
}

// ExchangeInfo describes where and how a paper trades.
type ExchangeInfo struct {
	Currency            string          `json:"currency"`
	Exchange            string          `json:"exchange"`
	ExchangeDescription string          `json:"exchangeDescription"`
	MaxValidityValue    int             `json:"maxValidityValue"`
	MinSize             decimal.Decimal `json:"minSize"`
	MinSizeSavingPlan   decimal.Decimal `json:"minSizeSavingPlan"`
	Modifies            int             `json:"modifies"`
	NominalTrading      bool            `json:"nominalTrading"`
	SavingPlan          bool            `json:"savingPlan"`
	TradeType           string          `json:"tradeType"`
	ValidityType        int             `json:"validityType"`
}

// Paper is a search result.
type Paper struct {
	Currency         string         `json:"currency"`
	ExchangeInfoList []ExchangeInfo `json:"exchangeInfoList"`
	ISIN             string         `json:"isin"`
	Kind             string         `json:"kind"`
	Name             string         `json:"name"`
	SIN              string         `json:"sin"`
	Unit             *int           `json:"unit"`
	Symbol           string         `json:"symbol,omitempty"`
}

// SearchPaperResponse is the response to processSearchPaper.
type SearchPaperResponse struct {
	Response
	Papers     []Paper `json:"papers"`
	MorePapers *bool   `json:"morePapers"`
}

func (r *SearchPaperResponse) validate(v *validator) {
	r.Response.validate(v)
	v.require("papers", r.Papers != nil)
	v.require("morePapers", r.MorePapers != nil)
	for i := range r.Papers {
		p := &r.Papers[i]
		v.nested(indexed("papers", i), func() {
			v.require("isin", p.ISIN != "")
			v.require("name", p.Name != "")
			v.require("exchangeInfoList", p.ExchangeInfoList != nil)
			v.require("unit", p.Unit != nil)
		})
	}
}

// Find returns the paper matching an ISIN or SIN, or nil.
func (r *SearchPaperResponse) Find(isinOrSIN string) *Paper {
	for i := range r.Papers {
		if r.Papers[i].ISIN == isinOrSIN || r.Papers[i].SIN == isinOrSIN {
			return &r.Papers[i]
		}
	}
	return nil
}

// PlaceOrderResponse is the response to processPlaceOrder.
type PlaceOrderResponse struct {
	Response
	IdentificationUseCase *UseCase `json:"identificationUseCase,omitempty"`
	OrderID               string   `json:"orderId"`
}

func (r *PlaceOrderResponse) validate(v *validator) {
	r.Response.validate(v)
	v.require("orderId", r.OrderID != "")
}

// CancelOrderResponse is the response to processCancelOrder.
type CancelOrderResponse struct {
	Response
	IdentificationUseCase *UseCase `json:"identificationUseCase,omitempty"`
}

func indexed(field string, i int) string {
	return field + "[" + strconv.Itoa(i) + "]"
}
