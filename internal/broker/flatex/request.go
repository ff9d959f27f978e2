package flatex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Action names understood by the proxy endpoint.
const (
	ActionLogon              = "processLogon"
	ActionPreparation        = "processPreparation"
	ActionPing               = "processPing"
	ActionBalance            = "processBalance"
	ActionPortfolio          = "processPortfolio"
	ActionOrderList          = "processOrderList"
	ActionSubmitCredential   = "processSubmitCredential"
	ActionConfirmAuthUseCase = "processConfirmAuthUseCase"
	ActionSearchPaper        = "processSearchPaper"
	ActionPlaceOrder         = "processPlaceOrder"
	ActionCancelOrder        = "processCancelOrder"
)

// DefaultAuthMethod is the second-factor method requested when none is configured.
const DefaultAuthMethod = "pTAN"

// quantityCurrency marks a value as a piece count rather than an amount.
const quantityCurrency = "XXX"

// searchKinds are the paper kinds included in instrument searches.
var searchKinds = []string{"AKT", "BEZ", "ANL", "OS", "ZERT", "FOND"}

// Digest is the SHA-256 hex digest of a secret. Secrets only leave the
// process in this form.
type Digest string

// Hash returns the digest of a clear-text secret.
func Hash(secret string) Digest {
	sum := sha256.Sum256([]byte(secret))
	return Digest(hex.EncodeToString(sum[:]))
}

type proxyRequest struct {
	Action   string `json:"action"`
	Args     any    `json:"args"`
	Provider string `json:"provider"`
	Platform string `json:"platform"`
}

type sessionArg struct {
	SessionID string `json:"sessionId"`
}

type identificationArg struct {
	CustomerID           string `json:"customerId"`
	AuthenticationMethod string `json:"authenticationMethod,omitempty"`
	TransactionPin       Digest `json:"transactionPin,omitempty"`
	SessionCredential    bool   `json:"sessionCredential,omitempty"`
}

type accountArg struct {
	Number string `json:"number"`
	Bank   Bank   `json:"bank"`
}

func toAccountArg(a Account) accountArg {
	return accountArg{
		Number: a.Number,
		Bank: Bank{
			BankName:    a.BankName,
			BIC:         a.BIC,
			BLZ:         a.BLZ,
			CountryCode: a.CountryCode,
		},
	}
}

type credentialArg struct {
	CredentialName string `json:"credentialName"`
	Credential     Digest `json:"credential"`
}

type logonArgs struct {
	Principal  string        `json:"principal"`
	Credential credentialArg `json:"credential"`
}

type pingArgs struct {
	Session sessionArg `json:"session"`
}

type preparationArgs struct {
	Session        sessionArg        `json:"session"`
	Identification identificationArg `json:"identification"`
}

type balanceArgs struct {
	Session        sessionArg        `json:"session"`
	Identification identificationArg `json:"identification"`
	Account        accountArg        `json:"account"`
	Synchron       bool              `json:"synchron"`
}

type portfolioArgs struct {
	Session        sessionArg        `json:"session"`
	Identification identificationArg `json:"identification"`
	Depot          accountArg        `json:"depot"`
	Synchron       bool              `json:"synchron"`
}

type orderListArgs struct {
	Session            sessionArg        `json:"session"`
	Identification     identificationArg `json:"identification"`
	Depot              accountArg        `json:"depot"`
	ArchivedOrdersOnly bool              `json:"archivedOrdersOnly"`
	OpenOrdersOnly     bool              `json:"openOrdersOnly"`
	Synchron           bool              `json:"synchron"`
}

type submitCredentialArgs struct {
	Session           sessionArg        `json:"session"`
	Identification    identificationArg `json:"identification"`
	SessionCredential bool              `json:"sessionCredential"`
}

type confirmAuthUseCaseArgs struct {
	Session        sessionArg        `json:"session"`
	Identification identificationArg `json:"identification"`
	AuthUseCaseID  string            `json:"authUseCaseId"`
}

type searchObjArg struct {
	SearchString    string   `json:"searchString"`
	SearchIndicator []int    `json:"searchIndicator"`
	SavingPlanOnly  bool     `json:"savingPlanOnly"`
	KindList        []string `json:"kindList"`
}

type searchPaperArgs struct {
	Session   sessionArg   `json:"session"`
	SearchObj searchObjArg `json:"searchObj"`
}

type paperArg struct {
	ISIN string `json:"isin"`
}

type quantityArg struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// orderArg flattens the order fields into the order object next to the
// placement details.
type orderArg struct {
	Depot         accountArg  `json:"depot"`
	Account       accountArg  `json:"account"`
	Paper         paperArg    `json:"paper"`
	Value         quantityArg `json:"value"`
	StockExchange string      `json:"stockExchange"`
	ValidityKind  int         `json:"validityKind"`
	OrderFields
}

type placeOrderArgs struct {
	Session        sessionArg        `json:"session"`
	Identification identificationArg `json:"identification"`
	Order          orderArg          `json:"order"`
}

type cancelOrderArgs struct {
	Session        sessionArg        `json:"session"`
	Identification identificationArg `json:"identification"`
	Depot          accountArg        `json:"depot"`
	OrderID        string            `json:"orderId"`
}

// PlaceOrderArgs describes an order to place.
type PlaceOrderArgs struct {
	ISIN     string
	Quantity decimal.Decimal
	Exchange string
	Order    Order
}

func newOrderArg(depot, cash Account, args PlaceOrderArgs) orderArg {
	return orderArg{
		Depot:         toAccountArg(depot),
		Account:       toAccountArg(cash),
		Paper:         paperArg{ISIN: args.ISIN},
		Value:         quantityArg{Value: args.Quantity.String(), Currency: quantityCurrency},
		StockExchange: args.Exchange,
		ValidityKind:  int(ValidDay),
		OrderFields:   args.Order.Fields(),
	}
}

// encodeRequest renders the full request body.
func encodeRequest(action string, args any, provider, platform string) ([]byte, error) {
	return json.Marshal(proxyRequest{
		Action:   action,
		Args:     args,
		Provider: provider,
		Platform: platform,
	})
}
