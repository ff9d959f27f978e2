package flatex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// mockServer records the last request body and answers with a fixed status and body.
type mockServer struct {
	*httptest.Server
	mu   sync.Mutex
	body map[string]any
}

func (m *mockServer) lastBody() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.body
}

func newMockServer(t *testing.T, status int, body string) *mockServer {
	t.Helper()
	m := &mockServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		var got map[string]any
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		m.mu.Lock()
		m.body = got
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(m.Close)
	return m
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Options{BaseURL: url, RatePerSec: 1000})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func args(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	a, ok := body["args"].(map[string]any)
	if !ok {
		t.Fatalf("args missing in %v", body)
	}
	return a
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Error("NewClient() error = nil, want error")
	}
}

func TestHash(t *testing.T) {
	// sha256("1234")
	want := Digest("03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4")
	if got := Hash("1234"); got != want {
		t.Errorf("Hash() = %s, want %s", got, want)
	}
}

func TestClient_Login(t *testing.T) {
	srv := newMockServer(t, http.StatusOK,
		`{"error":{"code":"0","text":"OK"},"authenticationMethodList":["pTAN"],"sessionId":"s-1"}`)
	c := newTestClient(t, srv.URL)

	resp, err := c.Login(context.Background(), "12345", Hash("secret"))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want s-1", resp.SessionID)
	}

	if srv.lastBody()["action"] != ActionLogon {
		t.Errorf("action = %v, want %s", srv.lastBody()["action"], ActionLogon)
	}
	if srv.lastBody()["provider"] != DefaultProvider || srv.lastBody()["platform"] != DefaultPlatform {
		t.Errorf("provider/platform = %v/%v", srv.lastBody()["provider"], srv.lastBody()["platform"])
	}
	cred := args(t, srv.lastBody())["credential"].(map[string]any)
	if cred["credential"] != string(Hash("secret")) {
		t.Errorf("credential = %v, want digest", cred["credential"])
	}
	if cred["credential"] == "secret" {
		t.Error("credential sent in clear text")
	}
}

func TestClient_ClientErrorStatusIsDecoded(t *testing.T) {
	srv := newMockServer(t, http.StatusUnauthorized,
		`{"error":{"code":"10","text":"session invalid"}}`)
	c := newTestClient(t, srv.URL)

	err := c.Ping(context.Background(), "stale")
	if !IsSessionInvalid(err) {
		t.Errorf("Ping() error = %v, want session invalid", err)
	}
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	srv := newMockServer(t, http.StatusBadGateway, `{"error":{"code":"0","text":"OK"}}`)
	c := newTestClient(t, srv.URL)

	err := c.Ping(context.Background(), "s-1")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Ping() error = %v, want ErrTransport", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Status != http.StatusBadGateway {
		t.Errorf("TransportError = %+v, want status 502", te)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	if err := c.Ping(context.Background(), "s-1"); !errors.Is(err, ErrTransport) {
		t.Errorf("Ping() error = %v, want ErrTransport", err)
	}
}

func TestClient_Accounts(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{
		"error":{"code":"0","text":"OK"},
		"accountInfos":[
			{"number":"C1","accountType":"CSH","bank":{"bankName":"flatex","bic":"BIC1","blz":"BLZ1","countryCode":"AT"}},
			{"number":"D1","accountType":"DEP","bank":{"bankName":"flatex","bic":"BIC2","blz":"BLZ2","countryCode":"AT"}}
		]
	}`)
	c := newTestClient(t, srv.URL)

	resp, err := c.Accounts(context.Background(), "12345", "s-1")
	if err != nil {
		t.Fatalf("Accounts() error = %v", err)
	}
	depot := resp.Find(AccountTypeDepot)
	if depot == nil || depot.Number != "D1" || depot.BLZ != "BLZ2" {
		t.Errorf("Find(DEP) = %+v", depot)
	}
	if resp.Find("XYZ") != nil {
		t.Error("Find(XYZ) should be nil")
	}
}

func TestClient_PlaceOrder_LimitBuyRoundTrip(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{"error":{"code":"0","text":"OK"},"orderId":"o-7"}`)
	c := newTestClient(t, srv.URL)

	order, err := LimitBuy(3, Price{Value: decimal.RequireFromString("100.50"), Currency: "EUR"})
	if err != nil {
		t.Fatalf("LimitBuy() error = %v", err)
	}
	depot := Account{Number: "D1", BankName: "flatex", BIC: "BIC", BLZ: "BLZ", CountryCode: "AT"}
	cash := Account{Number: "C1", BankName: "flatex", BIC: "BIC", BLZ: "BLZ", CountryCode: "AT"}

	resp, err := c.PlaceOrder(context.Background(), "12345", "s-1", Hash("123456"), depot, cash, PlaceOrderArgs{
		ISIN:     "DE0007164600",
		Quantity: decimal.NewFromInt(10),
		Exchange: "A54",
		Order:    order,
	}, DefaultAuthMethod)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if resp.OrderID != "o-7" {
		t.Errorf("OrderID = %q, want o-7", resp.OrderID)
	}

	a := args(t, srv.lastBody())
	ident := a["identification"].(map[string]any)
	if ident["transactionPin"] != string(Hash("123456")) {
		t.Errorf("transactionPin = %v, want digest", ident["transactionPin"])
	}

	sent := a["order"].(map[string]any)
	if sent["sell"] != false || sent["limitExtension"] != float64(3) {
		t.Errorf("sell/limitExtension = %v/%v", sent["sell"], sent["limitExtension"])
	}
	limit := sent["limitPrice"].(map[string]any)
	v, err := decimal.NewFromString(limit["value"].(string))
	if err != nil {
		t.Fatalf("limitPrice.value is not a decimal string: %v", limit["value"])
	}
	if !v.Equal(decimal.RequireFromString("100.50")) || limit["currency"] != "EUR" {
		t.Errorf("limitPrice = %v", limit)
	}
	qty := sent["value"].(map[string]any)
	if qty["value"] != "10" || qty["currency"] != "XXX" {
		t.Errorf("value = %v", qty)
	}
	if sent["stockExchange"] != "A54" || sent["validityKind"] != float64(1) {
		t.Errorf("stockExchange/validityKind = %v/%v", sent["stockExchange"], sent["validityKind"])
	}
	if _, ok := sent["stopLimit"]; ok {
		t.Error("stopLimit should be omitted")
	}
	if sent["depot"].(map[string]any)["bank"].(map[string]any)["blz"] != "BLZ" {
		t.Errorf("depot = %v", sent["depot"])
	}
}

func TestClient_PlaceOrder_ZeroOrder(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.PlaceOrder(context.Background(), "p", "s", "", Account{}, Account{}, PlaceOrderArgs{}, DefaultAuthMethod)
	if !errors.Is(err, ErrUnsupportedOrder) {
		t.Errorf("PlaceOrder() error = %v, want ErrUnsupportedOrder", err)
	}
}

func TestClient_Search(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{
		"error":{"code":"0","text":"OK"},
		"morePapers":false,
		"papers":[{"isin":"DE0007164600","sin":"716460","name":"SAP","kind":"AKT","currency":"EUR","unit":1,
			"exchangeInfoList":[{"exchange":"A54","exchangeDescription":"Tradegate","currency":"EUR","minSize":"1"}]}]
	}`)
	c := newTestClient(t, srv.URL)

	resp, err := c.Search(context.Background(), "s-1", "SAP")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if p := resp.Find("716460"); p == nil || p.ISIN != "DE0007164600" {
		t.Errorf("Find(716460) = %+v", p)
	}
	obj := args(t, srv.lastBody())["searchObj"].(map[string]any)
	if obj["searchString"] != "SAP" {
		t.Errorf("searchString = %v", obj["searchString"])
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := newMockServer(t, http.StatusOK, `{"error":{"code":"0","text":"OK"}}`)
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Ping(ctx, "s-1"); !errors.Is(err, ErrTransport) {
		t.Errorf("Ping() error = %v, want ErrTransport", err)
	}
}
