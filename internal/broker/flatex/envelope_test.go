package flatex

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEnvelopeError_Effective(t *testing.T) {
	tests := []struct {
		name     string
		err      *EnvelopeError
		wantNil  bool
		wantCode string
		wantText string
	}{
		{
			name:    "nil",
			err:     nil,
			wantNil: true,
		},
		{
			name:    "ok",
			err:     &EnvelopeError{Code: "0", Text: "OK"},
			wantNil: true,
		},
		{
			name:     "flat",
			err:      &EnvelopeError{Code: "10", Text: "session invalid"},
			wantCode: "10",
			wantText: "session invalid",
		},
		{
			name: "nested twice",
			err: &EnvelopeError{Code: "1", Errors: []EnvelopeError{
				{Code: "1", Errors: []EnvelopeError{{Code: "5", Text: "x"}}},
			}},
			wantCode: "5",
			wantText: "x",
		},
		{
			name: "leftmost child wins",
			err: &EnvelopeError{Code: "1", Text: "outer", Errors: []EnvelopeError{
				{Code: "348", Text: "pin invalid"},
				{Code: "107", Text: "length invalid"},
			}},
			wantCode: "348",
			wantText: "pin invalid",
		},
		{
			name: "successful first child keeps parent",
			err: &EnvelopeError{Code: "1", Text: "outer", Errors: []EnvelopeError{
				{Code: "0", Text: "fine"},
			}},
			wantCode: "1",
			wantText: "outer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Effective()
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Effective() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Effective() = nil")
			}
			if got.Code != tt.wantCode || got.Text != tt.wantText {
				t.Errorf("Effective() = (%q, %q), want (%q, %q)", got.Code, got.Text, tt.wantCode, tt.wantText)
			}
		})
	}
}

func TestDecode_Success(t *testing.T) {
	body := `{"error":{"code":"0","text":"OK"},"authenticationMethodList":["pTAN"],"sessionId":"abc"}`

	var out LogonResponse
	if err := decode([]byte(body), &out); err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if out.SessionID != "abc" {
		t.Errorf("SessionID = %q, want %q", out.SessionID, "abc")
	}
}

func TestDecode_DomainFailure(t *testing.T) {
	// The payload fields are missing, so the bare envelope fallback must surface the error.
	body := `{"error":{"code":"1","text":"failed","errors":[{"code":"10","text":"session invalid"}]}}`

	var out LogonResponse
	err := decode([]byte(body), &out)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("decode() error = %v, want *Error", err)
	}
	if fe.Code != CodeSessionInvalid {
		t.Errorf("Code = %q, want %q", fe.Code, CodeSessionInvalid)
	}
	if !IsSessionInvalid(err) {
		t.Error("IsSessionInvalid() = false, want true")
	}
}

func TestDecode_DomainFailureWithPayload(t *testing.T) {
	body := `{"error":{"code":"348","text":"pin invalid"},"authenticationMethodList":[],"sessionId":"abc"}`

	var out LogonResponse
	err := decode([]byte(body), &out)
	if Code(err) != CodePINInvalid {
		t.Errorf("Code(err) = %q, want %q", Code(err), CodePINInvalid)
	}
}

func TestDecode_NestedConfirmError(t *testing.T) {
	body := `{"error":{"code":"0","text":"OK"},"response":{"error":{"code":"PTS_100","text":"expired"},"identificationUseCase":{"authUseCaseId":"u1"}}}`

	var out ConfirmAuthUseCaseResponse
	err := decode([]byte(body), &out)
	if Code(err) != CodeIdentificationChallengeExpired {
		t.Errorf("Code(err) = %q, want %q", Code(err), CodeIdentificationChallengeExpired)
	}
}

func TestDecode_StructuralFailure(t *testing.T) {
	body := `{"error":{"code":"0","text":"OK"},"authenticationMethodList":["pTAN"]}`

	var out LogonResponse
	err := decode([]byte(body), &out)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("decode() error = %v, want ErrDecode", err)
	}
	if !strings.Contains(err.Error(), "sessionId") {
		t.Errorf("error %q should name the missing field", err.Error())
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	var out Response
	err := decode([]byte(`<html>`), &out)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("decode() error = %v, want ErrDecode", err)
	}
}

func TestDecode_MissingEnvelope(t *testing.T) {
	var out Response
	err := decode([]byte(`{}`), &out)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("decode() error = %v, want ErrDecode", err)
	}
}

func TestDecode_MonetaryStrings(t *testing.T) {
	body := `{
		"error":{"code":"0","text":"OK"},
		"balanceInfo":{
			"account":{"number":"123"},
			"balanceBooked":{"amount":{"value":"1234.56","currency":"EUR"},"datetime":"2023-01-02T10:00:00+01:00"},
			"creditLine":{"value":"0","currency":"EUR"},
			"maxBuyingPowerMoneyTransfer":{"value":"1000","currency":"EUR"},
			"maxBuyingPowerOrder":{"value":"1200.5","currency":"EUR"}
		}
	}`

	var out BalanceResponse
	if err := decode([]byte(body), &out); err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	amount := out.BalanceInfo.BalanceBooked.Amount
	if amount.Value.String() != "1234.56" {
		t.Errorf("amount = %s, want 1234.56", amount.Value)
	}
	booked := out.BalanceInfo.BalanceBooked.Datetime.Time
	if !booked.Equal(time.Date(2023, 1, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("datetime = %v", booked)
	}
}

func TestTimestamp_Invalid(t *testing.T) {
	var ts Timestamp
	if err := ts.UnmarshalJSON([]byte(`"yesterday"`)); err == nil {
		t.Error("UnmarshalJSON() error = nil, want error")
	}
}
