package onvista

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"flatex_bot/internal/cache"
)

func TestClient_Search(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/v1/instruments/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("searchValue") != "SAP" || r.URL.Query().Get("limit") != "3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"list":[{"entityType":"STOCK","entityValue":"32377","name":"SAP SE","isin":"DE0007164600","wkn":"716460"}]}`))
	}))
	defer server.Close()

	c, err := cache.New(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	client := NewClient(server.URL, c, nil)

	resp, err := client.Search(context.Background(), "SAP", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.List) != 1 || resp.List[0].ISIN != "DE0007164600" || resp.List[0].EntityType != EntityStock {
		t.Errorf("Search() = %+v", resp.List)
	}

	c.Wait()
	if _, err := client.Search(context.Background(), "sap", 3); err != nil {
		t.Fatalf("cached Search() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (second search cached)", hits.Load())
	}
}

func TestClient_Snapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stocks/32377/snapshot" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"type":"StocksSnapshot",
			"instrument":{"entityType":"STOCK","entityValue":"32377","name":"SAP SE"},
			"quote":{"market":{"name":"Xetra","idNotation":1},"isoCurrency":"EUR","bid":172.1,"ask":172.2,"last":172.16,"datetimeLast":"2024-03-01T17:35:00.000+01:00"},
			"quoteList":{"list":[{"market":{"name":"Tradegate","idNotation":2},"isoCurrency":"EUR","last":172.3}]}
		}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, nil, nil).Snapshot(context.Background(), EntityStock, "32377")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	quotes := resp.Quotes()
	if len(quotes) != 2 {
		t.Fatalf("Quotes() len = %d, want 2", len(quotes))
	}
	if quotes[0].Last == nil || quotes[0].Last.String() != "172.16" {
		t.Errorf("main quote last = %v", quotes[0].Last)
	}
	if quotes[1].Bid != nil {
		t.Errorf("absent bid should be nil, got %v", quotes[1].Bid)
	}
	if quotes[0].DatetimeLast == nil {
		t.Error("datetimeLast not parsed")
	}
}

func TestClient_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"displayErrorMessage":"not found","errorCode":404,"errorMessage":"Instrument not found","identifier":"x","statusCode":404}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Snapshot(context.Background(), EntityFund, "1")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != 404 {
		t.Errorf("Snapshot() error = %v, want *Error 404", err)
	}
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Search(context.Background(), "x", 1)
	var apiErr *Error
	if err == nil || errors.As(err, &apiErr) {
		t.Errorf("Search() error = %v, want transport-style error", err)
	}
}

func TestClient_UnknownEntityType(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", nil, nil).Snapshot(context.Background(), "WARRANT", "1")
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("Snapshot() error = %v, want ErrUnknownEntityType", err)
	}
}
