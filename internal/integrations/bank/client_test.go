package bank

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testClient(baseURL string) *Client {
	c := NewClient(baseURL, testLogger())
	c.baseBackoff = time.Millisecond
	return c
}

func TestGetTransactionsParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "user-1" {
			t.Errorf("user_id = %q, want user-1", got)
		}
		if got := r.URL.Query().Get("window_days"); got != "90" {
			t.Errorf("window_days = %q, want 90", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"user_id": "user-1",
			"transactions": [
				{"date": "2026-05-01", "amount_cents": 70000, "balance_after_cents": 120000, "nsf": false},
				{"date": "2026-05-03", "amount_cents": -1250, "nsf": true}
			]
		}`))
	}))
	defer srv.Close()

	events, err := testClient(srv.URL).GetTransactions(context.Background(), "user-1", 90)
	if err != nil {
		t.Fatalf("GetTransactions returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].AmountCents != 70000 || events[0].BalanceAfterCents == nil || *events[0].BalanceAfterCents != 120000 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].BalanceAfterCents != nil {
		t.Fatalf("second event balance should be absent, got %d", *events[1].BalanceAfterCents)
	}
	if !events[1].NSF {
		t.Fatal("second event should carry the NSF flag")
	}
	if events[0].Timestamp.Format("2006-01-02") != "2026-05-01" {
		t.Fatalf("unexpected first event date: %s", events[0].Timestamp)
	}
}

func TestGetTransactionsParsesLegacyXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
			<statement user_id="user-1">
				<transactions>
					<transaction date="2026-05-01" amount_cents="70000" balance_after_cents="120000" nsf="false"/>
					<transaction date="2026-05-04" amount_cents="-2500" nsf="true"/>
				</transactions>
			</statement>`))
	}))
	defer srv.Close()

	events, err := testClient(srv.URL).GetTransactions(context.Background(), "user-1", 90)
	if err != nil {
		t.Fatalf("GetTransactions returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].AmountCents != 70000 || events[0].BalanceAfterCents == nil || *events[0].BalanceAfterCents != 120000 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].AmountCents != -2500 || events[1].BalanceAfterCents != nil || !events[1].NSF {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestGetTransactionsNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetTransactions(context.Background(), "ghost", 90)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if ferr.Kind != KindNotFound {
		t.Fatalf("kind = %s, want %s", ferr.Kind, KindNotFound)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("provider called %d times, want 1 (404 is authoritative)", got)
	}
}

func TestGetTransactionsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetTransactions(context.Background(), "user-1", 90)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if ferr.Kind != KindHTTP {
		t.Fatalf("kind = %s, want %s", ferr.Kind, KindHTTP)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("provider called %d times, want full retry budget of 3", got)
	}
}

func TestGetTransactionsRecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id": "user-1", "transactions": []}`))
	}))
	defer srv.Close()

	events, err := testClient(srv.URL).GetTransactions(context.Background(), "user-1", 90)
	if err != nil {
		t.Fatalf("GetTransactions returned error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events, want empty history", len(events))
	}
}

func TestGetTransactionsClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.client.Timeout = 20 * time.Millisecond

	_, err := c.GetTransactions(context.Background(), "user-1", 90)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if ferr.Kind != KindTimeout {
		t.Fatalf("kind = %s, want %s", ferr.Kind, KindTimeout)
	}
}

func TestGetTransactionsClassifiesConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := testClient(srv.URL).GetTransactions(context.Background(), "user-1", 90)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if ferr.Kind != KindConnection {
		t.Fatalf("kind = %s, want %s", ferr.Kind, KindConnection)
	}
}

func TestGetTransactionsRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transactions": [{"date": "not-a-date", "amount_cents": 1}]}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetTransactions(context.Background(), "user-1", 90)

	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if ferr.Kind != KindHTTP {
		t.Fatalf("kind = %s, want %s", ferr.Kind, KindHTTP)
	}
}
