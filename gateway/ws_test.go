package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cryptochart/market"
)

func fastRetries(t *testing.T, attempts int) {
	t.Helper()
	prev := streamRetry
	streamRetry = retryPolicy{
		maxAttempts:    attempts,
		initialBackoff: time.Millisecond,
		maxBackoff:     5 * time.Millisecond,
	}
	t.Cleanup(func() { streamRetry = prev })
}

func TestRunStreamExhaustsRetries(t *testing.T) {
	fastRetries(t, 3)
	a := NewCoinbase("BTC/USD", zap.NewNop())
	a.WSURL = "ws://127.0.0.1:1" // nothing listens here

	out := make(chan market.PriceUpdate, 1)
	start := time.Now()
	err := a.Stream(context.Background(), out)
	if err == nil {
		t.Fatal("expected terminal error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("retry loop took too long")
	}
}

func TestRunStreamCancelledDuringBackoff(t *testing.T) {
	fastRetries(t, 1000)
	a := NewCoinbase("BTC/USD", zap.NewNop())
	a.WSURL = "ws://127.0.0.1:1"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Stream(ctx, make(chan market.PriceUpdate, 1)) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not observe cancellation")
	}
}

func TestCoinbaseStreamEndToEnd(t *testing.T) {
	fastRetries(t, 3)
	upgrader := websocket.Upgrader{}
	gotSubscribe := make(chan []byte, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		gotSubscribe <- msg
		match := `{"type":"match","price":"50000.5","size":"0.01","side":"buy","time":"2024-03-01T12:00:00Z"}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(match)); err != nil {
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	a := NewCoinbase("BTC/USD", zap.NewNop())
	a.WSURL = "ws" + strings.TrimPrefix(ts.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan market.PriceUpdate, 4)
	done := make(chan error, 1)
	go func() { done <- a.Stream(ctx, out) }()

	select {
	case msg := <-gotSubscribe:
		var sub struct {
			Type       string   `json:"type"`
			ProductIDs []string `json:"product_ids"`
			Channels   []string `json:"channels"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil {
			t.Fatalf("bad subscribe payload: %v", err)
		}
		if sub.Type != "subscribe" || len(sub.ProductIDs) != 1 || sub.ProductIDs[0] != "BTC-USD" {
			t.Fatalf("unexpected handshake %+v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription handshake received")
	}

	select {
	case u := <-out:
		if u.Price != "50000.5" || u.Exchange != "Coinbase Exchange" {
			t.Fatalf("unexpected tick %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick emitted")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop on cancellation")
	}
}
