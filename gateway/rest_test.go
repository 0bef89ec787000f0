package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func serveJSON(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
}

func TestBinanceFetchHistorical(t *testing.T) {
	ts := serveJSON(t, `[
		[1700000000000,"50000.1","50100.2","49900.3","50050.4","12.5",1700000059999,"0",10,"0","0","0"],
		[1700000060000,"50050.4","50200.0","50000.0","50150.0","8.25",1700000119999,"0",8,"0","0","0"]
	]`)
	defer ts.Close()

	a := NewBinance("BTC/USDT", zap.NewNop())
	a.RESTBase = ts.URL
	a.HTTPClient = ts.Client()

	candles, err := a.FetchHistorical(context.Background(), "1m", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != "50000.1" || c.High != "50100.2" || c.Low != "49900.3" || c.Close != "50050.4" || c.Volume != "12.5" {
		t.Fatalf("unexpected candle %+v", c)
	}
	if c.OpenTime != time.UnixMilli(1700000000000).UTC() {
		t.Fatalf("unexpected open time %v", c.OpenTime)
	}
	if !candles[1].OpenTime.After(candles[0].OpenTime) {
		t.Fatalf("candles not oldest first")
	}
}

func TestCoinbaseFetchHistoricalReversesRows(t *testing.T) {
	// Coinbase returns rows newest first as [time, low, high, open, close, volume].
	ts := serveJSON(t, `[
		[1700000060, 50000.0, 50200.0, 50050.4, 50150.0, 8.25],
		[1700000000, 49900.3, 50100.2, 50000.1, 50050.4, 12.5]
	]`)
	defer ts.Close()

	a := NewCoinbase("BTC/USD", zap.NewNop())
	a.RESTBase = ts.URL
	a.HTTPClient = ts.Client()

	candles, err := a.FetchHistorical(context.Background(), "1m", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Fatalf("candles not oldest first: %v then %v", candles[0].OpenTime, candles[1].OpenTime)
	}
	c := candles[0]
	if c.Open != "50000.1" || c.High != "50100.2" || c.Low != "49900.3" || c.Close != "50050.4" {
		t.Fatalf("column mapping wrong: %+v", c)
	}
}

func TestCoinbaseUnsupportedTimeframeIsEmpty(t *testing.T) {
	a := NewCoinbase("BTC/USD", zap.NewNop())
	a.RESTBase = "http://127.0.0.1:1" // must not be contacted
	candles, err := a.FetchHistorical(context.Background(), "30m", 10)
	if err != nil {
		t.Fatalf("unsupported timeframe must not error, got %v", err)
	}
	if len(candles) != 0 {
		t.Fatalf("expected empty result, got %d", len(candles))
	}
}

func TestKrakenFetchHistorical(t *testing.T) {
	ts := serveJSON(t, `{"error":[],"result":{"BTC/USD":[
		[1700000000,"50000.1","50100.2","49900.3","50050.4","50010.0","12.5",30],
		[1700000060,"50050.4","50200.0","50000.0","50150.0","50100.0","8.25",20]
	],"last":1700000060}}`)
	defer ts.Close()

	a := NewKraken("BTC/USD", zap.NewNop())
	a.RESTBase = ts.URL
	a.HTTPClient = ts.Client()

	candles, err := a.FetchHistorical(context.Background(), "1m", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// limit=1 keeps the most recent row.
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != "50050.4" || c.Volume != "8.25" {
		t.Fatalf("unexpected candle %+v", c)
	}
}

func TestKrakenAPIErrorSurfaced(t *testing.T) {
	ts := serveJSON(t, `{"error":["EQuery:Unknown asset pair"],"result":{}}`)
	defer ts.Close()

	a := NewKraken("BTC/USD", zap.NewNop())
	a.RESTBase = ts.URL
	a.HTTPClient = ts.Client()

	_, err := a.FetchHistorical(context.Background(), "1m", 10)
	var fetchErr *HistoricalFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected HistoricalFetchError, got %v", err)
	}
}

func TestBitstampFetchHistorical(t *testing.T) {
	ts := serveJSON(t, `{"data":{"pair":"BTC/USD","ohlc":[
		{"timestamp":"1700000000","open":"50000.1","high":"50100.2","low":"49900.3","close":"50050.4","volume":"12.5"}
	]}}`)
	defer ts.Close()

	a := NewBitstamp("BTC/USD", zap.NewNop())
	a.RESTBase = ts.URL
	a.HTTPClient = ts.Client()

	candles, err := a.FetchHistorical(context.Background(), "1h", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 1 || candles[0].Close != "50050.4" {
		t.Fatalf("unexpected candles %+v", candles)
	}
}

func TestOKXFetchHistoricalReversesRows(t *testing.T) {
	ts := serveJSON(t, `{"code":"0","data":[
		["1700000060000","50050.4","50200.0","50000.0","50150.0","8.25","0","0","1"],
		["1700000000000","50000.1","50100.2","49900.3","50050.4","12.5","0","0","1"]
	]}`)
	defer ts.Close()

	a := NewOKX("BTC/USDT", zap.NewNop())
	a.RESTBase = ts.URL
	a.HTTPClient = ts.Client()

	candles, err := a.FetchHistorical(context.Background(), "4h", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 || !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Fatalf("candles not oldest first: %+v", candles)
	}
}

func TestBitgetUnsupportedTimeframeIsEmpty(t *testing.T) {
	a := NewBitget("BTC/USDT", zap.NewNop())
	a.RESTBase = "http://127.0.0.1:1"
	candles, err := a.FetchHistorical(context.Background(), "1w", 10)
	if err != nil || candles != nil {
		t.Fatalf("expected empty, got %v / %v", candles, err)
	}
}

func TestServerErrorWrapped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	a := NewBinance("BTC/USDT", zap.NewNop())
	a.RESTBase = ts.URL
	a.HTTPClient = ts.Client()

	_, err := a.FetchHistorical(context.Background(), "1m", 10)
	var fetchErr *HistoricalFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected HistoricalFetchError, got %v", err)
	}
	if fetchErr.Exchange != "Binance" {
		t.Fatalf("wrong exchange in error: %q", fetchErr.Exchange)
	}
}
