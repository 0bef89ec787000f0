package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cryptochart/market"
)

const (
	bitvavoWSURL    = "wss://ws.bitvavo.com/v2/"
	bitvavoRESTBase = "https://api.bitvavo.com/v2"
)

// bitvavoIntervals are the candle intervals Bitvavo serves; labels pass
// through verbatim.
var bitvavoIntervals = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "4h": true, "1d": true,
}

// Bitvavo streams the v2 trades channel.
type Bitvavo struct {
	symbol         string
	exchangeSymbol string // "BTC-EUR"
	WSURL          string
	RESTBase       string
	HTTPClient     *http.Client
	log            *zap.Logger
}

func NewBitvavo(symbol string, log *zap.Logger) *Bitvavo {
	return &Bitvavo{
		symbol:         symbol,
		exchangeSymbol: strings.ReplaceAll(symbol, "/", "-"),
		WSURL:          bitvavoWSURL,
		RESTBase:       bitvavoRESTBase,
		HTTPClient:     NewDefaultHTTPClient(),
		log:            log.With(zap.String("exchange", "Bitvavo")),
	}
}

func (b *Bitvavo) Name() string { return "Bitvavo" }

type bitvavoTrade struct {
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"` // ms
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Side      string `json:"side"`
}

func (b *Bitvavo) Stream(ctx context.Context, out chan<- market.PriceUpdate) error {
	subscribe := func(conn wsConn) error {
		msg, _ := json.Marshal(map[string]any{
			"action": "subscribe",
			"channels": []map[string]any{
				{"name": "trades", "markets": []string{b.exchangeSymbol}},
			},
		})
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	return runStream(ctx, b.log, b.Name(), b.WSURL, subscribe, func(conn wsConn, msg []byte) {
		b.handleMessage(conn, msg, func(u market.PriceUpdate) { emit(ctx, out, u) })
	})
}

func (b *Bitvavo) handleMessage(_ wsConn, msg []byte, emitFn func(market.PriceUpdate)) {
	var tr bitvavoTrade
	if err := json.Unmarshal(msg, &tr); err != nil {
		b.log.Debug("skipping undecodable message", zap.Error(err))
		return
	}
	if tr.Event != "trade" {
		return
	}
	emitFn(market.PriceUpdate{
		Symbol:     b.symbol,
		Exchange:   b.Name(),
		Price:      tr.Price,
		Size:       tr.Amount,
		Side:       market.Side(strings.ToUpper(tr.Side)),
		ExchangeTS: time.UnixMilli(tr.Timestamp).UTC(),
		ReceivedTS: time.Now().UTC(),
	})
}

// FetchHistorical requests /<market>/candles. Rows arrive newest first
// as [timestamp_ms, open, high, low, close, volume].
func (b *Bitvavo) FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	if !bitvavoIntervals[timeframe] {
		return nil, nil
	}
	url := fmt.Sprintf("%s/%s/candles?interval=%s&limit=%d", b.RESTBase, b.exchangeSymbol, timeframe, limit)

	var rows [][]any
	if err := getJSON(ctx, b.HTTPClient, b.Name(), url, &rows); err != nil {
		return nil, err
	}
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- { // oldest first
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		millis, err := toInt64(row[0])
		if err != nil {
			continue
		}
		candles = append(candles, market.Candle{
			Symbol:    b.symbol,
			Timeframe: timeframe,
			OpenTime:  time.UnixMilli(millis).UTC(),
			Open:      fieldString(row[1]),
			High:      fieldString(row[2]),
			Low:       fieldString(row[3]),
			Close:     fieldString(row[4]),
			Volume:    fieldString(row[5]),
		})
	}
	return candles, nil
}
