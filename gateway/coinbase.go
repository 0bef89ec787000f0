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
	coinbaseWSURL    = "wss://ws-feed.exchange.coinbase.com"
	coinbaseRESTBase = "https://api.exchange.coinbase.com"
)

// coinbaseGranularity maps timeframe labels to candle granularity in
// seconds. Anything else is unsupported on Coinbase.
var coinbaseGranularity = map[string]int{
	"1m": 60, "5m": 300, "15m": 900,
	"1h": 3600, "4h": 14400, "1d": 86400,
}

// Coinbase streams the "matches" channel of Coinbase Exchange.
type Coinbase struct {
	symbol         string
	exchangeSymbol string // "BTC-USD"
	WSURL          string
	RESTBase       string
	HTTPClient     *http.Client
	log            *zap.Logger
}

func NewCoinbase(symbol string, log *zap.Logger) *Coinbase {
	return &Coinbase{
		symbol:         symbol,
		exchangeSymbol: strings.ReplaceAll(symbol, "/", "-"),
		WSURL:          coinbaseWSURL,
		RESTBase:       coinbaseRESTBase,
		HTTPClient:     NewDefaultHTTPClient(),
		log:            log.With(zap.String("exchange", "Coinbase Exchange")),
	}
}

func (c *Coinbase) Name() string { return "Coinbase Exchange" }

type coinbaseMatch struct {
	Type  string `json:"type"`
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`
	Time  string `json:"time"`
}

func (c *Coinbase) Stream(ctx context.Context, out chan<- market.PriceUpdate) error {
	subscribe := func(conn wsConn) error {
		msg, _ := json.Marshal(map[string]any{
			"type":        "subscribe",
			"product_ids": []string{c.exchangeSymbol},
			"channels":    []string{"matches"},
		})
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	return runStream(ctx, c.log, c.Name(), c.WSURL, subscribe, func(conn wsConn, msg []byte) {
		c.handleMessage(conn, msg, func(u market.PriceUpdate) { emit(ctx, out, u) })
	})
}

func (c *Coinbase) handleMessage(_ wsConn, msg []byte, emitFn func(market.PriceUpdate)) {
	var m coinbaseMatch
	if err := json.Unmarshal(msg, &m); err != nil {
		c.log.Debug("skipping undecodable message", zap.Error(err))
		return
	}
	if m.Type != "match" {
		return
	}
	ts, err := time.Parse(time.RFC3339Nano, m.Time)
	if err != nil {
		c.log.Debug("skipping match with bad timestamp", zap.String("time", m.Time))
		return
	}
	emitFn(market.PriceUpdate{
		Symbol:     c.symbol,
		Exchange:   c.Name(),
		Price:      m.Price,
		Size:       m.Size,
		Side:       market.Side(strings.ToUpper(m.Side)),
		ExchangeTS: ts.UTC(),
		ReceivedTS: time.Now().UTC(),
	})
}

// FetchHistorical requests /products/<id>/candles. Rows arrive newest
// first as [time, low, high, open, close, volume].
func (c *Coinbase) FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	granularity, ok := coinbaseGranularity[timeframe]
	if !ok {
		return nil, nil
	}
	url := fmt.Sprintf("%s/products/%s/candles?granularity=%d", c.RESTBase, c.exchangeSymbol, granularity)

	var rows [][]any
	if err := getJSON(ctx, c.HTTPClient, c.Name(), url, &rows); err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- { // oldest first
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		num, ok := row[0].(json.Number)
		if !ok {
			continue
		}
		sec, err := num.Int64()
		if err != nil {
			continue
		}
		candles = append(candles, market.Candle{
			Symbol:    c.symbol,
			Timeframe: timeframe,
			OpenTime:  time.Unix(sec, 0).UTC(),
			Open:      fieldString(row[3]),
			High:      fieldString(row[2]),
			Low:       fieldString(row[1]),
			Close:     fieldString(row[4]),
			Volume:    fieldString(row[5]),
		})
	}
	return candles, nil
}
