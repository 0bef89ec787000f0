package gateway

import (
	"bytes"
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
	bitgetWSURL    = "wss://ws.bitget.com/v2/spot/public"
	bitgetRESTBase = "https://api.bitget.com/api/v2/spot/market"
)

// bitgetGranularity maps timeframe labels to candle granularity seconds,
// sent as strings.
var bitgetGranularity = map[string]string{
	"1m": "60", "5m": "300", "15m": "900",
	"1h": "3600", "4h": "14400", "1d": "86400",
}

// Bitget streams the v2 spot trade channel. Liveness pings arrive as
// plain "ping" text and are answered with "pong".
type Bitget struct {
	symbol         string
	exchangeSymbol string // "BTCUSDT"
	WSURL          string
	RESTBase       string
	HTTPClient     *http.Client
	log            *zap.Logger
}

func NewBitget(symbol string, log *zap.Logger) *Bitget {
	return &Bitget{
		symbol:         symbol,
		exchangeSymbol: strings.ReplaceAll(symbol, "/", ""),
		WSURL:          bitgetWSURL,
		RESTBase:       bitgetRESTBase,
		HTTPClient:     NewDefaultHTTPClient(),
		log:            log.With(zap.String("exchange", "Bitget")),
	}
}

func (b *Bitget) Name() string { return "Bitget" }

type bitgetMessage struct {
	Action string `json:"action"`
	Arg    struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data [][]string `json:"data"` // [ts_ms, price, size, side]
}

func (b *Bitget) Stream(ctx context.Context, out chan<- market.PriceUpdate) error {
	subscribe := func(conn wsConn) error {
		msg, _ := json.Marshal(map[string]any{
			"op": "subscribe",
			"args": []map[string]string{
				{"instType": "SPOT", "channel": "trade", "instId": b.exchangeSymbol},
			},
		})
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	return runStream(ctx, b.log, b.Name(), b.WSURL, subscribe, func(conn wsConn, msg []byte) {
		b.handleMessage(conn, msg, func(u market.PriceUpdate) { emit(ctx, out, u) })
	})
}

func (b *Bitget) handleMessage(conn wsConn, msg []byte, emitFn func(market.PriceUpdate)) {
	if bytes.Contains(msg, []byte("ping")) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		return
	}
	var m bitgetMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		b.log.Debug("skipping undecodable message", zap.Error(err))
		return
	}
	if m.Action != "snapshot" || m.Arg.Channel != "trade" {
		return
	}
	for _, tr := range m.Data {
		if len(tr) < 4 {
			continue
		}
		millis, err := toInt64(tr[0])
		if err != nil {
			continue
		}
		emitFn(market.PriceUpdate{
			Symbol:     b.symbol,
			Exchange:   b.Name(),
			Price:      tr[1],
			Size:       tr[2],
			Side:       market.Side(strings.ToUpper(tr[3])),
			ExchangeTS: time.UnixMilli(millis).UTC(),
			ReceivedTS: time.Now().UTC(),
		})
	}
}

type bitgetCandlesResponse struct {
	Data [][]string `json:"data"`
}

// FetchHistorical requests /candles. Rows are oldest first as
// [ts_ms, open, high, low, close, base_volume, ...].
func (b *Bitget) FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	granularity, ok := bitgetGranularity[timeframe]
	if !ok {
		return nil, nil
	}
	url := fmt.Sprintf("%s/candles?symbol=%s&granularity=%s&limit=%d", b.RESTBase, b.exchangeSymbol, granularity, limit)

	var resp bitgetCandlesResponse
	if err := getJSON(ctx, b.HTTPClient, b.Name(), url, &resp); err != nil {
		return nil, err
	}
	candles := make([]market.Candle, 0, len(resp.Data))
	for _, row := range resp.Data {
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
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return candles, nil
}
