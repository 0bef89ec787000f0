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
	okxWSURL    = "wss://ws.okx.com:8443/ws/v5/public"
	okxRESTBase = "https://www.okx.com/api/v5/market"
)

// okxBar maps timeframe labels to OKX bar codes; hours and above are
// uppercase there.
var okxBar = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1H", "4h": "4H", "1d": "1D", "1w": "1W",
}

// OKX streams the v5 public trades channel. The server probes liveness
// with a textual "ping" that must be answered with "pong".
type OKX struct {
	symbol         string
	exchangeSymbol string // "BTC-USDT"
	WSURL          string
	RESTBase       string
	HTTPClient     *http.Client
	log            *zap.Logger
}

func NewOKX(symbol string, log *zap.Logger) *OKX {
	return &OKX{
		symbol:         symbol,
		exchangeSymbol: strings.ReplaceAll(symbol, "/", "-"),
		WSURL:          okxWSURL,
		RESTBase:       okxRESTBase,
		HTTPClient:     NewDefaultHTTPClient(),
		log:            log.With(zap.String("exchange", "OKX")),
	}
}

func (o *OKX) Name() string { return "OKX" }

type okxMessage struct {
	Arg struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data []struct {
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Side string `json:"side"`
		TS   string `json:"ts"` // ms
	} `json:"data"`
}

func (o *OKX) Stream(ctx context.Context, out chan<- market.PriceUpdate) error {
	subscribe := func(conn wsConn) error {
		msg, _ := json.Marshal(map[string]any{
			"op": "subscribe",
			"args": []map[string]string{
				{"channel": "trades", "instId": o.exchangeSymbol},
			},
		})
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	return runStream(ctx, o.log, o.Name(), o.WSURL, subscribe, func(conn wsConn, msg []byte) {
		o.handleMessage(conn, msg, func(u market.PriceUpdate) { emit(ctx, out, u) })
	})
}

func (o *OKX) handleMessage(conn wsConn, msg []byte, emitFn func(market.PriceUpdate)) {
	if bytes.Equal(msg, []byte("ping")) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
		return
	}
	var m okxMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		o.log.Debug("skipping undecodable message", zap.Error(err))
		return
	}
	if m.Arg.Channel != "trades" {
		return
	}
	for _, tr := range m.Data {
		millis, err := toInt64(tr.TS)
		if err != nil {
			continue
		}
		emitFn(market.PriceUpdate{
			Symbol:     o.symbol,
			Exchange:   o.Name(),
			Price:      tr.Px,
			Size:       tr.Sz,
			Side:       market.Side(strings.ToUpper(tr.Side)),
			ExchangeTS: time.UnixMilli(millis).UTC(),
			ReceivedTS: time.Now().UTC(),
		})
	}
}

type okxCandlesResponse struct {
	Data [][]string `json:"data"`
}

// FetchHistorical requests /candles. Rows arrive newest first as
// [ts_ms, open, high, low, close, volume, ...].
func (o *OKX) FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	bar, ok := okxBar[timeframe]
	if !ok {
		return nil, nil
	}
	url := fmt.Sprintf("%s/candles?instId=%s&bar=%s&limit=%d", o.RESTBase, o.exchangeSymbol, bar, limit)

	var resp okxCandlesResponse
	if err := getJSON(ctx, o.HTTPClient, o.Name(), url, &resp); err != nil {
		return nil, err
	}
	candles := make([]market.Candle, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- { // oldest first
		row := resp.Data[i]
		if len(row) < 6 {
			continue
		}
		millis, err := toInt64(row[0])
		if err != nil {
			continue
		}
		candles = append(candles, market.Candle{
			Symbol:    o.symbol,
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
