package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cryptochart/market"
)

const (
	bitstampWSURL    = "wss://ws.bitstamp.net"
	bitstampRESTBase = "https://www.bitstamp.net/api/v2"
)

// bitstampStep maps timeframe labels to the OHLC endpoint step seconds.
var bitstampStep = map[string]int{
	"1m": 60, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "4h": 14400, "1d": 86400,
}

// Bitstamp streams the live_trades_<pair> channel.
type Bitstamp struct {
	symbol         string
	exchangeSymbol string // "btcusd"
	WSURL          string
	RESTBase       string
	HTTPClient     *http.Client
	log            *zap.Logger
}

func NewBitstamp(symbol string, log *zap.Logger) *Bitstamp {
	return &Bitstamp{
		symbol:         symbol,
		exchangeSymbol: strings.ToLower(strings.ReplaceAll(symbol, "/", "")),
		WSURL:          bitstampWSURL,
		RESTBase:       bitstampRESTBase,
		HTTPClient:     NewDefaultHTTPClient(),
		log:            log.With(zap.String("exchange", "Bitstamp")),
	}
}

func (b *Bitstamp) Name() string { return "Bitstamp" }

type bitstampEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type bitstampTrade struct {
	Price     json.Number `json:"price"`
	Amount    json.Number `json:"amount"`
	Timestamp string      `json:"timestamp"` // unix seconds, as a string
	Type      int         `json:"type"`      // 0 buy, 1 sell
}

func (b *Bitstamp) Stream(ctx context.Context, out chan<- market.PriceUpdate) error {
	subscribe := func(conn wsConn) error {
		msg, _ := json.Marshal(map[string]any{
			"event": "bts:subscribe",
			"data":  map[string]string{"channel": "live_trades_" + b.exchangeSymbol},
		})
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	return runStream(ctx, b.log, b.Name(), b.WSURL, subscribe, func(conn wsConn, msg []byte) {
		b.handleMessage(conn, msg, func(u market.PriceUpdate) { emit(ctx, out, u) })
	})
}

func (b *Bitstamp) handleMessage(_ wsConn, msg []byte, emitFn func(market.PriceUpdate)) {
	var env bitstampEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		b.log.Debug("skipping undecodable message", zap.Error(err))
		return
	}
	if env.Event != "trade" {
		return
	}
	var tr bitstampTrade
	if err := json.Unmarshal(env.Data, &tr); err != nil {
		b.log.Debug("skipping malformed trade payload", zap.Error(err))
		return
	}
	sec, err := strconv.ParseInt(tr.Timestamp, 10, 64)
	if err != nil {
		return
	}
	side := market.SideBuy
	if tr.Type != 0 {
		side = market.SideSell
	}
	emitFn(market.PriceUpdate{
		Symbol:     b.symbol,
		Exchange:   b.Name(),
		Price:      tr.Price.String(),
		Size:       tr.Amount.String(),
		Side:       side,
		ExchangeTS: time.Unix(sec, 0).UTC(),
		ReceivedTS: time.Now().UTC(),
	})
}

type bitstampOHLCResponse struct {
	Data struct {
		OHLC []struct {
			Timestamp string `json:"timestamp"`
			Open      string `json:"open"`
			High      string `json:"high"`
			Low       string `json:"low"`
			Close     string `json:"close"`
			Volume    string `json:"volume"`
		} `json:"ohlc"`
	} `json:"data"`
}

func (b *Bitstamp) FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	step, ok := bitstampStep[timeframe]
	if !ok {
		return nil, nil
	}
	url := fmt.Sprintf("%s/ohlc/%s/?step=%d&limit=%d", b.RESTBase, b.exchangeSymbol, step, limit)

	var resp bitstampOHLCResponse
	if err := getJSON(ctx, b.HTTPClient, b.Name(), url, &resp); err != nil {
		return nil, err
	}
	candles := make([]market.Candle, 0, len(resp.Data.OHLC))
	for _, row := range resp.Data.OHLC {
		sec, err := strconv.ParseInt(row.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, market.Candle{
			Symbol:    b.symbol,
			Timeframe: timeframe,
			OpenTime:  time.Unix(sec, 0).UTC(),
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}
	return candles, nil
}
