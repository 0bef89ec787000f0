package gateway

import (
	"bytes"
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
	krakenWSURL    = "wss://ws.kraken.com"
	krakenRESTBase = "https://api.kraken.com/0/public"
)

// krakenInterval maps timeframe labels to OHLC interval minutes.
var krakenInterval = map[string]int{
	"1m": 1, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "4h": 240, "1d": 1440, "1w": 10080,
}

// Kraken streams the v1 websocket trade channel. Trade frames are JSON
// arrays, everything else (heartbeats, subscription status) is an
// object and is skipped.
type Kraken struct {
	symbol         string
	exchangeSymbol string // "BTC/USD"
	WSURL          string
	RESTBase       string
	HTTPClient     *http.Client
	log            *zap.Logger
}

func NewKraken(symbol string, log *zap.Logger) *Kraken {
	return &Kraken{
		symbol:         symbol,
		exchangeSymbol: strings.ToUpper(symbol),
		WSURL:          krakenWSURL,
		RESTBase:       krakenRESTBase,
		HTTPClient:     NewDefaultHTTPClient(),
		log:            log.With(zap.String("exchange", "Kraken")),
	}
}

func (k *Kraken) Name() string { return "Kraken" }

func (k *Kraken) Stream(ctx context.Context, out chan<- market.PriceUpdate) error {
	subscribe := func(conn wsConn) error {
		msg, _ := json.Marshal(map[string]any{
			"event":        "subscribe",
			"pair":         []string{k.exchangeSymbol},
			"subscription": map[string]string{"name": "trade"},
		})
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	return runStream(ctx, k.log, k.Name(), k.WSURL, subscribe, func(conn wsConn, msg []byte) {
		k.handleMessage(conn, msg, func(u market.PriceUpdate) { emit(ctx, out, u) })
	})
}

func (k *Kraken) handleMessage(_ wsConn, msg []byte, emitFn func(market.PriceUpdate)) {
	// [channelID, [[price, volume, time, side, ...], ...], "trade", pair]
	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 4 {
		return
	}
	var channel string
	if err := json.Unmarshal(frame[2], &channel); err != nil || channel != "trade" {
		return
	}
	var trades [][]string
	if err := json.Unmarshal(frame[1], &trades); err != nil {
		k.log.Debug("skipping malformed trade frame", zap.Error(err))
		return
	}
	for _, tr := range trades {
		if len(tr) < 4 {
			continue
		}
		seconds, err := strconv.ParseFloat(tr[2], 64)
		if err != nil {
			continue
		}
		side := market.SideSell
		if tr[3] == "b" {
			side = market.SideBuy
		}
		emitFn(market.PriceUpdate{
			Symbol:     k.symbol,
			Exchange:   k.Name(),
			Price:      tr[0],
			Size:       tr[1],
			Side:       side,
			ExchangeTS: time.UnixMilli(int64(seconds * 1000)).UTC(),
			ReceivedTS: time.Now().UTC(),
		})
	}
}

type krakenOHLCResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// FetchHistorical requests /OHLC. Rows are oldest first:
// [time, open, high, low, close, vwap, volume, count].
func (k *Kraken) FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	interval, ok := krakenInterval[timeframe]
	if !ok {
		return nil, nil
	}
	url := fmt.Sprintf("%s/OHLC?pair=%s&interval=%d", k.RESTBase, k.exchangeSymbol, interval)

	var resp krakenOHLCResponse
	if err := getJSON(ctx, k.HTTPClient, k.Name(), url, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, &HistoricalFetchError{Exchange: k.Name(), Err: fmt.Errorf("api error: %s", strings.Join(resp.Error, "; "))}
	}
	// The result is keyed by Kraken's pair name plus a "last" cursor.
	var raw json.RawMessage
	if r, ok := resp.Result[k.exchangeSymbol]; ok {
		raw = r
	} else {
		for key, r := range resp.Result {
			if key != "last" {
				raw = r
				break
			}
		}
	}
	if raw == nil {
		return nil, &HistoricalFetchError{Exchange: k.Name(), Err: fmt.Errorf("no OHLC rows for %s", k.exchangeSymbol)}
	}
	var rows [][]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, &HistoricalFetchError{Exchange: k.Name(), Err: err}
	}
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		sec, err := toInt64(row[0])
		if err != nil {
			continue
		}
		candles = append(candles, market.Candle{
			Symbol:    k.symbol,
			Timeframe: timeframe,
			OpenTime:  time.Unix(sec, 0).UTC(),
			Open:      fieldString(row[1]),
			High:      fieldString(row[2]),
			Low:       fieldString(row[3]),
			Close:     fieldString(row[4]),
			Volume:    fieldString(row[6]),
		})
	}
	return candles, nil
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}
