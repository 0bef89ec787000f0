package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"cryptochart/market"
)

const (
	binanceWSBase   = "wss://stream.binance.com:9443/ws"
	binanceRESTBase = "https://api.binance.com/api/v3"
)

// Binance streams the <symbol>@trade channel and fetches /klines.
type Binance struct {
	symbol         string
	exchangeSymbol string // "btcusdt"
	WSBase         string
	RESTBase       string
	HTTPClient     *http.Client
	log            *zap.Logger
}

func NewBinance(symbol string, log *zap.Logger) *Binance {
	return &Binance{
		symbol:         symbol,
		exchangeSymbol: strings.ToLower(strings.ReplaceAll(symbol, "/", "")),
		WSBase:         binanceWSBase,
		RESTBase:       binanceRESTBase,
		HTTPClient:     NewDefaultHTTPClient(),
		log:            log.With(zap.String("exchange", "Binance")),
	}
}

func (b *Binance) Name() string { return "Binance" }

type binanceTrade struct {
	Event        string `json:"e"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

func (b *Binance) Stream(ctx context.Context, out chan<- market.PriceUpdate) error {
	streamURL := fmt.Sprintf("%s/%s@trade", b.WSBase, b.exchangeSymbol)
	return runStream(ctx, b.log, b.Name(), streamURL, nil, func(c wsConn, msg []byte) {
		b.handleMessage(c, msg, func(u market.PriceUpdate) { emit(ctx, out, u) })
	})
}

func (b *Binance) handleMessage(_ wsConn, msg []byte, emitFn func(market.PriceUpdate)) {
	var tr binanceTrade
	if err := json.Unmarshal(msg, &tr); err != nil {
		b.log.Debug("skipping undecodable message", zap.Error(err))
		return
	}
	if tr.Event != "trade" {
		return
	}
	side := market.SideBuy
	if tr.BuyerIsMaker {
		side = market.SideSell
	}
	emitFn(market.PriceUpdate{
		Symbol:     b.symbol,
		Exchange:   b.Name(),
		Price:      tr.Price,
		Size:       tr.Qty,
		Side:       side,
		ExchangeTS: time.UnixMilli(tr.TradeTime).UTC(),
		ReceivedTS: time.Now().UTC(),
	})
}

// FetchHistorical passes the timeframe label through verbatim; Binance
// interval names match ours.
func (b *Binance) FetchHistorical(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(b.exchangeSymbol))
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]any
	if err := getJSON(ctx, b.HTTPClient, b.Name(), b.RESTBase+"/klines?"+q.Encode(), &rows); err != nil {
		return nil, err
	}
	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		num, ok := row[0].(json.Number)
		if !ok {
			continue
		}
		openMillis, err := num.Int64()
		if err != nil {
			continue
		}
		candles = append(candles, market.Candle{
			Symbol:    b.symbol,
			Timeframe: timeframe,
			OpenTime:  time.UnixMilli(openMillis).UTC(),
			Open:      fieldString(row[1]),
			High:      fieldString(row[2]),
			Low:       fieldString(row[3]),
			Close:     fieldString(row[4]),
			Volume:    fieldString(row[5]),
		})
	}
	return candles, nil
}
