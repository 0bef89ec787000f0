package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cryptochart/market"
	"cryptochart/metrics"
)

// wsConn is the slice of *websocket.Conn message handlers need; tests
// substitute a recorder.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
}

// retryPolicy bounds the connect-and-subscribe retry loop.
type retryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// streamRetry is shared by all adapters; tests override it for speed.
var streamRetry = retryPolicy{
	maxAttempts:    8,
	initialBackoff: 500 * time.Millisecond,
	maxBackoff:     30 * time.Second,
}

const wsReadTimeout = 90 * time.Second

// runStream drives one adapter's websocket lifecycle: dial, subscribe,
// read until the connection drops, reconnect. Consecutive failed
// connect-and-subscribe attempts are retried with exponential backoff up
// to the policy bound; a successful connection resets the budget.
func runStream(ctx context.Context, log *zap.Logger, exchange, wsURL string,
	subscribe func(wsConn) error, handle func(wsConn, []byte)) error {

	retries := 0
	backoff := streamRetry.initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err == nil && subscribe != nil {
			if err = subscribe(conn); err != nil {
				conn.Close()
				conn = nil
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			retries++
			if retries >= streamRetry.maxAttempts {
				return fmt.Errorf("%s: connect failed after %d attempts: %w", exchange, retries, err)
			}
			log.Warn("ws connect failed",
				zap.Int("attempt", retries),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > streamRetry.maxBackoff {
				backoff = streamRetry.maxBackoff
			}
			continue
		}

		retries = 0
		backoff = streamRetry.initialBackoff
		log.Info("ws connected", zap.String("url", wsURL))
		metrics.WSConnected.WithLabelValues(exchange).Set(1)

		err = readLoop(ctx, conn, handle)
		conn.Close()
		metrics.WSConnected.WithLabelValues(exchange).Set(0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("ws disconnected, reconnecting", zap.Error(err))
	}
}

// readLoop reads messages until the connection fails or ctx ends. The
// watcher goroutine closes the connection on cancellation to unblock
// ReadMessage promptly.
func readLoop(ctx context.Context, conn *websocket.Conn, handle func(wsConn, []byte)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(conn, msg)
	}
}

// emit pushes one tick, giving up when ctx ends.
func emit(ctx context.Context, out chan<- market.PriceUpdate, u market.PriceUpdate) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}
