package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NewDefaultHTTPClient returns the client adapters use for historical
// fetches; tests inject an httptest client instead.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// getJSON performs one GET and decodes the body into v, preserving
// numeric literals as json.Number. Any transport, status or decode
// failure is wrapped in a HistoricalFetchError.
func getJSON(ctx context.Context, client *http.Client, exchange, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &HistoricalFetchError{Exchange: exchange, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &HistoricalFetchError{Exchange: exchange, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &HistoricalFetchError{Exchange: exchange, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &HistoricalFetchError{Exchange: exchange, Err: err}
	}
	return nil
}

// fieldString renders a decoded JSON scalar as its exact decimal text.
// Exchanges mix string and numeric encodings for the same fields;
// json.Number keeps the literal untouched either way.
func fieldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
