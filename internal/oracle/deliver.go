package oracle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chandiniv1/secret-number-game/internal/game"
)

// Callback is one signed decryption result.
type Callback struct {
	RequestID game.RequestID `json:"requestId"`
	Name      string         `json:"callback,omitempty"`
	Cleartext Hex            `json:"cleartext"`
	Proof     string         `json:"proof"`
}

// Hex is a byte string that travels as 0x-prefixed hex in JSON.
type Hex []byte

func (h Hex) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(h)), nil
}

func (h *Hex) UnmarshalText(b []byte) error {
	s := strings.TrimPrefix(string(b), "0x")
	out, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("cleartext: %w", err)
	}
	*h = out
	return nil
}

// Deliverer hands a Callback to the registered handler. Returning one of
// game.ErrAlreadyProcessed, game.ErrInvalidRequest,
// game.ErrUnauthorizedDecryption or game.ErrMalformedResult stops retries.
type Deliverer interface {
	Deliver(ctx context.Context, cb Callback) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, cb Callback) error

func (f DelivererFunc) Deliver(ctx context.Context, cb Callback) error { return f(ctx, cb) }

// HTTPDeliverer POSTs callbacks as JSON to URL.
type HTTPDeliverer struct {
	URL    string
	Client *http.Client
}

// NewHTTPDeliverer returns a deliverer with a 10s client timeout.
func NewHTTPDeliverer(url string) *HTTPDeliverer {
	return &HTTPDeliverer{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Deliver maps the callback route's status codes back onto the game errors.
func (d *HTTPDeliverer) Deliver(ctx context.Context, cb Callback) error {
	body, err := json.Marshal(cb)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", game.ErrAlreadyProcessed, bytes.TrimSpace(msg))
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", game.ErrInvalidRequest, bytes.TrimSpace(msg))
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", game.ErrUnauthorizedDecryption, bytes.TrimSpace(msg))
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", game.ErrMalformedResult, bytes.TrimSpace(msg))
	}
	return fmt.Errorf("callback %s: status %d: %s", d.URL, resp.StatusCode, bytes.TrimSpace(msg))
}
