// Package journal implements the cursor-based journal consumer: GET the
// journal with an optional "since" cursor, parse JSON-array or JSONL
// bodies, extract SKUs, and filter by event type.
package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/httpclient"
)

// Kind mirrors eventqueue.Kind without importing it, to keep journal
// decoupled from the queue; callers translate as needed.
type Kind string

const (
	KindProductUpdate Kind = "product_update"
	KindPriceUpdate   Kind = "price_update"
)

// Event is a single journal entry after SKU extraction and type filtering.
type Event struct {
	Position string `json:"-"`
	SKU      string `json:"-"`
	Kind     Kind   `json:"-"`
	Raw      json.RawMessage
}

// Result is the outcome of Fetch.
type Result struct {
	Events     []Event
	NextCursor string
	HasMore    bool
}

// Config holds the consumer's static configuration.
type Config struct {
	JournalURL string
	ClientID   string
	IMSOrgID   string
	EventTypes []string // suffix-matched against the raw event's "type" field; defaults to product.update/price.update
}

// TokenSource returns a fresh access token, satisfied by tokenmgr.Manager.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Consumer pulls batches of events from the remote journal.
type Consumer struct {
	cfg    Config
	http   *httpclient.Client
	tokens TokenSource
}

// New creates a Consumer.
func New(cfg Config, http *httpclient.Client, tokens TokenSource) *Consumer {
	if len(cfg.EventTypes) == 0 {
		cfg.EventTypes = []string{"product.update", "price.update"}
	}
	return &Consumer{cfg: cfg, http: http, tokens: tokens}
}

// Fetch performs one GET against the journal. A 500/400/404 response is
// treated as "no events available" (the journal's end-of-stream
// convention): the cursor is left unchanged and HasMore is false. Other
// non-2xx responses propagate as a GlobalError.
func (c *Consumer) Fetch(ctx context.Context, cursor string, limit int) (Result, error) {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetching access token: %w", err)
	}

	url := fmt.Sprintf("%s?limit=%d", c.cfg.JournalURL, limit)
	if cursor != "" {
		url += "&since=" + cursor
	}

	raw, err := c.http.Do(ctx, "journal.fetch", httpclient.Request{
		Method: "GET",
		URL:    url,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"x-api-key":     c.cfg.ClientID,
			"x-ims-org-id":  c.cfg.IMSOrgID,
		},
	})
	if err != nil {
		if isEndOfStream(err) {
			return Result{Events: nil, NextCursor: cursor, HasMore: false}, nil
		}
		return Result{}, &apperr.GlobalError{Op: "journal.fetch", Cause: err}
	}
	if raw == nil {
		return Result{Events: nil, NextCursor: cursor, HasMore: false}, nil
	}

	rawEvents, nextCursor, hasMore, err := parseBody(raw)
	if err != nil {
		return Result{}, fmt.Errorf("parsing journal response: %w", err)
	}
	if nextCursor == "" {
		if lp := lastPosition(rawEvents); lp != "" {
			nextCursor = lp
		} else {
			nextCursor = cursor
		}
	}

	events := make([]Event, 0, len(rawEvents))
	for _, re := range rawEvents {
		ev, ok := c.decode(re)
		if ok {
			events = append(events, ev)
		}
	}

	return Result{Events: events, NextCursor: nextCursor, HasMore: hasMore}, nil
}

func isEndOfStream(err error) bool {
	httpErr, ok := err.(*httpclient.Error)
	if !ok {
		return false
	}
	switch httpErr.StatusCode {
	case 500, 400, 404:
		return true
	default:
		return false
	}
}

// envelope matches the JSON-array / paginated-envelope shape of the journal
// response: {"events": [...], "_page": {...}}.
type envelope struct {
	Events []json.RawMessage `json:"events"`
	Page   struct {
		Next string `json:"next"`
		More bool   `json:"more"`
	} `json:"_page"`
}

func parseBody(raw json.RawMessage) (events []json.RawMessage, nextCursor string, hasMore bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", false, nil
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, "", false, err
		}
		return arr, "", false, nil
	}

	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Events != nil {
			return env.Events, env.Page.Next, env.Page.More, nil
		}
		// Not an envelope — fall through to JSONL, a single object per line.
	}

	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		events = append(events, append(json.RawMessage(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, "", false, err
	}
	return events, "", false, nil
}

type rawEvent struct {
	Position string          `json:"position"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// lastPosition returns the last raw event's own "position" field, used as
// the cursor when the response carries no "_page" pagination envelope
// (the plain JSON-array and JSONL response shapes). It inspects the raw
// list, not the filtered/decoded Events, so a journal position still
// advances even when its last event is dropped by the type filter.
func lastPosition(rawEvents []json.RawMessage) string {
	if len(rawEvents) == 0 {
		return ""
	}
	var re rawEvent
	if err := json.Unmarshal(rawEvents[len(rawEvents)-1], &re); err != nil {
		return ""
	}
	return re.Position
}

type rawData struct {
	SKU     string `json:"sku"`
	Product struct {
		SKU string `json:"sku"`
	} `json:"product"`
}

// decode extracts the SKU from whichever of the event's known locations is
// populated, then applies the event-type filter. Returns ok=false when the
// event should be dropped.
func (c *Consumer) decode(raw json.RawMessage) (Event, bool) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return Event{}, false
	}

	if !c.matchesType(re.Type) {
		return Event{}, false
	}

	sku, ok := extractSKU(re.Data)
	if !ok {
		return Event{}, false
	}

	return Event{
		Position: re.Position,
		SKU:      sku,
		Kind:     kindFromType(re.Type),
		Raw:      raw,
	}, true
}

func extractSKU(data json.RawMessage) (string, bool) {
	var d rawData
	if err := json.Unmarshal(data, &d); err != nil {
		return "", false
	}
	if d.SKU != "" {
		return d.SKU, true
	}
	if d.Product.SKU != "" {
		return d.Product.SKU, true
	}
	return "", false
}

func (c *Consumer) matchesType(eventType string) bool {
	for _, suffix := range c.cfg.EventTypes {
		if strings.HasSuffix(eventType, suffix) {
			return true
		}
	}
	return false
}

func kindFromType(eventType string) Kind {
	if strings.HasSuffix(eventType, "price.update") {
		return KindPriceUpdate
	}
	return KindProductUpdate
}
