// Package rest implements the remote backend adapter against a REST-style
// expense API. One JSON object per record; batch uploads go through the
// sync endpoint which reports success per item.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"spend/internal/core"
	"spend/internal/remote"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

// WithTimeout bounds every remote call. Timeouts classify as transient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// wireRecord is the JSON shape shared with the backend. Amounts travel as
// integer cents; timestamps as epoch milliseconds.
type wireRecord struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	AmountCents   int64  `json:"amountCents"`
	Category      string `json:"category"`
	Note          string `json:"note,omitempty"`
	AttachmentRef string `json:"attachmentRef,omitempty"`
	OccurredAt    int64  `json:"occurredAt"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

type syncRequest struct {
	UserID   string       `json:"userId"`
	Expenses []wireRecord `json:"expenses"`
}

type syncResponse struct {
	Results []struct {
		ID    string `json:"id"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	} `json:"results"`
}

type listResponse struct {
	Data []wireRecord `json:"data"`
}

func toWire(r core.Record) wireRecord {
	return wireRecord{
		ID:            r.ID,
		UserID:        r.OwnerID,
		AmountCents:   r.Amount.Cents,
		Category:      r.Category,
		Note:          r.Note,
		AttachmentRef: r.AttachmentRef,
		OccurredAt:    r.OccurredAt.UnixMilli(),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromWire(w wireRecord) core.Record {
	return core.Record{
		ID:            w.ID,
		OwnerID:       w.UserID,
		Amount:        core.Money{Cents: w.AmountCents},
		Category:      w.Category,
		Note:          w.Note,
		AttachmentRef: w.AttachmentRef,
		OccurredAt:    time.UnixMilli(w.OccurredAt).UTC(),
		SyncState:     core.Synced,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func (c *Client) Push(ctx context.Context, r core.Record) error {
	body, err := json.Marshal(toWire(r))
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", core.ErrRemoteRejected, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/expenses", bytes.NewReader(body), nil, r.ID)
	if err != nil {
		return err
	}
	defer drain(resp)

	return classifyStatus(resp.StatusCode, resp)
}

func (c *Client) PushBatch(ctx context.Context, records []core.Record) ([]remote.PushResult, error) {
	if len(records) == 0 {
		return nil, nil
	}

	req := syncRequest{UserID: records[0].OwnerID, Expenses: make([]wireRecord, 0, len(records))}
	for _, r := range records {
		req.Expenses = append(req.Expenses, toWire(r))
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal batch: %v", core.ErrRemoteRejected, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/expenses/sync", bytes.NewReader(body), nil, "")
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := classifyStatus(resp.StatusCode, resp); err != nil {
		return nil, err
	}

	var parsed syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode sync response: %v", core.ErrRemoteTransient, err)
	}

	byID := make(map[string]error, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.OK {
			byID[item.ID] = nil
		} else {
			byID[item.ID] = fmt.Errorf("%w: %s", core.ErrRemoteRejected, item.Error)
		}
	}

	results := make([]remote.PushResult, 0, len(records))
	for _, r := range records {
		itemErr, reported := byID[r.ID]
		if !reported {
			// The server did not mention the record at all; treat as a
			// retryable miss rather than a silent ack.
			itemErr = fmt.Errorf("%w: no per-item result for %s", core.ErrRemoteTransient, r.ID)
		}
		results = append(results, remote.PushResult{ID: r.ID, Err: itemErr})
	}
	return results, nil
}

func (c *Client) Pull(ctx context.Context, ownerID string) ([]core.Record, error) {
	query := url.Values{"userId": {ownerID}}
	resp, err := c.do(ctx, http.MethodGet, "/expenses", nil, query, "")
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if err := classifyStatus(resp.StatusCode, resp); err != nil {
		return nil, err
	}

	var parsed listResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode list response: %v", core.ErrRemoteTransient, err)
	}

	records := make([]core.Record, 0, len(parsed.Data))
	for _, w := range parsed.Data {
		records = append(records, fromWire(w))
	}
	// Contract: occurred-at descending, whatever the server returned.
	sort.Slice(records, func(i, j int) bool {
		return records[i].OccurredAt.After(records[j].OccurredAt)
	})
	return records, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/expenses/"+url.PathEscape(id), nil, nil, id)
	if err != nil {
		return err
	}
	defer drain(resp)

	// An already-absent remote record is success.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return classifyStatus(resp.StatusCode, resp)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, query url.Values, idemKey string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrRemoteRejected, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idemKey != "" {
		// The record id doubles as an idempotency key: re-sending after a
		// timeout must have at most one logical effect.
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures (DNS, refused connection, timeout) are all
		// retryable from the engine's perspective.
		return nil, fmt.Errorf("%w: %s %s: %v", core.ErrRemoteTransient, method, path, err)
	}
	return resp, nil
}

// classifyStatus maps an HTTP status to the engine's error taxonomy:
// 2xx is success, 5xx and 429 are transient, everything else is rejected.
func classifyStatus(status int, resp *http.Response) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500 || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: server returned %d: %s", core.ErrRemoteTransient, status, errorBody(resp))
	default:
		return fmt.Errorf("%w: server returned %d: %s", core.ErrRemoteRejected, status, errorBody(resp))
	}
}

func errorBody(resp *http.Response) string {
	b, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
