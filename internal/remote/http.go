package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
)

// HTTPStore talks to the document store's REST API and watches its change
// stream over WebSocket.
//
// Endpoints, relative to the base URL:
//
//	GET    /users/{uid}/bills?updatedSince={ms}
//	GET    /users/{uid}/bills/{id}
//	PATCH  /users/{uid}/bills/{id}          merge-upsert
//	DELETE /users/{uid}/bills/{id}
//	GET    /users/{uid}/payments?createdSince={ms}
//	PATCH  /users/{uid}/payments/{id}
//	DELETE /users/{uid}/payments/{id}
//	GET    /users/{uid}/meta/migration
//	PUT    /users/{uid}/meta/migration
//	POST   /users/{uid}/batch
//	WS     /users/{uid}/watch
//
// The watch stream echoes every write to all subscribers tagged with the
// originating device id; the client flags events carrying its own device
// id as pending so the realtime listener can skip self-pulls.
type HTTPStore struct {
	baseURL  string
	deviceID string
	client   *http.Client
	logger   *log.Logger
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore creates a client for the document store at baseURL. The
// device id is used to recognize this install's own writes on the change
// stream. If logger is nil, a default logger writing to stderr is used.
func NewHTTPStore(baseURL, deviceID string, logger *log.Logger) *HTTPStore {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &HTTPStore{
		baseURL:  baseURL,
		deviceID: deviceID,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (s *HTTPStore) userURL(userID string, parts ...string) string {
	u := s.baseURL + "/users/" + url.PathEscape(userID)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (s *HTTPStore) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, rawURL, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
		}
	}
	return nil
}

// GetBill implements Store.
func (s *HTTPStore) GetBill(ctx context.Context, userID, billID string) (*Bill, error) {
	var bill Bill
	if err := s.do(ctx, http.MethodGet, s.userURL(userID, "bills", billID), nil, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

// BillsUpdatedSince implements Store.
func (s *HTTPStore) BillsUpdatedSince(ctx context.Context, userID string, since int64) ([]Bill, error) {
	u := s.userURL(userID, "bills")
	if since > 0 {
		u += fmt.Sprintf("?updatedSince=%d", since)
	}
	var bills []Bill
	if err := s.do(ctx, http.MethodGet, u, nil, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

// PaymentsCreatedSince implements Store.
func (s *HTTPStore) PaymentsCreatedSince(ctx context.Context, userID string, since int64) ([]Payment, error) {
	u := s.userURL(userID, "payments")
	if since > 0 {
		u += fmt.Sprintf("?createdSince=%d", since)
	}
	var payments []Payment
	if err := s.do(ctx, http.MethodGet, u, nil, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// SetBill implements Store.
func (s *HTTPStore) SetBill(ctx context.Context, userID string, bill Bill) error {
	return s.do(ctx, http.MethodPatch, s.userURL(userID, "bills", bill.ID), bill, nil)
}

// DeleteBill implements Store.
func (s *HTTPStore) DeleteBill(ctx context.Context, userID, billID string) error {
	err := s.do(ctx, http.MethodDelete, s.userURL(userID, "bills", billID), nil, nil)
	if err == ErrNotFound {
		return nil // already gone
	}
	return err
}

// SetPayment implements Store.
func (s *HTTPStore) SetPayment(ctx context.Context, userID string, payment Payment) error {
	return s.do(ctx, http.MethodPatch, s.userURL(userID, "payments", payment.ID), payment, nil)
}

// DeletePayment implements Store.
func (s *HTTPStore) DeletePayment(ctx context.Context, userID, paymentID string) error {
	err := s.do(ctx, http.MethodDelete, s.userURL(userID, "payments", paymentID), nil, nil)
	if err == ErrNotFound {
		return nil
	}
	return err
}

type migrationDoc struct {
	MigrationComplete bool      `json:"migrationComplete"`
	CompletedAt       Timestamp `json:"completedAt"`
}

// MigrationComplete implements Store.
func (s *HTTPStore) MigrationComplete(ctx context.Context, userID string) (bool, error) {
	var doc migrationDoc
	err := s.do(ctx, http.MethodGet, s.userURL(userID, "meta", "migration"), nil, &doc)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.MigrationComplete, nil
}

// MarkMigrationComplete implements Store.
func (s *HTTPStore) MarkMigrationComplete(ctx context.Context, userID string) error {
	doc := migrationDoc{MigrationComplete: true, CompletedAt: TimestampNow()}
	return s.do(ctx, http.MethodPut, s.userURL(userID, "meta", "migration"), doc, nil)
}

// batchRequest is the wire form of one batched write.
type batchRequest struct {
	Ops []wireOp `json:"ops"`
}

type wireOp struct {
	Op         string   `json:"op"` // set or delete
	Collection string   `json:"collection"`
	ID         string   `json:"id"`
	Bill       *Bill    `json:"bill,omitempty"`
	Payment    *Payment `json:"payment,omitempty"`
}

type httpBatch struct {
	store  *HTTPStore
	userID string
	ops    []wireOp
}

// NewBatch implements Store.
func (s *HTTPStore) NewBatch() Batch {
	return &httpBatch{store: s}
}

func (b *httpBatch) SetBill(userID string, bill Bill) {
	b.userID = userID
	b.ops = append(b.ops, wireOp{Op: "set", Collection: CollectionBills, ID: bill.ID, Bill: &bill})
}

func (b *httpBatch) DeleteBill(userID, billID string) {
	b.userID = userID
	b.ops = append(b.ops, wireOp{Op: "delete", Collection: CollectionBills, ID: billID})
}

func (b *httpBatch) SetPayment(userID string, payment Payment) {
	b.userID = userID
	b.ops = append(b.ops, wireOp{Op: "set", Collection: CollectionPayments, ID: payment.ID, Payment: &payment})
}

func (b *httpBatch) DeletePayment(userID, paymentID string) {
	b.userID = userID
	b.ops = append(b.ops, wireOp{Op: "delete", Collection: CollectionPayments, ID: paymentID})
}

func (b *httpBatch) Len() int {
	return len(b.ops)
}

func (b *httpBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	if len(b.ops) > MaxBatchOps {
		return fmt.Errorf("batch of %d exceeds limit of %d operations", len(b.ops), MaxBatchOps)
	}

	err := b.store.do(ctx, http.MethodPost, b.store.userURL(b.userID, "batch"),
		batchRequest{Ops: b.ops}, nil)
	if err != nil {
		return err
	}
	b.ops = nil
	return nil
}

// Subscribe implements Store. The stream is redialed on failure; errors are
// logged and never tear down the subscription.
func (s *HTTPStore) Subscribe(ctx context.Context, userID string, fn func(Event)) (func(), error) {
	wsURL, err := watchURL(s.baseURL, userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	go s.watchLoop(ctx, wsURL, fn)

	return cancel, nil
}

func watchURL(baseURL, userID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q in base URL", u.Scheme)
	}
	u.Path += "/users/" + url.PathEscape(userID) + "/watch"
	return u.String(), nil
}

// watchLoop dials the change stream and delivers events until ctx is done,
// redialing with a delay after any failure.
func (s *HTTPStore) watchLoop(ctx context.Context, wsURL string, fn func(Event)) {
	const redialDelay = 5 * time.Second

	for ctx.Err() == nil {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			s.logger.Printf("watch dial failed: %v (retrying in %v)", err, redialDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(redialDelay):
			}
			continue
		}

		s.readEvents(ctx, conn, fn)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (s *HTTPStore) readEvents(ctx context.Context, conn *websocket.Conn, fn func(Event)) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Printf("watch stream error: %v", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Printf("failed to parse watch event: %v", err)
			continue
		}

		ev.Pending = ev.DeviceID != "" && ev.DeviceID == s.deviceID
		fn(ev)
	}
}
