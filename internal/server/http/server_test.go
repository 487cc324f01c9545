package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sniperthink/chatqueue/internal/intake"
	"github.com/sniperthink/chatqueue/internal/lock"
	"github.com/sniperthink/chatqueue/internal/queue"
	"github.com/sniperthink/chatqueue/internal/sequence"
	"github.com/sniperthink/chatqueue/internal/storage/pebblestore"
)

func openTestServer(t *testing.T, qcfg queue.Config) (*Server, *queue.Queue) {
	t.Helper()
	st, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), NoSync: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	q := queue.New(st, qcfg, nil)
	in := intake.New(q, lock.NewManager(st, nil), sequence.NewGenerator(st, nil), intake.Options{}, nil)
	return New(q, in, st, Options{}, nil), q
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := openTestServer(t, queue.Config{})
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestWebhookAccepts(t *testing.T) {
	s, q := openTestServer(t, queue.Config{})
	body := `{"session_id":"s1","visitor_id":"v1","text":"hi","timestamp":1000}`
	w := do(t, s, http.MethodPost, "/webhook/webchat", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var rcpt intake.Receipt
	if err := json.Unmarshal(w.Body.Bytes(), &rcpt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if rcpt.PartitionKey != "web:s1" || rcpt.Sequence != 1 {
		t.Fatalf("receipt: %+v", rcpt)
	}
	msg, _, err := q.Dequeue(context.Background(), "web:s1", 0)
	if err != nil || msg == nil {
		t.Fatalf("message not queued: %v", err)
	}
}

func TestWebhookDuplicateReturns200(t *testing.T) {
	s, _ := openTestServer(t, queue.Config{})
	body := `{"session_id":"s1","visitor_id":"v1","text":"hi","timestamp":1000}`
	if w := do(t, s, http.MethodPost, "/webhook/webchat", body); w.Code != http.StatusAccepted {
		t.Fatalf("first: %d", w.Code)
	}
	w := do(t, s, http.MethodPost, "/webhook/webchat", body)
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate: %d body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "duplicate") {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestWebhookCapacityReturns429(t *testing.T) {
	s, _ := openTestServer(t, queue.Config{MaxQueueSize: 1})
	if w := do(t, s, http.MethodPost, "/webhook/webchat",
		`{"session_id":"s1","visitor_id":"v1","text":"a","timestamp":1}`); w.Code != http.StatusAccepted {
		t.Fatalf("first: %d", w.Code)
	}
	w := do(t, s, http.MethodPost, "/webhook/webchat",
		`{"session_id":"s1","visitor_id":"v1","text":"b","timestamp":2}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestWebhookBadPayload(t *testing.T) {
	s, _ := openTestServer(t, queue.Config{})
	if w := do(t, s, http.MethodPost, "/webhook/webchat", `{"text":"no session"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/webhook/telegram", `{}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown platform: %d", w.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	s, q := openTestServer(t, queue.Config{})
	msg := &queue.QueuedMessage{MessageID: "m1", PartitionKey: "p1", Payload: json.RawMessage(`{}`)}
	if err := q.Enqueue(context.Background(), msg, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	w := do(t, s, http.MethodGet, "/v1/queue/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var stats queue.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalMessages != 1 || stats.Partitions["p1"].Depth != 1 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestRecoverHandler(t *testing.T) {
	s, _ := openTestServer(t, queue.Config{})
	w := do(t, s, http.MethodPost, "/v1/queue/recover", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "recovered") {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func deadLetterOne(t *testing.T, q *queue.Queue, id, partition, reason string) {
	t.Helper()
	ctx := context.Background()
	msg := &queue.QueuedMessage{MessageID: id, PartitionKey: partition, Payload: json.RawMessage(`{"text":"x"}`)}
	if err := q.Enqueue(ctx, msg, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, lease, err := q.Dequeue(ctx, partition, 0)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := q.Fail(ctx, lease, errors.New(reason), false, 0); err != nil {
		t.Fatalf("fail: %v", err)
	}
}

func TestDLQListAndFilter(t *testing.T) {
	s, q := openTestServer(t, queue.Config{})
	deadLetterOne(t, q, "m1", "p1", "llm timeout")
	deadLetterOne(t, q, "m2", "p2", "bad payload")

	w := do(t, s, http.MethodGet, "/v1/queue/dlq", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var resp struct {
		Entries []queue.DeadLetterEntry `json:"entries"`
		Count   int                     `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count: %d", resp.Count)
	}

	w = do(t, s, http.MethodGet, "/v1/queue/dlq?filter="+url.QueryEscape(`reason.contains("timeout")`), "")
	if w.Code != http.StatusOK {
		t.Fatalf("filtered status: %d body: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode filtered: %v", err)
	}
	if resp.Count != 1 || resp.Entries[0].Message.MessageID != "m1" {
		t.Fatalf("filtered: %+v", resp)
	}

	if w := do(t, s, http.MethodGet, "/v1/queue/dlq?filter=))", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad filter status: %d", w.Code)
	}
}

func TestDLQDelete(t *testing.T) {
	s, q := openTestServer(t, queue.Config{})
	deadLetterOne(t, q, "m1", "p1", "gone")

	w := do(t, s, http.MethodDelete, "/v1/queue/dlq/p1/m1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status: %d", w.Code)
	}
	dead, err := q.DeadLetters(context.Background(), "p1")
	if err != nil || len(dead) != 0 {
		t.Fatalf("entry survived: %+v err %v", dead, err)
	}
}
