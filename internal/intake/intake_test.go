package intake

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sniperthink/chatqueue/internal/lock"
	"github.com/sniperthink/chatqueue/internal/message"
	"github.com/sniperthink/chatqueue/internal/queue"
	"github.com/sniperthink/chatqueue/internal/sequence"
	"github.com/sniperthink/chatqueue/internal/storage/pebblestore"
)

func openTestIntake(t *testing.T, qcfg queue.Config, opts Options) (*Intake, *queue.Queue) {
	t.Helper()
	st, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), NoSync: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	q := queue.New(st, qcfg, nil)
	in := New(q, lock.NewManager(st, nil), sequence.NewGenerator(st, nil), opts, nil)
	return in, q
}

func webchatEnvelope(session, text string, ts int64) *message.Envelope {
	return &message.Envelope{
		Platform: message.PlatformWebchat,
		Webchat:  &message.WebchatPayload{SessionID: session, VisitorID: "v1", Text: text, Timestamp: ts},
	}
}

func TestHandleInboundEnqueues(t *testing.T) {
	in, q := openTestIntake(t, queue.Config{}, Options{})
	ctx := context.Background()

	rcpt, err := in.HandleInbound(ctx, webchatEnvelope("s1", "hello", 1000))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rcpt.MessageID == "" || rcpt.PartitionKey != "web:s1" || rcpt.Sequence != 1 {
		t.Fatalf("receipt: %+v", rcpt)
	}

	msg, _, err := q.Dequeue(ctx, "web:s1", 0)
	if err != nil || msg == nil {
		t.Fatalf("dequeue: %v", err)
	}
	if msg.MessageID != rcpt.MessageID {
		t.Fatalf("queued %s, receipt %s", msg.MessageID, rcpt.MessageID)
	}
	var env message.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if env.Platform != message.PlatformWebchat || env.Webchat.Text != "hello" {
		t.Fatalf("payload round trip: %+v", env)
	}
}

func TestHandleInboundSequencesPerConversation(t *testing.T) {
	in, _ := openTestIntake(t, queue.Config{}, Options{})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		rcpt, err := in.HandleInbound(ctx, webchatEnvelope("s1", "m", 1000+want))
		if err != nil {
			t.Fatalf("handle %d: %v", want, err)
		}
		if rcpt.Sequence != want {
			t.Fatalf("sequence = %d, want %d", rcpt.Sequence, want)
		}
	}
	rcpt, err := in.HandleInbound(ctx, webchatEnvelope("s2", "m", 1000))
	if err != nil || rcpt.Sequence != 1 {
		t.Fatalf("other conversation: %+v %v", rcpt, err)
	}
}

func TestHandleInboundSuppressesDuplicates(t *testing.T) {
	in, q := openTestIntake(t, queue.Config{}, Options{DedupWindow: time.Minute})
	ctx := context.Background()

	env := webchatEnvelope("s1", "hello", 1000)
	if _, err := in.HandleInbound(ctx, env); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	_, err := in.HandleInbound(ctx, webchatEnvelope("s1", "hello", 1000))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
	// a different body is not a duplicate
	if _, err := in.HandleInbound(ctx, webchatEnvelope("s1", "hello again", 1000)); err != nil {
		t.Fatalf("distinct delivery rejected: %v", err)
	}

	st, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalMessages != 2 {
		t.Fatalf("queued %d messages, want 2", st.TotalMessages)
	}
}

func TestHandleInboundSurfacesCapacity(t *testing.T) {
	in, _ := openTestIntake(t, queue.Config{MaxQueueSize: 1}, Options{})
	ctx := context.Background()

	if _, err := in.HandleInbound(ctx, webchatEnvelope("s1", "a", 1)); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := in.HandleInbound(ctx, webchatEnvelope("s1", "b", 2))
	if !errors.Is(err, queue.ErrCapacityExceeded) {
		t.Fatalf("want ErrCapacityExceeded, got %v", err)
	}
}

func TestHandleInboundRejectsInvalidEnvelope(t *testing.T) {
	in, _ := openTestIntake(t, queue.Config{}, Options{})
	env := &message.Envelope{Platform: message.PlatformWebchat, Webchat: &message.WebchatPayload{Text: "no session"}}
	if _, err := in.HandleInbound(context.Background(), env); err == nil {
		t.Fatal("invalid envelope accepted")
	}
}

func TestCapacityDoesNotTripBreaker(t *testing.T) {
	in, _ := openTestIntake(t, queue.Config{MaxQueueSize: 1}, Options{})
	ctx := context.Background()

	if _, err := in.HandleInbound(ctx, webchatEnvelope("s1", "seed", 0)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// far more consecutive capacity rejections than the trip threshold
	for i := 0; i < 10; i++ {
		_, err := in.HandleInbound(ctx, webchatEnvelope("s1", "overflow", int64(i+1)))
		if !errors.Is(err, queue.ErrCapacityExceeded) {
			t.Fatalf("attempt %d: want ErrCapacityExceeded, got %v", i, err)
		}
	}
	// a different partition still goes through: the breaker stayed closed
	if _, err := in.HandleInbound(ctx, webchatEnvelope("s2", "fine", 0)); err != nil {
		t.Fatalf("breaker tripped on backpressure: %v", err)
	}
}
