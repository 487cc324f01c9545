package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/storage"
	"github.com/sniperthink/chatqueue/pkg/log"
)

// Generator hands out per-conversation message sequence numbers. The live
// counter is a cache-style key with a TTL, advanced with the store's atomic
// Incr; every advance is written through to a durable shadow key with no
// expiry, which reseeds the counter after a cache loss. Numbers are dense
// from 1 for each conversation and never repeat while the counter is live.
type Generator struct {
	store  storage.KeyValueStore
	logger *log.Logger

	// CacheTTL is how long an idle conversation keeps its live counter.
	CacheTTL time.Duration

	// serializes shadow write-through so a slow writer cannot regress it
	mu sync.Mutex
}

// NewGenerator creates a Generator over kv.
func NewGenerator(kv storage.KeyValueStore, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{
		store:    kv,
		logger:   logger.Named("sequence"),
		CacheTTL: time.Hour,
	}
}

func counterKey(conversationID string) string { return "cq/seq/" + conversationID }
func shadowKey(conversationID string) string  { return "cq/seq_shadow/" + conversationID }

// Next returns the next sequence number for conversationID, starting at 1.
func (g *Generator) Next(ctx context.Context, conversationID string) (int64, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("sequence: conversation id is required")
	}

	live, err := g.store.Exists(ctx, counterKey(conversationID))
	if err != nil {
		return 0, fmt.Errorf("probe counter: %w", err)
	}
	if !live {
		if err := g.seed(ctx, conversationID); err != nil {
			return 0, err
		}
	}

	n, err := g.store.Incr(ctx, counterKey(conversationID))
	if err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	if err := g.store.Expire(ctx, counterKey(conversationID), g.CacheTTL); err != nil {
		g.logger.Warn("refresh counter ttl failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	g.writeShadow(ctx, conversationID, n)
	return n, nil
}

// seed initializes the live counter from the durable shadow. SetNX decides
// the race when several callers cold-start the same conversation at once:
// exactly one write lands, the rest fall through to Incr.
func (g *Generator) seed(ctx context.Context, conversationID string) error {
	last, err := g.readShadow(ctx, conversationID)
	if err != nil {
		return err
	}
	if last == 0 {
		return nil // brand-new conversation; Incr starts the counter at 1
	}
	if _, err := g.store.SetNX(ctx, counterKey(conversationID),
		[]byte(strconv.FormatInt(last, 10)), g.CacheTTL); err != nil {
		return fmt.Errorf("seed counter: %w", err)
	}
	return nil
}

func (g *Generator) readShadow(ctx context.Context, conversationID string) (int64, error) {
	raw, err := g.store.Get(ctx, shadowKey(conversationID))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read shadow: %w", err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode shadow: %w", err)
	}
	return n, nil
}

// writeShadow advances the durable shadow, never moving it backwards: with
// concurrent callers the Incr results arrive out of order, and a stale write
// reseeding a future cold start would hand out duplicates.
func (g *Generator) writeShadow(ctx context.Context, conversationID string, n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, err := g.readShadow(ctx, conversationID)
	if err != nil {
		g.logger.Warn("shadow read failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	if n <= last {
		return
	}
	if err := g.store.Set(ctx, shadowKey(conversationID), []byte(strconv.FormatInt(n, 10)), 0); err != nil {
		g.logger.Warn("shadow write failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}
