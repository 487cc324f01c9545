package httpserver

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/sniperthink/chatqueue/internal/queue"
)

// celFilter wraps a compiled CEL program used to narrow dead-letter listings.
// When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("partition", cel.StringType),
		cel.Variable("message_id", cel.StringType),
		cel.Variable("reason", cel.StringType),
		cel.Variable("retry_count", cel.IntType),
		cel.Variable("enqueued_at", cel.IntType),
		cel.Variable("dead_lettered_at", cel.IntType),
		// parsed message payload for field filtering
		cel.Variable("json", cel.DynType),
		// current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against one dead-letter entry.
func (f celFilter) Eval(dle *queue.DeadLetterEntry) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(dle.Message.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"partition":        dle.Message.PartitionKey,
		"message_id":       dle.Message.MessageID,
		"reason":           dle.Reason,
		"retry_count":      int64(dle.Message.RetryCount),
		"enqueued_at":      dle.Message.EnqueuedAt,
		"dead_lettered_at": dle.DeadLetteredAt,
		"json":             jsonObj,
		"now_ms":           time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
