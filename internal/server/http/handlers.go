package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/intake"
	"github.com/sniperthink/chatqueue/internal/message"
	"github.com/sniperthink/chatqueue/internal/queue"
)

// webhook bodies are small JSON; 256 KiB leaves room for media URLs without
// letting a client stream arbitrary payloads into memory.
const maxWebhookBody = 256 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	platform, err := message.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	env, err := message.Decode(platform, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rcpt, err := s.intake.HandleInbound(r.Context(), env)
	switch {
	case errors.Is(err, intake.ErrDuplicate):
		// tell the provider we have it so it stops redelivering
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	case errors.Is(err, queue.ErrCapacityExceeded):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, "partition at capacity")
	case errors.Is(err, intake.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "intake unavailable")
	case err != nil:
		s.logger.Error("webhook intake failed",
			zap.String("platform", string(platform)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusAccepted, rcpt)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.RecoverExpiredLeases(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recovered": n})
}

func (s *Server) handleDLQList(w http.ResponseWriter, r *http.Request) {
	filter, err := newCELFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad filter: "+err.Error())
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = n
	}

	partitions := []string{r.URL.Query().Get("partition")}
	if partitions[0] == "" {
		stats, err := s.queue.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		partitions = partitions[:0]
		for p := range stats.Partitions {
			partitions = append(partitions, p)
		}
	}

	out := make([]queue.DeadLetterEntry, 0)
	for _, p := range partitions {
		entries, err := s.queue.DeadLetters(r.Context(), p)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for i := range entries {
			if !filter.Eval(&entries[i]) {
				continue
			}
			out = append(out, entries[i])
			if len(out) >= limit {
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

func (s *Server) handleDLQDelete(w http.ResponseWriter, r *http.Request) {
	partition := chi.URLParam(r, "partition")
	id := chi.URLParam(r, "id")
	if partition == "" || id == "" {
		writeError(w, http.StatusBadRequest, "partition and id are required")
		return
	}
	if err := s.queue.DeleteDeadLetter(r.Context(), partition, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
