package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/logctx"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/sessions"
)

// deliveryPollInterval is how often the stream loop checks the session log
// for frames queued by the other adapters.
const deliveryPollInterval = time.Second

// lockedWriteFlusher serializes writes/flushes on the streaming response and
// stops writing once the request context is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// handleSSE is the stream adapter: a long-lived server-push channel keyed by
// session. The session is created on first contact unless the client brought
// one; a Last-Event-ID header resumes delivery from where the client left
// off.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "sse.stream.open")

	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	sess, err := h.resolveSession(r)
	if err != nil {
		h.log.ErrorContext(ctx, "session.resolve.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID, ProtocolVersion: sess.ProtocolVersion})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(protocolVersionHeader, sess.ProtocolVersion)
	w.Header().Set(sessionIDHeader, sess.ID)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	lastDelivered := r.Header.Get(lastEventIDHeader)

	// Frames recorded before the client reconnected go out first.
	if lastDelivered != "" {
		missed, err := h.store.ReplaySince(ctx, sess.ID, lastDelivered)
		if err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
			h.log.ErrorContext(ctx, "sse.replay.fail", slog.String("err", err.Error()))
		}
		for _, ev := range missed {
			if err := writeSSEEvent(wf, ev.ID, ev.Data); err != nil {
				h.log.InfoContext(ctx, "sse.client.gone", slog.String("err", err.Error()))
				return
			}
			lastDelivered = ev.ID
		}
	}

	// The connection event confirms the session and negotiated version to
	// the client. It goes through the log so a resuming client sees it too.
	connPayload, _ := json.Marshal(map[string]any{
		"type":        "connection",
		"status":      "connected",
		"session_id":  sess.ID,
		"mcp_version": sess.ProtocolVersion,
	})
	if lastDelivered == "" {
		evID, err := h.store.AppendEvent(ctx, sess.ID, connPayload)
		if err != nil {
			h.log.ErrorContext(ctx, "session.event.append.fail", slog.String("err", err.Error()))
			return
		}
		if err := writeSSEEvent(wf, evID, connPayload); err != nil {
			return
		}
		lastDelivered = evID
	}

	deliver := time.NewTicker(deliveryPollInterval)
	defer deliver.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			// A failed write or client disconnect lands here; the session
			// itself survives until its TTL.
			h.log.InfoContext(ctx, "sse.stream.close", slog.Duration("dur", time.Since(start)))
			return

		case <-deliver.C:
			pending, err := h.store.ReplaySince(ctx, sess.ID, lastDelivered)
			if err != nil {
				if errors.Is(err, sessions.ErrSessionNotFound) {
					h.log.InfoContext(ctx, "sse.session.reaped")
					return
				}
				h.log.ErrorContext(ctx, "sse.replay.fail", slog.String("err", err.Error()))
				continue
			}
			for _, ev := range pending {
				if err := writeSSEEvent(wf, ev.ID, ev.Data); err != nil {
					h.log.InfoContext(ctx, "sse.client.gone", slog.String("err", err.Error()))
					return
				}
				lastDelivered = ev.ID
			}

		case <-heartbeat.C:
			// Keeps idle intermediaries from severing the connection.
			payload, _ := json.Marshal(map[string]any{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			if err := writeSSEEvent(wf, "", payload); err != nil {
				h.log.InfoContext(ctx, "sse.client.gone", slog.String("err", err.Error()))
				return
			}
			if err := h.store.Touch(ctx, sess.ID); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
				h.log.WarnContext(ctx, "session.touch.fail", slog.String("err", err.Error()))
			}
		}
	}
}

// writeSSEEvent writes one SSE frame and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, eventID string, payload []byte) error {
	if eventID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", eventID); err != nil {
			return fmt.Errorf("failed to write SSE event ID: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}
