package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/dispatch"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/jsonrpc"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/logctx"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/sessions"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	mcpResponseTypes     = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
)

// decodeRequest reads a JSON-RPC envelope from the body. A missing or
// unparseable body yields a nil request and ok=false; the caller decides
// which degrade path its transport documents.
func decodeRequest(r *http.Request) (*jsonrpc.Request, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return nil, false
	}
	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false
	}
	return &req, true
}

// handleRootRPC is the root/primary adapter: a full JSON-RPC envelope at "/",
// used by streaming-capable orchestration clients that put everything on the
// base URL.
func (h *Handler) handleRootRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.root.start")

	req, ok := decodeRequest(r)
	if !ok {
		// A body we cannot parse still gets a JSON-RPC answer over 200:
		// the protocol error channel, never an HTTP failure.
		h.log.WarnContext(ctx, "http.root.body.unparseable")
		writeJSON(w, http.StatusOK, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
		return
	}

	res := h.disp.Dispatch(ctx, req)
	if res == nil {
		// Notification: acknowledge with an empty body.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	writeJSON(w, http.StatusOK, res)
	h.log.InfoContext(ctx, "http.root.done", slog.Duration("dur", time.Since(start)))
}

// handleInitialize is the dedicated handshake path of the standard adapter.
// Unlike the stateless root adapter it issues a session id alongside the
// negotiated version. A missing or malformed body still completes the
// handshake with defaults.
func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.initialize.start")

	id := jsonrpc.NewRequestID(1)
	var declared string
	if req, ok := decodeRequest(r); ok {
		if req.ID != nil {
			id = req.ID
		}
		var params mcp.InitializeRequest
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params, &params)
		}
		declared = params.ProtocolVersion
	}
	if declared == "" {
		declared = r.Header.Get(protocolVersionHeader)
	}

	negotiated := mcp.NegotiateProtocolVersion(declared)

	sess, err := h.store.Create(ctx, negotiated)
	if err != nil {
		h.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
		writeJSON(w, http.StatusOK, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "failed to create session", nil))
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID, ProtocolVersion: negotiated})
	h.log.InfoContext(ctx, "session.create.ok")

	res, err := jsonrpc.NewResultResponse(id, mcp.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    dispatch.Capabilities,
		ServerInfo:      dispatch.ServerInfo,
		SessionID:       sess.ID,
	})
	if err != nil {
		writeJSON(w, http.StatusOK, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, err.Error(), nil))
		return
	}

	w.Header().Set(protocolVersionHeader, negotiated)
	w.Header().Set(sessionIDHeader, sess.ID)
	writeJSON(w, http.StatusOK, res)
}

// handleMCP is the standard adapter's protocol path. A session id arrives as
// a query parameter and is minted on first contact. Responses echo the
// session and negotiated protocol version as headers and are also appended
// to the session's event log so the stream adapter can deliver them.
func (h *Handler) handleMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.mcp.start")

	sess, err := h.resolveSession(r)
	if err != nil {
		h.log.ErrorContext(ctx, "session.resolve.fail", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to resolve session"})
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID, ProtocolVersion: sess.ProtocolVersion})

	req, ok := decodeRequest(r)
	if !ok {
		h.log.WarnContext(ctx, "http.mcp.body.unparseable")
		writeJSON(w, http.StatusOK, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
		return
	}

	res := h.disp.Dispatch(ctx, req)

	w.Header().Set(protocolVersionHeader, sess.ProtocolVersion)
	w.Header().Set(sessionIDHeader, sess.ID)

	if res == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	payload, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Queue on the session so a connected stream receives the frame too.
	if _, err := h.store.AppendEvent(ctx, sess.ID, payload); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		h.log.WarnContext(ctx, "session.event.append.fail", slog.String("err", err.Error()))
	}

	// Clients may ask for the response framed as an event stream; plain
	// JSON is the default.
	accepted, _, err := contenttype.GetAcceptableMediaType(r, mcpResponseTypes)
	if err == nil && accepted.Matches(eventStreamMediaType) {
		w.Header().Set("Content-Type", eventStreamMediaType.String())
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "data: %s\n\n", payload)
	} else {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}

	h.log.InfoContext(ctx, "http.mcp.done", slog.Duration("dur", time.Since(start)))
}

// resolveSession adopts the session named by the session_id query parameter,
// creating one when the parameter is absent or stale.
func (h *Handler) resolveSession(r *http.Request) (*sessions.Session, error) {
	ctx := r.Context()
	if id := r.URL.Query().Get("session_id"); id != "" {
		sess, err := h.store.Get(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, sessions.ErrSessionNotFound) {
			return nil, err
		}
	}
	negotiated := mcp.NegotiateProtocolVersion(r.Header.Get(protocolVersionHeader))
	return h.store.Create(ctx, negotiated)
}

// handleMCPStatus is a non-streaming readiness probe for stream-capable
// clients that test the connection before opening it.
func (h *Handler) handleMCPStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"protocol":     mcp.LatestProtocolVersion,
		"transport":    "streamable_http",
		"sse_endpoint": "/sse",
		"capabilities": dispatch.Capabilities,
		"serverInfo":   dispatch.ServerInfo,
		"tools":        h.disp.Registry().List(),
	})
}
