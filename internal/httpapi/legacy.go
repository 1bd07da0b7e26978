package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/registry"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/tools"
)

// decodeLooseBody reads the body as a free-form JSON object. Empty or
// unparseable bodies come back as an empty map: the legacy surface
// substitutes documented defaults instead of failing.
func decodeLooseBody(r *http.Request) map[string]any {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// invokeText runs a registered tool and flattens its result to plain text.
func (h *Handler) invokeText(ctx context.Context, name string, args map[string]any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	result, err := h.disp.Registry().Invoke(ctx, name, raw)
	if err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", errors.New("no result from tool " + name)
	}
	return result.Content[0].Text, nil
}

func (h *Handler) handlePingGet(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		host = tools.DefaultPingHost
	}
	h.legacyPing(w, r, host)
}

func (h *Handler) handlePingPost(w http.ResponseWriter, r *http.Request) {
	body := decodeLooseBody(r)
	host, _ := body["host"].(string)
	if host == "" {
		host = tools.DefaultPingHost
	}
	h.legacyPing(w, r, host)
}

func (h *Handler) legacyPing(w http.ResponseWriter, r *http.Request, host string) {
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.ping.start", slog.String("host", host))

	text, err := h.invokeText(ctx, "ping_host", map[string]any{"host": host})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": "Ping failed: " + err.Error(), "host": host})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": text, "host": host})
}

func (h *Handler) handleWebsiteGet(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		url = tools.DefaultWebsiteURL
	}
	h.legacyWebsite(w, r, url)
}

func (h *Handler) handleWebsitePost(w http.ResponseWriter, r *http.Request) {
	body := decodeLooseBody(r)
	url, _ := body["url"].(string)
	if url == "" {
		url = tools.DefaultWebsiteURL
	}
	h.legacyWebsite(w, r, url)
}

func (h *Handler) legacyWebsite(w http.ResponseWriter, r *http.Request, url string) {
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.website.start", slog.String("url", url))

	text, err := h.invokeText(ctx, "check_website", map[string]any{"url": url})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"error": "Website check failed: " + err.Error(), "url": url})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": text, "url": url})
}

func (h *Handler) handleToolsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mcp.ListToolsResult{Tools: h.disp.Registry().List()})
}

// handleToolsCall accepts every call shape the legacy clients are known to
// send: a {name, arguments} object, {tool_name, params}, {function,
// parameters}, or a body that only hints at the tool by keyword.
func (h *Handler) handleToolsCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := decodeLooseBody(r)

	name, args, ok := normalizeLegacyCall(body)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"error": "No tool name found in request", "received": body})
		return
	}

	h.log.InfoContext(ctx, "http.tools_call.start", slog.String("tool", name))

	text, err := h.invokeText(ctx, name, args)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownTool) {
			writeJSON(w, http.StatusOK, map[string]any{"error": "Unknown tool: " + name, "received": body})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"error": "Failed to call tool: " + err.Error(), "received": body})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": text, "tool": name, "arguments": args})
}

// normalizeLegacyCall maps the accepted request shapes onto a tool name and
// argument map.
func normalizeLegacyCall(body map[string]any) (string, map[string]any, bool) {
	asMap := func(v any) map[string]any {
		if m, ok := v.(map[string]any); ok {
			return m
		}
		return map[string]any{}
	}

	if name, ok := body["name"].(string); ok && name != "" {
		if args, present := body["arguments"]; present {
			return name, asMap(args), true
		}
		if args, present := body["params"]; present {
			return name, asMap(args), true
		}
		return name, asMap(body["parameters"]), true
	}
	if name, ok := body["tool_name"].(string); ok && name != "" {
		return name, asMap(body["params"]), true
	}
	if name, ok := body["function"].(string); ok && name != "" {
		return name, asMap(body["parameters"]), true
	}

	// Last resort: sniff the intent from whatever the client sent.
	blob, _ := json.Marshal(body)
	lowered := strings.ToLower(string(blob))
	if strings.Contains(lowered, "ping") {
		host, _ := body["host"].(string)
		if host == "" {
			host = tools.DefaultPingHost
		}
		return "ping_host", map[string]any{"host": host}, true
	}
	if strings.Contains(lowered, "website") || strings.Contains(lowered, "url") {
		url, _ := body["url"].(string)
		if url == "" {
			url = tools.DefaultWebsiteURL
		}
		return "check_website", map[string]any{"url": url}, true
	}

	return "", nil, false
}

// handleDebug echoes what a client sent, for integrating callers whose
// request shapes are undocumented.
func (h *Handler) handleDebug(w http.ResponseWriter, r *http.Request) {
	body := decodeLooseBody(r)
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received_request": body,
		"request_keys":     keys,
		"available_tools":  h.disp.Registry().Names(),
		"transport":        "streamable_http",
	})
}
