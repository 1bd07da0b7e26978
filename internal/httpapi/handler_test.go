package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/authz"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/dispatch"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/httpapi"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/jsonrpc"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/sessions"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/tools"
)

// okRunner fakes both checks as healthy without spawning processes.
type okRunner struct{}

func (okRunner) Run(ctx context.Context, name string, args ...string) (tools.RunOutput, error) {
	if name == "curl" {
		return tools.RunOutput{Stdout: "200"}, nil
	}
	return tools.RunOutput{Stdout: "3 packets transmitted, 3 received"}, nil
}

func newTestServer(t *testing.T, authorizer authz.Authorizer) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := sessions.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	disp := dispatch.New(log, tools.NewRegistry(log, okRunner{}))
	h := httpapi.New(disp, store, authorizer, httpapi.WithLogger(log))

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeRPC(t *testing.T, resp *http.Response) *jsonrpc.Response {
	t.Helper()
	defer resp.Body.Close()
	var res jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &res
}

func decodeResult[T any](t *testing.T, res *jsonrpc.Response) T {
	t.Helper()
	if res.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", res.Error)
	}
	var out T
	if err := json.Unmarshal(res.Result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return out
}

func TestRootAdapter(t *testing.T) {
	srv := newTestServer(t, authz.Disabled())

	t.Run("initialize negotiates", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/",
			`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`)
		if want, got := http.StatusOK, resp.StatusCode; want != got {
			t.Fatalf("unexpected status: want %d got %d", want, got)
		}
		init := decodeResult[mcp.InitializeResult](t, decodeRPC(t, resp))
		if want, got := "2025-03-26", init.ProtocolVersion; want != got {
			t.Fatalf("unexpected version: want %q got %q", want, got)
		}
	})

	t.Run("tool call returns success text with echoed id", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/",
			`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"ping_host","arguments":{"host":"localhost"}}}`)
		res := decodeRPC(t, resp)
		if want, got := "7", res.ID.String(); want != got {
			t.Fatalf("unexpected id: want %q got %q", want, got)
		}
		result := decodeResult[mcp.CallToolResult](t, res)
		if !strings.HasPrefix(result.Content[0].Text, "[SUCCESS] Host localhost is reachable!") {
			t.Fatalf("unexpected text: %q", result.Content[0].Text)
		}
	})

	t.Run("unparseable body answers with parse error over 200", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/", `{not json`)
		if want, got := http.StatusOK, resp.StatusCode; want != got {
			t.Fatalf("unexpected status: want %d got %d", want, got)
		}
		res := decodeRPC(t, resp)
		if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeParseError {
			t.Fatalf("expected parse error, got %+v", res.Error)
		}
	})

	t.Run("notification is accepted with no body", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
		defer resp.Body.Close()
		if want, got := http.StatusAccepted, resp.StatusCode; want != got {
			t.Fatalf("unexpected status: want %d got %d", want, got)
		}
	})
}

func TestStandardAdapter(t *testing.T) {
	srv := newTestServer(t, authz.Disabled())

	t.Run("initialize mints a session", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/initialize",
			`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`)
		if got := resp.Header.Get("X-MCP-Session-ID"); got == "" {
			t.Fatalf("missing session header")
		}
		if want, got := "2025-06-18", resp.Header.Get("Mcp-Protocol-Version"); want != got {
			t.Fatalf("unexpected version header: want %q got %q", want, got)
		}
		init := decodeResult[mcp.InitializeResult](t, decodeRPC(t, resp))
		if init.SessionID == "" {
			t.Fatalf("missing session id in result")
		}
	})

	t.Run("empty body still completes the handshake", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/initialize", "")
		init := decodeResult[mcp.InitializeResult](t, decodeRPC(t, resp))
		if want, got := mcp.LatestProtocolVersion, init.ProtocolVersion; want != got {
			t.Fatalf("unexpected version: want %q got %q", want, got)
		}
	})

	t.Run("session id is adopted across requests", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/initialize", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
		init := decodeResult[mcp.InitializeResult](t, decodeRPC(t, resp))

		resp2 := postJSON(t, srv.URL+"/mcp?session_id="+init.SessionID,
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
		if want, got := init.SessionID, resp2.Header.Get("X-MCP-Session-ID"); want != got {
			t.Fatalf("session not adopted: want %q got %q", want, got)
		}
		list := decodeResult[mcp.ListToolsResult](t, decodeRPC(t, resp2))
		if want, got := 2, len(list.Tools); want != got {
			t.Fatalf("unexpected tool count: want %d got %d", want, got)
		}
	})

	t.Run("stale session id mints a replacement", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/mcp?session_id=long-gone",
			`{"jsonrpc":"2.0","id":3,"method":"ping"}`)
		defer resp.Body.Close()
		if got := resp.Header.Get("X-MCP-Session-ID"); got == "" || got == "long-gone" {
			t.Fatalf("expected fresh session id, got %q", got)
		}
	})

	t.Run("event-stream accept framing", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp",
			strings.NewReader(`{"jsonrpc":"2.0","id":4,"method":"tools/list"}`))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()

		if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
			t.Fatalf("unexpected content type %q", got)
		}
		body, _ := io.ReadAll(resp.Body)
		if !bytes.HasPrefix(body, []byte("data: ")) {
			t.Fatalf("expected SSE framing, got %q", body)
		}
	})

	t.Run("status probe", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/mcp/status")
		if err != nil {
			t.Fatalf("GET /mcp/status: %v", err)
		}
		defer resp.Body.Close()
		var status struct {
			Status      string `json:"status"`
			SSEEndpoint string `json:"sse_endpoint"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.Status != "ready" || status.SSEEndpoint != "/sse" {
			t.Fatalf("unexpected status payload: %+v", status)
		}
	})
}

func TestToolListIdenticalAcrossAdapters(t *testing.T) {
	srv := newTestServer(t, authz.Disabled())

	fromRoot := decodeResult[mcp.ListToolsResult](t, decodeRPC(t,
		postJSON(t, srv.URL+"/", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	fromMCP := decodeResult[mcp.ListToolsResult](t, decodeRPC(t,
		postJSON(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)))

	resp := postJSON(t, srv.URL+"/tools/list", "")
	defer resp.Body.Close()
	var fromLegacy mcp.ListToolsResult
	if err := json.NewDecoder(resp.Body).Decode(&fromLegacy); err != nil {
		t.Fatalf("decode legacy list: %v", err)
	}

	a, _ := json.Marshal(fromRoot)
	b, _ := json.Marshal(fromMCP)
	c, _ := json.Marshal(fromLegacy)
	if !bytes.Equal(a, b) || !bytes.Equal(a, c) {
		t.Fatalf("tool lists differ across adapters:\n%s\n%s\n%s", a, b, c)
	}
}

func TestLegacyAdapter(t *testing.T) {
	srv := newTestServer(t, authz.Disabled())

	t.Run("ping with default host", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/ping")
		if err != nil {
			t.Fatalf("GET /ping: %v", err)
		}
		defer resp.Body.Close()
		var out struct {
			Result string `json:"result"`
			Host   string `json:"host"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if want, got := "google.com", out.Host; want != got {
			t.Fatalf("unexpected default host: want %q got %q", want, got)
		}
		if !strings.HasPrefix(out.Result, "[SUCCESS]") {
			t.Fatalf("unexpected result: %q", out.Result)
		}
	})

	t.Run("website check with explicit url", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/check-website", `{"url":"https://example.com"}`)
		defer resp.Body.Close()
		var out struct {
			Result string `json:"result"`
			URL    string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if want, got := "https://example.com", out.URL; want != got {
			t.Fatalf("unexpected url: want %q got %q", want, got)
		}
		if !strings.Contains(out.Result, "HTTP status: 200") {
			t.Fatalf("unexpected result: %q", out.Result)
		}
	})

	t.Run("empty body falls back to defaults", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/check-website", "")
		defer resp.Body.Close()
		var out struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if want, got := "https://google.com", out.URL; want != got {
			t.Fatalf("unexpected default url: want %q got %q", want, got)
		}
	})

	t.Run("tools/call accepts alternate shapes", func(t *testing.T) {
		bodies := []string{
			`{"name":"ping_host","arguments":{"host":"localhost"}}`,
			`{"tool_name":"ping_host","params":{"host":"localhost"}}`,
			`{"function":"ping_host","parameters":{"host":"localhost"}}`,
		}
		for _, body := range bodies {
			resp := postJSON(t, srv.URL+"/tools/call", body)
			var out struct {
				Result string `json:"result"`
				Error  string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatalf("decode %s: %v", body, err)
			}
			resp.Body.Close()
			if out.Error != "" {
				t.Fatalf("call failed for %s: %s", body, out.Error)
			}
			if !strings.HasPrefix(out.Result, "[SUCCESS]") {
				t.Fatalf("unexpected result for %s: %q", body, out.Result)
			}
		}
	})

	t.Run("keyword sniffing resolves the tool", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/tools/call", `{"action":"ping","host":"localhost"}`)
		defer resp.Body.Close()
		var out struct {
			Tool string `json:"tool"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if want, got := "ping_host", out.Tool; want != got {
			t.Fatalf("unexpected tool: want %q got %q", want, got)
		}
	})

	t.Run("unknown tool reports error with echo", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/tools/call", `{"name":"never_heard_of_it"}`)
		defer resp.Body.Close()
		var out struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if want, got := "Unknown tool: never_heard_of_it", out.Error; want != got {
			t.Fatalf("unexpected error: want %q got %q", want, got)
		}
	})

	t.Run("health reports tools and sessions", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health: %v", err)
		}
		defer resp.Body.Close()
		var out struct {
			Status string   `json:"status"`
			Tools  []string `json:"tools"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Status != "healthy" || len(out.Tools) != 2 {
			t.Fatalf("unexpected health payload: %+v", out)
		}
	})
}

func TestAuth(t *testing.T) {
	t.Run("disabled auth admits anonymous requests", func(t *testing.T) {
		srv := newTestServer(t, authz.Disabled())
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health: %v", err)
		}
		resp.Body.Close()
		if want, got := http.StatusOK, resp.StatusCode; want != got {
			t.Fatalf("unexpected status: want %d got %d", want, got)
		}
	})

	srv := newTestServer(t, authz.StaticToken("sekrit"))

	t.Run("missing credential is 401 with challenge", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health: %v", err)
		}
		defer resp.Body.Close()
		if want, got := http.StatusUnauthorized, resp.StatusCode; want != got {
			t.Fatalf("unexpected status: want %d got %d", want, got)
		}
		if want, got := "Bearer", resp.Header.Get("WWW-Authenticate"); want != got {
			t.Fatalf("unexpected challenge: want %q got %q", want, got)
		}
	})

	t.Run("invalid credential is 403", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		if want, got := http.StatusForbidden, resp.StatusCode; want != got {
			t.Fatalf("unexpected status: want %d got %d", want, got)
		}
	})

	t.Run("valid credential is admitted", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
		req.Header.Set("Authorization", "Bearer sekrit")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		if want, got := http.StatusOK, resp.StatusCode; want != got {
			t.Fatalf("unexpected status: want %d got %d", want, got)
		}
	})
}

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	id   string
	data string
}

// readSSEFrame reads lines until a blank frame terminator.
func readSSEFrame(t *testing.T, br *bufio.Reader) sseFrame {
	t.Helper()
	var frame sseFrame
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if frame.data != "" {
				return frame
			}
		case strings.HasPrefix(line, "id: "):
			frame.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			frame.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamAdapter(t *testing.T) {
	srv := newTestServer(t, authz.Disabled())

	t.Run("connection event opens the stream", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /sse: %v", err)
		}
		defer resp.Body.Close()

		if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
			t.Fatalf("unexpected content type %q", got)
		}
		sessID := resp.Header.Get("X-MCP-Session-ID")
		if sessID == "" {
			t.Fatalf("missing session header")
		}

		frame := readSSEFrame(t, bufio.NewReader(resp.Body))
		var conn struct {
			Type      string `json:"type"`
			Status    string `json:"status"`
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal([]byte(frame.data), &conn); err != nil {
			t.Fatalf("decode connection event: %v", err)
		}
		if conn.Type != "connection" || conn.Status != "connected" || conn.SessionID != sessID {
			t.Fatalf("unexpected connection event: %+v", conn)
		}
		if frame.id == "" {
			t.Fatalf("connection event must carry an event id")
		}
	})

	t.Run("last event id resumes queued responses", func(t *testing.T) {
		// Queue a response on a fresh session via the standard adapter.
		resp := postJSON(t, srv.URL+"/initialize", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
		init := decodeResult[mcp.InitializeResult](t, decodeRPC(t, resp))

		postJSON(t, srv.URL+"/mcp?session_id="+init.SessionID,
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`).Body.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			srv.URL+"/sse?session_id="+init.SessionID, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Last-Event-ID", "0")
		sseResp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /sse: %v", err)
		}
		defer sseResp.Body.Close()

		frame := readSSEFrame(t, bufio.NewReader(sseResp.Body))
		var res jsonrpc.Response
		if err := json.Unmarshal([]byte(frame.data), &res); err != nil {
			t.Fatalf("decode replayed frame: %v", err)
		}
		list := decodeResult[mcp.ListToolsResult](t, &res)
		if want, got := 2, len(list.Tools); want != got {
			t.Fatalf("unexpected tool count in replay: want %d got %d", want, got)
		}
	})

	t.Run("heartbeat keeps the stream alive", func(t *testing.T) {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		store := sessions.NewMemoryStore()
		t.Cleanup(func() { store.Close() })
		disp := dispatch.New(log, tools.NewRegistry(log, okRunner{}))
		h := httpapi.New(disp, store, authz.Disabled(),
			httpapi.WithLogger(log), httpapi.WithHeartbeatInterval(50*time.Millisecond))
		hbSrv := httptest.NewServer(h)
		t.Cleanup(hbSrv.Close)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, hbSrv.URL+"/sse", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /sse: %v", err)
		}
		defer resp.Body.Close()

		br := bufio.NewReader(resp.Body)
		readSSEFrame(t, br) // connection event

		frame := readSSEFrame(t, br)
		var hb struct {
			Type      string `json:"type"`
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(frame.data), &hb); err != nil {
			t.Fatalf("decode heartbeat: %v", err)
		}
		if hb.Type != "heartbeat" || hb.Timestamp == "" {
			t.Fatalf("unexpected heartbeat: %+v", hb)
		}
		if frame.id != "" {
			t.Fatalf("heartbeats are not persisted and carry no id, got %q", frame.id)
		}
	})
}
