// Package dispatch maps normalized JSON-RPC requests onto the tool registry
// and the protocol handshake. It is stateless; every transport adapter feeds
// it the same way.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/jsonrpc"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/logctx"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/registry"
)

// ServerInfo identifies this gateway in initialize responses.
var ServerInfo = mcp.ImplementationInfo{
	Name:    "uptimecheck",
	Version: "1.0.0",
}

// Capabilities is the fixed capability set the gateway advertises.
var Capabilities = mcp.ServerCapabilities{
	Tools: &mcp.ToolsCapability{ListChanged: true},
}

// Dispatcher resolves methods against the registry and built-ins.
type Dispatcher struct {
	log *slog.Logger
	reg *registry.Registry
}

// New builds a Dispatcher over the given registry.
func New(log *slog.Logger, reg *registry.Registry) *Dispatcher {
	return &Dispatcher{log: log, reg: reg}
}

// Registry exposes the underlying tool registry to transports that list
// tools outside a JSON-RPC envelope.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.reg
}

// Dispatch handles one request and returns the response, or nil for
// notifications that produce none.
//
// Two failure channels are kept strictly apart: malformed envelopes and
// unknown methods/tools come back as JSON-RPC error objects, while a tool
// that ran and failed comes back as a successful result whose content text
// carries the failure marker.
func (d *Dispatcher) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	if req == nil {
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "invalid request", nil)
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})

	if !req.ValidEnvelope() {
		d.log.WarnContext(ctx, "rpc.envelope.invalid")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "invalid request", nil)
	}

	var res *jsonrpc.Response
	switch req.Method {
	case "initialize":
		res = d.handleInitialize(ctx, req)
	case "notifications/initialized":
		// Acknowledged silently; the gateway keeps no handshake state.
		return nil
	case "ping":
		res, _ = jsonrpc.NewResultResponse(req.ID, struct{}{})
	case "tools/list":
		res = d.handleToolsList(ctx, req)
	case "tools/call":
		res = d.handleToolsCall(ctx, req)
	default:
		d.log.WarnContext(ctx, "rpc.method.unknown")
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+req.Method, nil)
	}

	d.log.InfoContext(ctx, "rpc.dispatch.done", slog.Duration("dur", time.Since(start)))
	return res
}

func (d *Dispatcher) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		// A malformed params object still gets a handshake; the version
		// simply negotiates to the newest.
		_ = json.Unmarshal(req.Params, &params)
	}

	negotiated := mcp.NegotiateProtocolVersion(params.ProtocolVersion)
	d.log.InfoContext(ctx, "rpc.initialize",
		slog.String("client_version", params.ProtocolVersion),
		slog.String("negotiated_version", negotiated),
		slog.String("client_name", params.ClientInfo.Name))

	res, err := jsonrpc.NewResultResponse(req.ID, mcp.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    Capabilities,
		ServerInfo:      ServerInfo,
	})
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}
	return res
}

func (d *Dispatcher) handleToolsList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(req.ID, mcp.ListToolsResult{Tools: d.reg.List()})
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}
	return res
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.CallToolRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: "+err.Error(), nil)
		}
	}
	if params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "tool name is required", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	result, err := d.reg.Invoke(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownTool) {
			d.log.WarnContext(ctx, "rpc.tool.unknown")
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Unknown tool: "+params.Name, nil)
		}
		d.log.ErrorContext(ctx, "rpc.tool.invoke.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}
	return res
}
