package httpapi

import (
	"net/http"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/dispatch"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		count = -1
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"service":     dispatch.ServerInfo.Name,
		"version":     dispatch.ServerInfo.Version,
		"mcp_version": mcp.LatestProtocolVersion,
		"transport":   "streamable_http",
		"tools":       h.disp.Registry().Names(),
		"sessions":    count,
	})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":              dispatch.ServerInfo.Name,
		"version":           dispatch.ServerInfo.Version,
		"protocol_versions": mcp.SupportedProtocolVersions,
		"transport":         "streamable_http",
		"tools":             h.disp.Registry().List(),
		"endpoints": map[string]string{
			"mcp":           "/mcp",
			"initialize":    "/initialize",
			"sse":           "/sse",
			"ping":          "/ping",
			"check_website": "/check-website",
			"tools_call":    "/tools/call",
			"health":        "/health",
		},
	})
}

// handleOpenAPI publishes a minimal description of the plain HTTP surface.
// The MCP endpoints speak JSON-RPC and are deliberately not described here.
func (h *Handler) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	pathItem := func(summary string, params ...map[string]any) map[string]any {
		op := map[string]any{
			"summary": summary,
			"responses": map[string]any{
				"200": map[string]any{"description": "OK"},
			},
		}
		if len(params) > 0 {
			op["parameters"] = params
		}
		return map[string]any{"get": op}
	}
	queryParam := func(name, description string) map[string]any {
		return map[string]any{
			"name":        name,
			"in":          "query",
			"required":    false,
			"description": description,
			"schema":      map[string]any{"type": "string"},
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   dispatch.ServerInfo.Name,
			"version": dispatch.ServerInfo.Version,
		},
		"paths": map[string]any{
			"/ping":          pathItem("Ping a host", queryParam("host", "Hostname or IP address to ping")),
			"/check-website": pathItem("Check whether a website is up", queryParam("url", "URL to check")),
			"/health":        pathItem("Service health"),
			"/tools":         pathItem("List available tools"),
		},
	})
}
