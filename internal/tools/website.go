package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/registry"
)

// DefaultWebsiteURL is substituted by the legacy transport when a caller
// sends no url at all.
const DefaultWebsiteURL = "https://google.com"

const websiteTimeout = 10 * time.Second

// WebsiteArgs are the arguments of the check_website tool.
type WebsiteArgs struct {
	URL string `json:"url" jsonschema:"description=URL to check"`
}

// NewWebsiteTool builds the check_website tool. It fetches only the HTTP
// status code via curl; 2xx and 3xx count as up.
func NewWebsiteTool(log *slog.Logger, run Runner) registry.Entry {
	return registry.Typed("check_website", "Check if a website is up using curl (HTTP/HTTPS).",
		func(ctx context.Context, args WebsiteArgs) *mcp.CallToolResult {
			url := strings.TrimSpace(args.URL)
			if url == "" {
				return mcp.ErrorResult("[ERROR] URL is required")
			}

			log.InfoContext(ctx, "tool.website.start", slog.String("url", url))

			ctx, cancel := context.WithTimeout(ctx, websiteTimeout)
			defer cancel()

			out, err := run.Run(ctx, "curl", "-s", "-o", os.DevNull, "-w", "%{http_code}", "--max-time", "8", url)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					log.WarnContext(ctx, "tool.website.timeout", slog.String("url", url))
					return mcp.ErrorResult(fmt.Sprintf("[TIMEOUT] Website check timed out after %d seconds for %s", int(websiteTimeout.Seconds()), url))
				}
				log.ErrorContext(ctx, "tool.website.fail", slog.String("err", err.Error()))
				return mcp.ErrorResult(fmt.Sprintf("[ERROR] %v", err))
			}

			code := strings.Trim(strings.TrimSpace(out.Stdout), `'"`)
			log.InfoContext(ctx, "tool.website.done", slog.String("url", url), slog.String("status", code))

			if code != "" && (strings.HasPrefix(code, "2") || strings.HasPrefix(code, "3")) {
				return mcp.TextResult(fmt.Sprintf("[SUCCESS] Website %s is up! HTTP status: %s", url, code))
			}
			return mcp.ErrorResult(fmt.Sprintf("[ERROR] Website %s is down or unreachable. HTTP status: %s", url, code))
		})
}

// NewRegistry assembles the gateway's fixed tool set in listing order.
func NewRegistry(log *slog.Logger, run Runner) *registry.Registry {
	return registry.MustNew(
		NewPingTool(log, run),
		NewWebsiteTool(log, run),
	)
}
