package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/zacharycox-tamu/mcp-checkuptime/internal/mcp"
	"github.com/zacharycox-tamu/mcp-checkuptime/internal/registry"
)

// DefaultPingHost is substituted by the legacy transport when a caller sends
// no host at all.
const DefaultPingHost = "google.com"

const pingTimeout = 20 * time.Second

// PingArgs are the arguments of the ping_host tool.
type PingArgs struct {
	Host string `json:"host" jsonschema:"description=Hostname or IP address to ping"`
}

// NewPingTool builds the ping_host tool. It sends three ICMP echo requests
// with a per-packet timeout and reports reachability as result text.
func NewPingTool(log *slog.Logger, run Runner) registry.Entry {
	return registry.Typed("ping_host", "Ping a host to check network uptime (ICMP).",
		func(ctx context.Context, args PingArgs) *mcp.CallToolResult {
			host := strings.TrimSpace(args.Host)
			if host == "" {
				return mcp.ErrorResult("[ERROR] Host is required")
			}

			log.InfoContext(ctx, "tool.ping.start", slog.String("host", host))

			ctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()

			out, err := run.Run(ctx, "ping", pingArgs(host)...)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					log.WarnContext(ctx, "tool.ping.timeout", slog.String("host", host))
					return mcp.ErrorResult(fmt.Sprintf("[TIMEOUT] Ping timed out after %d seconds for %s", int(pingTimeout.Seconds()), host))
				}
				log.ErrorContext(ctx, "tool.ping.fail", slog.String("err", err.Error()))
				return mcp.ErrorResult(fmt.Sprintf("[ERROR] %v", err))
			}

			if out.ExitCode == 0 {
				log.InfoContext(ctx, "tool.ping.ok", slog.String("host", host))
				return mcp.TextResult(fmt.Sprintf("[SUCCESS] Host %s is reachable!\n\n%s", host, out.Stdout))
			}

			log.WarnContext(ctx, "tool.ping.unreachable", slog.String("host", host), slog.Int("exit_code", out.ExitCode))
			return mcp.ErrorResult(fmt.Sprintf("[ERROR] Cannot reach %s.\n\nReturn code: %d\nStdout: %s\nStderr: %s",
				host, out.ExitCode, out.Stdout, out.Stderr))
		})
}

// pingArgs selects platform-appropriate ping flags: count 3 with a 5 second
// per-probe timeout. Windows spells both flags differently and takes
// milliseconds.
func pingArgs(host string) []string {
	if runtime.GOOS == "windows" {
		return []string{"-n", "3", "-w", "5000", host}
	}
	return []string{"-c", "3", "-W", "5", host}
}
