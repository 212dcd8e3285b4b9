// Package toolcall reaches external tool servers over the JSON wire contract:
// POST <base-url>/<operation> with {args}, GET <base-url>/health for probes.
// Every failure mode is normalized into a failed Result; nothing here ever
// returns an error to the orchestration layers.
package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	"github.com/AgriMind-advisor-poc/server/internal/agent/trace"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
)

const maxResponseBytes = 1 << 20 // 1MB cap on tool responses

// Result is the normalized outcome of a single tool-call attempt.
type Result struct {
	Success  bool
	Data     map[string]any
	Err      string
	Duration time.Duration
}

// wireRequest / wireResponse mirror the tool wire contract.
type wireRequest struct {
	Server    string         `json:"server"`
	Operation string         `json:"operation"`
	Args      map[string]any `json:"args"`
}

type wireResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *string        `json:"error"`
}

// Client issues single-attempt calls to configured tool servers. The
// underlying http.Client pools connections and is safe for concurrent use;
// server entries are read-only after construction.
type Client struct {
	servers  map[string]model.ToolServer
	http     *http.Client
	recorder *trace.Recorder
}

func NewClient(servers []model.ToolServer, recorder *trace.Recorder) *Client {
	byName := make(map[string]model.ToolServer, len(servers))
	for _, s := range servers {
		byName[s.Name] = s
	}
	return &Client{
		servers: byName,
		// Per-call deadlines come from the request context; the client-level
		// timeout stays zero so it never shadows a server's configured bound.
		http:     &http.Client{},
		recorder: recorder,
	}
}

// Server returns the configured entry for a named server.
func (c *Client) Server(name string) (model.ToolServer, bool) {
	s, ok := c.servers[name]
	return s, ok
}

// Call performs one attempt against server/operation with the server's
// configured timeout as a hard wall-clock bound. No retries. A trace record
// is appended regardless of outcome.
func (c *Client) Call(ctx context.Context, turnID, server, operation string, args map[string]any) Result {
	start := time.Now()

	entry, ok := c.servers[server]
	if !ok {
		// Callers validate server names before dispatching; this is a guard,
		// not a reachable path from the handlers.
		res := Result{Err: fmt.Sprintf("unknown server %q", server)}
		c.finish(turnID, server, operation, args, res, start)
		return res
	}

	callCtx, cancel := context.WithTimeout(ctx, entry.Timeout)
	defer cancel()

	res := c.post(callCtx, entry, operation, args)
	res.Duration = time.Since(start)
	c.finish(turnID, server, operation, args, res, start)
	return res
}

func (c *Client) post(ctx context.Context, entry model.ToolServer, operation string, args map[string]any) Result {
	body, err := json.Marshal(wireRequest{Server: entry.Name, Operation: operation, Args: args})
	if err != nil {
		return Result{Err: fmt.Sprintf("encode request: %v", err)}
	}

	url := strings.TrimRight(entry.BaseURL, "/") + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Distinct error strings for timeouts vs transport failures; scoring
		// treats them the same, observability does not.
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Err: fmt.Sprintf("timeout after %s", entry.Timeout)}
		}
		return Result{Err: fmt.Sprintf("transport error: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Err: fmt.Sprintf("tool returned status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{Err: fmt.Sprintf("timeout after %s", entry.Timeout)}
		}
		return Result{Err: fmt.Sprintf("read response: %v", err)}
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Result{Err: fmt.Sprintf("malformed response: %v", err)}
	}
	if !wire.Success {
		msg := "tool reported failure"
		if wire.Error != nil && *wire.Error != "" {
			msg = "tool error: " + *wire.Error
		}
		return Result{Err: msg}
	}
	return Result{Success: true, Data: wire.Data}
}

func (c *Client) finish(turnID, server, operation string, args map[string]any, res Result, start time.Time) {
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	rec := model.ToolCallRecord{
		TurnID:    turnID,
		Server:    server,
		Operation: operation,
		Args:      args,
		Output:    res.Data,
		Duration:  res.Duration,
		Success:   res.Success,
		Error:     res.Err,
		Timestamp: start,
	}
	c.recorder.Record(rec)

	evt := logx.Debug()
	if !res.Success {
		evt = logx.Warn()
	}
	evt.Str("server", server).
		Str("operation", operation).
		Str("turn_id", turnID).
		Dur("duration", res.Duration).
		Bool("success", res.Success).
		Str("error", res.Err).
		Msg("tool call finished")
}

// probeHealth issues GET /health; 2xx within the timeout counts as healthy.
// Probes are not tool-call attempts and are not traced.
func (c *Client) probeHealth(ctx context.Context, entry model.ToolServer, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(entry.BaseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
