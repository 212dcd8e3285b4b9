package toolcall

import (
	"context"
	"sync"

	"github.com/AgriMind-advisor-poc/server/internal/agent/model"
	logx "github.com/AgriMind-advisor-poc/server/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// Call names one independent tool invocation for the fan-out.
type Call struct {
	Server    string
	Operation string
	Args      map[string]any
}

// Dispatcher fans independent calls out to the Client concurrently and joins
// all of them before returning. One branch's failure or timeout never blocks
// or cancels the others; the wall clock is bounded by the slowest single
// call, not the sum.
type Dispatcher struct {
	client      *Client
	maxParallel int64
}

func NewDispatcher(client *Client, maxParallel int) *Dispatcher {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Dispatcher{client: client, maxParallel: int64(maxParallel)}
}

// Client exposes the underlying client for server lookups.
func (d *Dispatcher) Client() *Client {
	return d.client
}

// Dispatch executes every call concurrently (bounded by maxParallel) and
// returns once all have completed or individually timed out. The result map
// has exactly one entry per input key.
func (d *Dispatcher) Dispatch(ctx context.Context, turnID string, calls map[string]Call) map[string]Result {
	results := make(map[string]Result, len(calls))
	if len(calls) == 0 {
		return results
	}

	// A fresh semaphore per dispatch keeps turns independent of each other.
	sem := semaphore.NewWeighted(d.maxParallel)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for key, call := range calls {
		wg.Add(1)
		go func(key string, call Call) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				results[key] = Result{Err: "dispatch canceled: " + err.Error()}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			res := d.client.Call(ctx, turnID, call.Server, call.Operation, call.Args)
			mu.Lock()
			results[key] = res
			mu.Unlock()
		}(key, call)
	}

	wg.Wait()

	logx.Debug().
		Str("turn_id", turnID).
		Int("calls", len(calls)).
		Msg("tool fan-out resolved")
	return results
}

// ProbeHealth refreshes the per-turn availability snapshot for the given
// servers, probing enabled servers in parallel. Disabled servers are marked
// unavailable without a probe.
func (d *Dispatcher) ProbeHealth(ctx context.Context, servers []model.ToolServer, cfg model.ToolsConfig) model.ServerHealth {
	health := make(model.ServerHealth, len(servers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := semaphore.NewWeighted(d.maxParallel)

	// Mark disabled servers up front so the map is only written under mu
	// once probe goroutines are running.
	for _, entry := range servers {
		if !entry.Enabled {
			health[entry.Name] = false
		}
	}

	for _, entry := range servers {
		if !entry.Enabled {
			continue
		}
		wg.Add(1)
		go func(entry model.ToolServer) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				health[entry.Name] = false
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			up := d.client.probeHealth(ctx, entry, cfg.HealthTimeout())
			mu.Lock()
			health[entry.Name] = up
			mu.Unlock()
		}(entry)
	}

	wg.Wait()
	return health
}
