// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/lecture-engine/internal/cost"
	"github.com/pdiddy/lecture-engine/pkg/types"
	"go.uber.org/zap"
)

// Deps is the collaborator bundle an Orchestrator is built with. Nil
// members are replaced with no-op or in-memory defaults. Every member must
// be safe for concurrent use since runs may overlap.
type Deps struct {
	Logger  *zap.Logger
	Metrics MetricsSink
	Cache   Cache
	Pricing cost.PricingTable
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.Cache == nil {
		d.Cache = NewMemoryCache()
	}
	if d.Pricing == nil {
		d.Pricing = cost.DefaultPricing()
	}
	return d
}

// CallStats describes one agent invocation.
type CallStats struct {
	RunID        string        `json:"run_id"`
	Agent        string        `json:"agent"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Duration     time.Duration `json:"duration"`
	Err          string        `json:"error,omitempty"`
}

// MetricsSink receives per-call statistics.
type MetricsSink interface {
	ObserveCall(CallStats)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCall(CallStats) {}

// Recorder is an in-memory MetricsSink.
type Recorder struct {
	mu    sync.Mutex
	calls []CallStats
}

func (r *Recorder) ObserveCall(s CallStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

// Snapshot returns a copy of the recorded calls in arrival order.
func (r *Recorder) Snapshot() []CallStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallStats, len(r.calls))
	copy(out, r.calls)
	return out
}

// Cache stores detected course contexts so repeated topics skip detection.
type Cache interface {
	GetContext(ctx context.Context, key string) (types.CourseContext, bool)
	PutContext(ctx context.Context, key string, cc types.CourseContext)
}

// CacheKey normalizes a topic: lower case, single spaces.
func CacheKey(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]types.CourseContext
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]types.CourseContext)}
}

func (c *MemoryCache) GetContext(_ context.Context, key string) (types.CourseContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cc, ok := c.m[key]
	return cc, ok
}

func (c *MemoryCache) PutContext(_ context.Context, key string, cc types.CourseContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = cc
}
