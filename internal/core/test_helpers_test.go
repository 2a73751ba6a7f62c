package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
	"entitygraph/pkg/store"
)

const (
	kindModule  domain.Kind = "module"
	kindLibrary domain.Kind = "library"
	kindElement domain.Kind = "element"
	kindFile    domain.Kind = "file"

	srcProject domain.EntitySource = "project.xml"
)

func testRegistry() *schema.Registry {
	return schema.MustRegistry(
		schema.Entity(kindModule).
			Fields(schema.String("name"), schema.Set("tags").Optional()).
			SymbolicKey("name"),
		schema.Entity(kindLibrary).
			Fields(schema.String("name")).
			SymbolicKey("name"),
		schema.Abstract(kindElement, kindFile),
		schema.Entity(kindFile).Fields(schema.String("path")),
	)
}

func addModule(name string) func(*store.Builder) error {
	return func(b *store.Builder) error {
		_, err := b.CreateEntity(kindModule, srcProject, map[string]any{"name": name})
		return err
	}
}

func newTestWorkspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	w, err := NewWorkspace(testRegistry(), opts...)
	if err != nil {
		t.Fatalf("new workspace: %v", err)
	}
	return w
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls     []metricsCall
	snapshots []uint64
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) ObserveSnapshot(_ context.Context, snap *store.Snapshot) {
	c.snapshots = append(c.snapshots, snap.Version())
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logRecord struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	l.records = append(l.records, logRecord{level: level, msg: msg, args: args})
	l.mu.Unlock()
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.level == level && r.msg == msg {
			n++
		}
	}
	return n
}

// stepClock advances by step on every call.
func stepClock(start time.Time, step time.Duration) ClockFunc {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
