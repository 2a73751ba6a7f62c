// Package core hosts the workspace service: a single-writer owner of a
// lineage's head snapshot that runs pre-commit rules, publishes commits to
// concurrent readers, and checkpoints the head to persistence and the
// snapshot archive.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"entitygraph/internal/archive"
	"entitygraph/internal/blob"
	"entitygraph/internal/codec"
	"entitygraph/pkg/domain"
	"entitygraph/pkg/schema"
	"entitygraph/pkg/store"
)

// Operation names reported to loggers, metrics, tracers and audit recorders.
const (
	OperationUpdate     = "update"
	OperationCheckpoint = "checkpoint"
	OperationRestore    = "restore"
)

// DefaultLineage is the persistence key used when none is configured.
const DefaultLineage = "main"

// Workspace serializes writers on one lineage and publishes each commit as
// the new head. Readers call Head and never block writers.
type Workspace struct {
	reg     *schema.Registry
	name    string
	head    atomic.Pointer[store.Snapshot]
	writeMu sync.Mutex

	rules    *domain.RulesEngine
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	clock    Clock
	codec    domain.Codec
	persist  domain.SnapshotStore
	archive  *archive.Archive
	closeMu  sync.Mutex
	closed   bool
	initHead *store.Snapshot
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the workspace logger. A *slog.Logger satisfies Logger.
func WithLogger(l Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(w *Workspace) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(w *Workspace) {
		if t != nil {
			w.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(w *Workspace) {
		if a != nil {
			w.audit = a
		}
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(w *Workspace) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithRulesEngine replaces the pre-commit rules engine.
func WithRulesEngine(e *domain.RulesEngine) Option {
	return func(w *Workspace) {
		if e != nil {
			w.rules = e
		}
	}
}

// WithRules registers rules on the workspace's engine.
func WithRules(rules ...domain.Rule) Option {
	return func(w *Workspace) {
		for _, r := range rules {
			w.rules.Register(r)
		}
	}
}

// WithCodec selects the encoding used for checkpoints.
func WithCodec(c domain.Codec) Option {
	return func(w *Workspace) {
		if c != nil {
			w.codec = c
		}
	}
}

// WithSnapshotStore enables persistence on Checkpoint.
func WithSnapshotStore(s domain.SnapshotStore) Option {
	return func(w *Workspace) { w.persist = s }
}

// WithArchive enables archiving on Checkpoint.
func WithArchive(a *archive.Archive) Option {
	return func(w *Workspace) { w.archive = a }
}

// WithLineageName sets the key the workspace persists and archives under.
func WithLineageName(name string) Option {
	return func(w *Workspace) {
		if name != "" {
			w.name = name
		}
	}
}

// WithHead starts the workspace on snap instead of an empty snapshot. The
// snapshot must belong to the workspace's registry.
func WithHead(snap *store.Snapshot) Option {
	return func(w *Workspace) { w.initHead = snap }
}

// NewWorkspace returns a workspace over reg, starting from an empty snapshot
// unless WithHead says otherwise.
func NewWorkspace(reg *schema.Registry, opts ...Option) (*Workspace, error) {
	if reg == nil {
		return nil, errors.New("workspace requires a schema registry")
	}
	w := &Workspace{
		reg:     reg,
		name:    DefaultLineage,
		rules:   domain.NewRulesEngine(),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		clock:   ClockFunc(nil),
		codec:   codec.JSON(),
	}
	for _, opt := range opts {
		opt(w)
	}
	head := w.initHead
	w.initHead = nil
	if head == nil {
		head = store.Empty(reg)
	}
	if head.Registry().Fingerprint() != reg.Fingerprint() {
		return nil, &domain.ConfigurationError{Detail: "initial head was built for a different schema"}
	}
	w.head.Store(head)
	return w, nil
}

// Name returns the lineage name used for persistence and archiving.
func (w *Workspace) Name() string { return w.name }

// Registry returns the workspace schema.
func (w *Workspace) Registry() *schema.Registry { return w.reg }

// Rules returns the pre-commit rules engine.
func (w *Workspace) Rules() *domain.RulesEngine { return w.rules }

// Head returns the latest published snapshot.
func (w *Workspace) Head() *store.Snapshot { return w.head.Load() }

// Update runs fn against a builder on the current head. When fn succeeds the
// registered rules evaluate the pending changes: blocking violations abort
// with domain.RuleViolationError, warnings are logged. Otherwise the builder
// commits and its snapshot becomes the head. Writers are serialized; an
// update that changes nothing returns the unchanged head. Commits fn makes
// through the builder itself are published without rule evaluation.
func (w *Workspace) Update(ctx context.Context, op string, fn func(*store.Builder) error) (*store.Snapshot, []domain.Change, error) {
	if op == "" {
		op = OperationUpdate
	}
	var (
		snap    *store.Snapshot
		changes []domain.Change
	)
	err := w.observe(ctx, op, func(ctx context.Context, entry *AuditEntry) error {
		var err error
		snap, changes, err = w.update(ctx, op, fn)
		if snap != nil {
			entry.Version = snap.Version()
		}
		entry.Summary = domain.Summarize(changes)
		entry.Entities = changedEntities(changes)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, changes, nil
}

func (w *Workspace) update(ctx context.Context, op string, fn func(*store.Builder) error) (*store.Snapshot, []domain.Change, error) {
	if fn == nil {
		return nil, nil, errors.New("update function is nil")
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	base := w.head.Load()
	b, err := base.Builder()
	if err != nil {
		return nil, nil, err
	}
	defer b.Discard()
	err = fn(b)
	if committed := b.Base(); committed != base {
		// fn committed through the builder itself; that snapshot already
		// heads the lineage and must become the workspace head as well.
		w.logger.Warn("update committed inside its function", "operation", op, "version", committed.Version())
		w.publish(ctx, committed)
		base = committed
	}
	if err != nil {
		return nil, nil, err
	}
	if !b.HasChanges() {
		return base, nil, nil
	}

	res, err := w.rules.Evaluate(ctx, b, b.Changes())
	if err != nil {
		return nil, nil, err
	}
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityWarn:
			w.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "entity", v.Entity.String(), "message", v.Message)
		case domain.SeverityLog:
			w.logger.Info("rule violation", "operation", op, "rule", v.Rule, "entity", v.Entity.String(), "message", v.Message)
		}
	}
	if res.HasBlocking() {
		return nil, nil, domain.RuleViolationError{Result: res}
	}

	snap, changes, err := b.CommitWithChanges()
	if err != nil {
		return nil, nil, err
	}
	w.publish(ctx, snap)
	return snap, changes, nil
}

func (w *Workspace) publish(ctx context.Context, snap *store.Snapshot) {
	w.head.Store(snap)
	if obs, ok := w.metrics.(SnapshotObserver); ok {
		obs.ObserveSnapshot(ctx, snap)
	}
}

// CheckpointResult reports what Checkpoint wrote.
type CheckpointResult struct {
	Version   uint64
	Persisted bool
	// Archived is nil when no archive is configured.
	Archived *archive.Entry
	// AlreadyArchived is set when the head version was archived earlier.
	AlreadyArchived bool
}

// Checkpoint writes the current head to the snapshot store and the archive
// concurrently. The first failure cancels the other write.
func (w *Workspace) Checkpoint(ctx context.Context) (CheckpointResult, error) {
	var result CheckpointResult
	err := w.observe(ctx, OperationCheckpoint, func(ctx context.Context, entry *AuditEntry) error {
		if w.isClosed() {
			return errWorkspaceClosed
		}
		snap := w.head.Load()
		result.Version = snap.Version()
		entry.Version = snap.Version()

		g, gctx := errgroup.WithContext(ctx)
		if w.persist != nil {
			g.Go(func() error {
				payload, err := w.codec.Encode(snap.Dump())
				if err != nil {
					return err
				}
				if err := w.persist.Save(gctx, w.name, payload); err != nil {
					return fmt.Errorf("persist %s: %w", w.name, err)
				}
				result.Persisted = true
				return nil
			})
		}
		if w.archive != nil {
			g.Go(func() error {
				e, err := w.archive.Put(gctx, w.name, snap)
				if errors.Is(err, blob.ErrExists) {
					result.AlreadyArchived = true
					return nil
				}
				if err != nil {
					return err
				}
				result.Archived = &e
				return nil
			})
		}
		return g.Wait()
	})
	return result, err
}

// RestoreArchived replaces the head with an archived version (zero selects
// the latest). The restored snapshot becomes the head of its own lineage.
func (w *Workspace) RestoreArchived(ctx context.Context, version uint64) (*store.Snapshot, error) {
	if w.archive == nil {
		return nil, errors.New("workspace has no archive configured")
	}
	var snap *store.Snapshot
	err := w.observe(ctx, OperationRestore, func(ctx context.Context, entry *AuditEntry) error {
		w.writeMu.Lock()
		defer w.writeMu.Unlock()
		restored, err := w.archive.Restore(ctx, w.reg, w.name, version)
		if err != nil {
			return err
		}
		entry.Version = restored.Version()
		w.head.Store(restored)
		snap = restored
		if obs, ok := w.metrics.(SnapshotObserver); ok {
			obs.ObserveSnapshot(ctx, restored)
		}
		return nil
	})
	return snap, err
}

var errWorkspaceClosed = errors.New("workspace is closed")

func (w *Workspace) isClosed() bool {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	return w.closed
}

// Close releases the snapshot store. Further checkpoints fail.
func (w *Workspace) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.persist != nil {
		return w.persist.Close()
	}
	return nil
}

func (w *Workspace) observe(ctx context.Context, op string, fn func(context.Context, *AuditEntry) error) error {
	ctx, span := w.tracer.Start(ctx, op)
	started := w.clock.Now()
	entry := AuditEntry{Operation: op, Lineage: w.name}
	err := fn(ctx, &entry)
	duration := w.clock.Now().Sub(started)
	span.End(err)
	w.metrics.Observe(ctx, op, err == nil, duration)

	entry.Duration = duration
	entry.Timestamp = w.clock.Now()
	entry.Status = AuditStatusSuccess
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		w.logger.Error("workspace operation failed", "operation", op, "lineage", w.name, "error", err, "duration", duration)
	} else {
		w.logger.Debug("workspace operation", "operation", op, "lineage", w.name, "version", entry.Version,
			"created", entry.Summary.Created, "updated", entry.Summary.Updated, "removed", entry.Summary.Removed, "duration", duration)
	}
	w.audit.Record(ctx, entry)
	return err
}

func changedEntities(changes []domain.Change) []domain.EntityID {
	if len(changes) == 0 {
		return nil
	}
	out := make([]domain.EntityID, len(changes))
	for i, c := range changes {
		out[i] = c.Entity
	}
	return out
}
