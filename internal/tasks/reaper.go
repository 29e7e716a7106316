// Package tasks holds the long-running background jobs of the accounts
// service and the supervisor that runs them next to the HTTP server.
//
// The expiry reaper enforces a time to live on an ephemeral dataset. Each
// pass scans the whole hash once, judges every entry against a single "now"
// captured at the start of the pass, and deletes expired fields in batches of
// DeletionBulkCount. A batch that removes fewer or more fields than requested
// aborts the task: the reaper never retries and never runs on after a store
// inconsistency.
//
//	r, err := tasks.NewReaper[token.CaptchaID](tasks.ReaperConfig{
//	    Store:             store,
//	    Hash:              ephemeral.DatasetCaptcha,
//	    Expiry:            5 * time.Minute,
//	    DeletionBulkCount: 100,
//	}, record.DecodeCaptchaFields)
//	err = r.Run(ctx)
package tasks

import (
	"context"
	"time"

	"github.com/getkayan/accounts/internal/ephemeral"
	"github.com/getkayan/accounts/internal/record"
	"github.com/getkayan/accounts/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/getkayan/accounts/internal/tasks"

// ReaperConfig parametrizes one reaper instance.
type ReaperConfig struct {
	// Store is scanned for expired entries.
	Store ephemeral.HashStore
	// DeleteStore receives the bulk deletes. It may be a separate handle to
	// the same backing store; defaults to Store.
	DeleteStore ephemeral.HashStore

	Hash              string
	Expiry            time.Duration
	DeletionBulkCount int

	Logger *zap.Logger
	Now    func() time.Time
	// Sleep waits between passes. It must return ctx.Err() when ctx is done
	// before d elapses.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Reaper deletes the entries of one hash whose record is older than Expiry.
type Reaper[K ~string, R record.Record] struct {
	cfg    ReaperConfig
	decode record.Decoder[R]
	log    *zap.Logger

	// buf holds the expired keys of the current batch. Unused slots hold the
	// zero value of K, which no issued key ever equals.
	buf    []K
	fields []string

	tracer  trace.Tracer
	sweeps  metric.Int64Counter
	removed metric.Int64Counter
}

func NewReaper[K ~string, R record.Record](cfg ReaperConfig, decode record.Decoder[R]) (*Reaper[K, R], error) {
	if cfg.Hash == "" {
		return nil, ErrInvalidHashName
	}
	if cfg.DeletionBulkCount < 1 {
		return nil, ErrInvalidBatchSize
	}
	if cfg.Expiry < time.Second {
		return nil, ErrInvalidExpiry
	}
	if cfg.DeleteStore == nil {
		cfg.DeleteStore = cfg.Store
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}

	meter := otel.Meter(instrumentationName)
	sweeps, err := meter.Int64Counter(
		"accounts.reaper.sweeps",
		metric.WithDescription("Completed reaper passes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}
	removed, err := meter.Int64Counter(
		"accounts.reaper.removed",
		metric.WithDescription("Expired entries removed by the reaper"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Reaper[K, R]{
		cfg:     cfg,
		decode:  decode,
		log:     cfg.Logger,
		buf:     make([]K, cfg.DeletionBulkCount),
		fields:  make([]string, 0, cfg.DeletionBulkCount),
		tracer:  otel.Tracer(instrumentationName),
		sweeps:  sweeps,
		removed: removed,
	}, nil
}

// Run sweeps the hash, sleeps for the expiry duration and repeats until a
// sweep fails or ctx is done.
func (r *Reaper[K, R]) Run(ctx context.Context) error {
	r.log.Info("reaper started",
		zap.String("hash", r.cfg.Hash),
		zap.Duration("expiry", r.cfg.Expiry),
		zap.Int("deletion_bulk_count", r.cfg.DeletionBulkCount))

	for {
		if _, err := r.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := r.cfg.Sleep(ctx, r.cfg.Expiry); err != nil {
			return err
		}
	}
}

// Sweep performs one full pass over the hash and returns how many fields it
// removed.
func (r *Reaper[K, R]) Sweep(ctx context.Context) (removed int, err error) {
	ctx, span := r.tracer.Start(ctx, "reaper.sweep",
		trace.WithAttributes(attribute.String(telemetry.AttrDataset, r.cfg.Hash)))
	defer func() {
		span.SetAttributes(attribute.Int(telemetry.AttrRemoved, removed))
		telemetry.EndSpan(span, err)
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := r.cfg.Now().Unix()
	expiry := int64(r.cfg.Expiry / time.Second)

	n := 0
	cur := r.cfg.Store.Scan(ctx, r.cfg.Hash)
	for cur.Next(ctx) {
		rec, derr := r.decode(cur.Value())
		if derr != nil {
			r.log.Warn("skipping undecodable entry",
				zap.String("hash", r.cfg.Hash), zap.String("field", cur.Field()), zap.Error(derr))
			continue
		}
		if now <= expiry+rec.Timestamp() {
			continue
		}

		r.buf[n] = K(cur.Field())
		n++
		if n == len(r.buf) {
			if err := r.flush(ctx, n); err != nil {
				return removed, err
			}
			removed += n
			n = 0
		}
	}
	if err := cur.Err(); err != nil {
		return removed, &ScanError{Hash: r.cfg.Hash, Err: err}
	}

	if n > 0 {
		if err := r.flush(ctx, n); err != nil {
			return removed, err
		}
		removed += n
	}

	r.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.String("hash", r.cfg.Hash)))
	return removed, nil
}

// flush deletes the first n keys of the buffer and resets them to the zero
// value.
func (r *Reaper[K, R]) flush(ctx context.Context, n int) error {
	batch := r.buf[:n]
	r.fields = r.fields[:0]
	for _, k := range batch {
		r.fields = append(r.fields, string(k))
	}
	clear(batch)

	deleted, err := r.cfg.DeleteStore.BulkDelete(ctx, r.cfg.Hash, r.fields)
	if err != nil {
		return &RemovalError{Hash: r.cfg.Hash, Err: err}
	}
	if deleted != n {
		return &MismatchError{Hash: r.cfg.Hash, Expected: n, Deleted: deleted}
	}

	r.removed.Add(ctx, int64(deleted), metric.WithAttributes(attribute.String("hash", r.cfg.Hash)))
	r.log.Info("fields removed from hash", zap.Int("removed", deleted), zap.String("hash", r.cfg.Hash))
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
