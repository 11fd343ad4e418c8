package storage

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
)

// Fallback composes a primary store with a local mirror. Reads prefer the
// primary and fall back to the mirror; writes go to both and fail only when
// both do. Callers cannot tell which path served them.
type Fallback struct {
	primary Store
	mirror  Store
	log     *logrus.Logger
	tracer  trace.Tracer

	degraded   atomic.Int64
	mirrorOnly atomic.Int64
}

// NewFallback builds the decorator. primary may be nil, in which case every
// call is served by the mirror and transactions are unavailable.
func NewFallback(primary, mirror Store, log *logrus.Logger) *Fallback {
	return &Fallback{
		primary: primary,
		mirror:  mirror,
		log:     log,
		tracer:  otel.Tracer("storage"),
	}
}

// Primary returns the primary store, or nil when none is configured.
// Operations with no fallback path, such as review tokens, use it directly.
func (f *Fallback) Primary() Store { return f.primary }

// Degradations counts calls that could not be served by the primary.
func (f *Fallback) Degradations() int64 { return f.degraded.Load() }

// MirrorOnlyReads counts reads the primary reported missing that the mirror
// then served.
func (f *Fallback) MirrorOnlyReads() int64 { return f.mirrorOnly.Load() }

// Mode names the active persistence path for health reporting.
func (f *Fallback) Mode() string {
	if f.primary == nil {
		return "mirror"
	}
	return "primary+mirror"
}

// Ping reports primary connectivity. A missing primary is not an error.
func (f *Fallback) Ping(ctx context.Context) error {
	if p, ok := f.primary.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (f *Fallback) start(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return f.tracer.Start(ctx, "storage."+op, trace.WithAttributes(attribute.String("collection", collection)))
}

func (f *Fallback) degrade(span trace.Span, op, collection string, err error) {
	f.degraded.Add(1)
	span.SetAttributes(attribute.Bool("fallback", true))
	span.RecordError(err)
	f.log.WithFields(logrus.Fields{
		"op":         op,
		"collection": collection,
		"error_kind": string(apperr.KindOf(err)),
	}).WithError(err).Warn("primary store failed, using local mirror")
}

func (f *Fallback) Get(ctx context.Context, collection, id string, out any) error {
	ctx, span := f.start(ctx, "get", collection)
	defer span.End()

	if f.primary != nil {
		err := f.primary.Get(ctx, collection, id, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			f.degrade(span, "get", collection, err)
			return f.mirror.Get(ctx, collection, id, out)
		}
		// A document written while the primary was down only exists in the
		// mirror, so a primary miss still consults it.
		if merr := f.mirror.Get(ctx, collection, id, out); merr != nil {
			return merr
		}
		f.mirrorOnly.Add(1)
		span.SetAttributes(attribute.Bool("mirror_only", true))
		f.log.WithFields(logrus.Fields{
			"op":         "get",
			"collection": collection,
			"id":         id,
			"error_kind": string(apperr.KindOf(err)),
		}).Debug("primary has no such document, served from local mirror")
		return nil
	}
	return f.mirror.Get(ctx, collection, id, out)
}

func (f *Fallback) List(ctx context.Context, collection string, filter Filter, out any) error {
	ctx, span := f.start(ctx, "list", collection)
	defer span.End()

	if f.primary != nil {
		err := f.primary.List(ctx, collection, filter, out)
		if err == nil {
			return nil
		}
		f.degrade(span, "list", collection, err)
	}
	return f.mirror.List(ctx, collection, filter, out)
}

// write applies op to the primary and then to the mirror.
func (f *Fallback) write(ctx context.Context, name, collection string, op func(Store) error) error {
	ctx, span := f.start(ctx, name, collection)
	defer span.End()

	var perr error
	if f.primary != nil {
		if perr = op(f.primary); perr != nil && !errors.Is(perr, apperr.ErrNotFound) {
			f.degrade(span, name, collection, perr)
		}
	}
	merr := op(f.mirror)
	if merr != nil && f.primary != nil && perr == nil {
		if errors.Is(merr, apperr.ErrNotFound) {
			return nil
		}
		f.log.WithFields(logrus.Fields{"op": name, "collection": collection}).
			WithError(merr).Warn("local mirror write failed")
		return nil
	}
	if f.primary == nil {
		return merr
	}
	if perr != nil && merr != nil {
		span.SetStatus(codes.Error, perr.Error())
		return perr
	}
	return nil
}

func (f *Fallback) Put(ctx context.Context, collection, id string, doc any) error {
	return f.write(ctx, "put", collection, func(s Store) error { return s.Put(ctx, collection, id, doc) })
}

func (f *Fallback) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	return f.write(ctx, "merge", collection, func(s Store) error { return s.Merge(ctx, collection, id, fields) })
}

// Delete succeeds when either side removed the document and reports
// NotFound only when neither had it.
func (f *Fallback) Delete(ctx context.Context, collection, id string) error {
	return f.write(ctx, "delete", collection, func(s Store) error { return s.Delete(ctx, collection, id) })
}

// RunTransaction runs fn on the primary only. Committed writes are then
// replayed onto the mirror so fallback reads see them.
func (f *Fallback) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := f.start(ctx, "transaction", "")
	defer span.End()

	txr, ok := f.primary.(Transactor)
	if !ok {
		return apperr.New(apperr.KindStorageUnavailable, "transactions require the primary store")
	}
	var rec *recordingTx
	err := txr.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		rec = &recordingTx{tx: tx}
		return fn(ctx, rec)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	for _, w := range rec.writes {
		if werr := w(ctx, f.mirror); werr != nil {
			f.log.WithError(werr).Warn("local mirror replay failed")
		}
	}
	return nil
}

// recordingTx remembers writes so they can be replayed after commit. The
// transactor may invoke fn again on conflict; each attempt gets a fresh
// recorder.
type recordingTx struct {
	tx     Tx
	writes []func(context.Context, Store) error
}

func (r *recordingTx) Get(ctx context.Context, collection, id string, out any) error {
	return r.tx.Get(ctx, collection, id, out)
}

func (r *recordingTx) Put(ctx context.Context, collection, id string, doc any) error {
	if err := r.tx.Put(ctx, collection, id, doc); err != nil {
		return err
	}
	r.writes = append(r.writes, func(ctx context.Context, s Store) error { return s.Put(ctx, collection, id, doc) })
	return nil
}

func (r *recordingTx) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := r.tx.Merge(ctx, collection, id, fields); err != nil {
		return err
	}
	r.writes = append(r.writes, func(ctx context.Context, s Store) error { return s.Merge(ctx, collection, id, fields) })
	return nil
}
