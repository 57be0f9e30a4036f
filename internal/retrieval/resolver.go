package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docvault/internal/storage"
)

// Strategy names one way of getting blob bytes out of the remote store.
type Strategy string

const (
	StrategyDirect        Strategy = "direct"
	StrategyTemporaryLink Strategy = "temporary_link"
	StrategySharedLink    Strategy = "shared_link"
)

// ErrConnectivity is returned when the pre-flight probe fails; no strategy was attempted.
var ErrConnectivity = errors.New("blob store unreachable")

// Scheduler runs best-effort follow-up work such as share link revocation.
type Scheduler interface {
	Go(ctx context.Context, name string, fn func(context.Context) error)
}

// Resolver fetches blob bytes by trying strategies in order. Only recoverable
// failures move on to the next strategy; terminal ones (not found, auth,
// rate limit) return immediately. No strategy is attempted twice.
type Resolver struct {
	store   storage.BlobStore
	fetcher storage.Fetcher
	tasks   Scheduler
	log     zerolog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	timeout time.Duration
}

// Options configures a Resolver. Metrics may be nil.
type Options struct {
	AttemptTimeout time.Duration
	Metrics        *Metrics
	Logger         zerolog.Logger
}

// NewResolver wires a resolver over an injected store and link fetcher.
func NewResolver(store storage.BlobStore, fetcher storage.Fetcher, tasks Scheduler, opt Options) *Resolver {
	timeout := opt.AttemptTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		tasks:   tasks,
		log:     opt.Logger,
		metrics: opt.Metrics,
		tracer:  otel.Tracer("docvault/retrieval"),
		timeout: timeout,
	}
}

type attempt struct {
	name Strategy
	run  func(ctx context.Context, path string) ([]byte, error)
}

func (r *Resolver) strategies() []attempt {
	return []attempt{
		{StrategyDirect, r.direct},
		{StrategyTemporaryLink, r.temporaryLink},
		{StrategySharedLink, r.sharedLink},
	}
}

// Fetch returns the full content at path and the strategy that produced it.
func (r *Resolver) Fetch(ctx context.Context, path string) ([]byte, Strategy, error) {
	ctx, span := r.tracer.Start(ctx, "retrieval.fetch", trace.WithAttributes(attribute.String("blob.path", path)))
	defer span.End()

	if err := r.probe(ctx); err != nil {
		span.SetStatus(codes.Error, "probe failed")
		r.log.Error().Err(err).Str("blob_path", path).Msg("blob store connectivity probe failed")
		return nil, "", fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	var lastErr error
	for _, a := range r.strategies() {
		data, err := r.try(ctx, a, path)
		if err == nil {
			span.SetAttributes(attribute.String("retrieval.strategy", string(a.name)))
			return data, a.name, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, "abandoned")
			return nil, "", fmt.Errorf("retrieval abandoned after %s: %w", a.name, ctxErr)
		}
		if !storage.IsRecoverable(err) {
			span.SetStatus(codes.Error, string(storage.KindOf(err)))
			return nil, "", err
		}
		r.log.Warn().Err(err).Str("blob_path", path).Str("strategy", string(a.name)).Msg("retrieval strategy failed, falling back")
	}

	span.SetStatus(codes.Error, "strategies exhausted")
	return nil, "", lastErr
}

func (r *Resolver) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return normalize("probe", "", r.store.Probe(ctx))
}

func (r *Resolver) try(ctx context.Context, a attempt, path string) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, "retrieval.attempt", trace.WithAttributes(attribute.String("retrieval.strategy", string(a.name))))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	data, err := a.run(ctx, path)
	err = normalize(string(a.name), path, err)

	outcome := "success"
	if err != nil {
		outcome = string(storage.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	r.metrics.observe(a.name, outcome, time.Since(start))

	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (r *Resolver) direct(ctx context.Context, path string) ([]byte, error) {
	return r.store.Get(ctx, path)
}

func (r *Resolver) temporaryLink(ctx context.Context, path string) ([]byte, error) {
	link, err := r.store.TemporaryLink(ctx, path)
	if err != nil {
		return nil, err
	}
	return r.fetcher.Fetch(ctx, link)
}

func (r *Resolver) sharedLink(ctx context.Context, path string) ([]byte, error) {
	link, err := r.store.CreateShareLink(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.tasks.Go(ctx, "revoke_share_link", func(taskCtx context.Context) error {
		if err := r.store.RevokeShareLink(taskCtx, link); err != nil {
			return fmt.Errorf("revoke share link for %s: %w", path, err)
		}
		return nil
	})
	return r.fetcher.Fetch(ctx, link)
}

// normalize guarantees every failure leaving a strategy is a classified storage error.
func normalize(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *storage.Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return storage.NewError(op, path, storage.KindTransient, err)
	}
	return storage.NewError(op, path, storage.KindUnknown, err)
}
