package inspect

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/04d4/spinta/internal/core"
	"github.com/04d4/spinta/internal/endpoint"
	"github.com/04d4/spinta/internal/manifest"
)

// connectAttempts is the first attempt plus one retry.
const connectAttempts = 2

// resourceRun inspects one target.
type resourceRun struct {
	*Inspector
	target   Target
	report   *ResourceReport
	manifest *manifest.Manifest
	log      logrus.FieldLogger

	// Set by reserve.
	src        *endpoint.Source
	desc       *endpoint.Descriptor
	factory    endpoint.Factory
	resolveErr error

	// callCtx outlives the run context by the grace period.
	callCtx context.Context
	aborted int // entity calls cut off by cancellation
	skipped int // entities dispatched but not started before cancellation
}

// entityResult is what one entity inspection hands to the sequencer.
type entityResult struct {
	entity  *endpoint.Entity
	model   *manifest.Model
	diags   core.Diagnostics
	err     error
	skipped bool
}

func (r *resourceRun) path() manifest.Path { return r.target.path() }

func (r *resourceRun) diag(d ...core.Diagnostic) {
	r.report.Diagnostics = append(r.report.Diagnostics, d...)
}

func (r *resourceRun) run(ctx context.Context) {
	callCtx, release := graceContext(ctx, r.opts.GracePeriod)
	defer release()
	r.callCtx = callCtx

	if ctx.Err() != nil {
		r.cancelled("inspection cancelled before start")
		return
	}

	r.report.transition(StateConnecting)
	conn, err := r.connector()
	if err != nil {
		r.failConnect(ctx, err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			r.log.WithError(err).Warn("Closing connector failed")
		}
	}()
	r.report.Backend = conn.Kind()

	if err := r.connect(ctx, conn); err != nil {
		r.failConnect(ctx, err)
		return
	}

	r.report.transition(StateEnumerate)
	entities, complete, err := r.enumerate(conn)
	if err != nil {
		if ctx.Err() != nil {
			r.cancelled("inspection cancelled during enumeration")
			return
		}
		r.diag(core.FromError(core.KindEntityInspection, r.path().String(), err))
		r.report.fail(err)
		return
	}
	r.report.Entities = len(entities)

	r.report.transition(StateInspecting)
	dispatched := r.inspectEntities(ctx, conn, entities)

	if dispatched < len(entities) || r.aborted > 0 || r.skipped > 0 {
		r.cancelled(fmt.Sprintf("inspection cancelled after %d of %d entities", r.report.Inspected, len(entities)))
		return
	}
	if n := len(entities); n > 0 && float64(r.report.Failed)/float64(n) >= r.opts.FailureThreshold {
		r.report.fail(core.Wrap(core.KindEntityInspection, false,
			fmt.Errorf("%d of %d entities failed", r.report.Failed, n)))
		r.log.WithField("failed", r.report.Failed).Warn("Resource failed: entity failure threshold reached")
		return
	}

	r.report.transition(StateMerging)
	if complete {
		seen := make(map[string]bool, len(entities))
		for _, e := range entities {
			seen[e.ModelName()] = true
		}
		err = r.manifest.Update(r.target.Dataset, func(d *manifest.Dataset) error {
			r.diag(d.MarkStaleModels(r.target.Resource, seen)...)
			return nil
		})
		if err != nil {
			r.report.fail(err)
			return
		}
	}
	r.report.transition(StateDone)
	r.log.WithFields(logrus.Fields{
		"entities": r.report.Entities,
		"failed":   r.report.Failed,
	}).Info("Resource inspected")
}

// reserve resolves the target's descriptor and records the resource in the
// manifest. A target that does not resolve fails later, while connecting.
func (r *resourceRun) reserve() {
	src, err := endpoint.ParseSource(r.target.Source, r.target.Options)
	if err != nil {
		r.resolveErr = core.Wrap(core.KindConnection, false, err)
		return
	}
	desc, factory, err := r.opts.Registry.Resolve(src)
	if err != nil {
		r.resolveErr = core.Wrap(core.KindConnection, false, err)
		return
	}
	_, err = r.manifest.AddResource(r.target.Dataset,
		manifest.NewResource(r.target.Resource, desc.Kind, src.Redacted()))
	if err != nil {
		r.resolveErr = err
		return
	}
	r.src, r.desc, r.factory = src, desc, factory
}

// connector creates the unconnected connector of a reserved target.
func (r *resourceRun) connector() (endpoint.Connector, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	conn, err := r.factory(r.src)
	if err != nil {
		return nil, core.Wrap(core.KindConnection, false, fmt.Errorf("%s: %w", r.desc.ID, err))
	}
	r.log.WithField("connector", r.desc.ID).Debug("Connector selected")

	_, err = r.manifest.AddResource(r.target.Dataset,
		manifest.NewResource(r.target.Resource, conn.Kind(), r.src.Redacted()))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// connect attempts to connect at most twice. Errors classified as not
// retryable are returned at once.
func (r *resourceRun) connect(ctx context.Context, conn endpoint.Connector) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.ConnectBackoff
	b.MaxInterval = r.opts.ConnectBackoff * 4

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		cctx, cancel := context.WithTimeout(r.callCtx, r.opts.ConnectTimeout)
		defer cancel()
		err := conn.Connect(cctx)
		if err != nil && permanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.WithError(err).WithField("retry_in", next).Warn("Connect failed, retrying")
		}),
	)
	return err
}

// permanent reports errors a connector marked as not worth retrying.
func permanent(err error) bool {
	var e *core.Error
	return errors.As(err, &e) && !e.Retryable
}

func (r *resourceRun) failConnect(ctx context.Context, err error) {
	if ctx.Err() != nil {
		r.cancelled("inspection cancelled while connecting")
		return
	}
	r.log.WithError(err).Error("Connect failed")
	r.diag(core.FromError(core.KindConnection, r.path().String(), err))
	r.report.fail(err)
}

// enumerate lists all entities. complete is false when the iterator failed
// part-way; the entities read so far are still returned.
func (r *resourceRun) enumerate(conn endpoint.Connector) (entities []*endpoint.Entity, complete bool, err error) {
	ctx, cancel := context.WithTimeout(r.callCtx, r.opts.CallTimeout)
	defer cancel()

	it, err := conn.ListEntities(ctx)
	if err != nil {
		return nil, false, err
	}
	defer it.Close()
	for it.Next() {
		entities = append(entities, it.Value())
	}
	if err := it.Err(); err != nil {
		if len(entities) == 0 {
			return nil, false, err
		}
		r.diag(core.FromError(core.KindEntityInspection, r.path().String(),
			fmt.Errorf("enumeration stopped after %d entities: %w", len(entities), err)))
		return entities, false, nil
	}
	return entities, true, nil
}

// inspectEntities lists fields of every entity on a bounded pool and merges
// results in enumeration order. It returns how many entities were
// dispatched before cancellation. Calls still running once callCtx is done
// are abandoned and their results dropped.
func (r *resourceRun) inspectEntities(ctx context.Context, conn endpoint.Connector, entities []*endpoint.Entity) int {
	conv := &converter{types: r.opts.Types, kind: conn.Kind()}
	seq := newSequencer(r.merge)
	started := make([]atomic.Bool, len(entities))
	var dispatched atomic.Int64

	done := make(chan struct{})
	go func() {
		defer close(done)
		p := pool.New().WithMaxGoroutines(r.opts.Workers)
		for i, entity := range entities {
			if ctx.Err() != nil {
				break
			}
			dispatched.Add(1)
			p.Go(func() {
				if ctx.Err() != nil {
					seq.submit(i, &entityResult{entity: entity, skipped: true})
					return
				}
				started[i].Store(true)
				seq.submit(i, r.inspectEntity(conn, conv, entity))
			})
		}
		p.Wait()
	}()

	select {
	case <-done:
		return int(dispatched.Load())
	case <-r.callCtx.Done():
	}

	released := seq.stop()
	n := int(dispatched.Load())
	for i := released; i < n; i++ {
		if !started[i].Load() {
			r.skipped++
			continue
		}
		path := r.path()
		path.Model = entities[i].ModelName()
		r.report.Failed++
		r.aborted++
		r.diag(core.Errorf(core.KindCancellation, path.String(), "call abandoned after grace period"))
	}
	r.log.WithField("released", released).Warn("Abandoned entity calls after grace period")
	return n
}

func (r *resourceRun) inspectEntity(conn endpoint.Connector, conv *converter, entity *endpoint.Entity) *entityResult {
	ctx, cancel := context.WithTimeout(r.callCtx, r.opts.CallTimeout)
	defer cancel()

	res := &entityResult{entity: entity}
	fields, err := conn.ListFields(ctx, entity)
	if err != nil {
		res.err = err
		return res
	}
	base := r.path()
	res.model, res.diags = conv.model(base, entity, fields)
	return res
}

// merge runs on the sequencer, in enumeration order.
func (r *resourceRun) merge(res *entityResult) {
	path := r.path()
	path.Model = res.entity.ModelName()
	log := r.log.WithField("entity", res.entity.QualifiedName())

	if res.skipped {
		r.skipped++
		return
	}
	if res.err != nil {
		r.report.Failed++
		kind := core.KindEntityInspection
		if r.callCtx.Err() != nil {
			kind = core.KindCancellation
			r.aborted++
		}
		r.diag(core.FromError(kind, path.String(), res.err))
		log.WithError(res.err).Warn("Entity inspection failed")
		return
	}

	r.diag(res.diags...)
	_, diags, err := r.manifest.AddOrUpdateModel(path, res.model)
	if err != nil {
		r.report.Failed++
		r.diag(core.FromError(core.KindEntityInspection, path.String(), err))
		return
	}
	r.diag(diags...)
	r.report.Inspected++
	log.WithField("properties", res.model.Properties.Len()).Debug("Entity merged")
}

func (r *resourceRun) cancelled(msg string) {
	r.report.Cancelled = true
	r.diag(core.Errorf(core.KindCancellation, r.path().String(), "%s", msg))
	r.log.Warn(msg)
	r.report.fail(core.Wrap(core.KindCancellation, false, errors.New(msg)))
}

// graceContext returns a context that is cancelled grace after ctx is, or
// when release is called.
func graceContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-callCtx.Done():
		}
	})
	return callCtx, func() {
		stop()
		cancel()
	}
}
