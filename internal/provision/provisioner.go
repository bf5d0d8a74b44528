// Package provision applies a collection/index plan to a database so that every
// declared object exists afterwards. Objects that already exist with a matching
// definition are left alone; objects that exist with a different definition are
// reported as conflicts and never modified.
package provision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tordrt/docschema/internal/schema"
)

// Target is an open database handle. It is owned by the caller; Apply does not
// keep it after returning.
//
// Implementations wrap driver errors with the schema sentinels (ErrConnectivity,
// ErrAuthorization, ErrConflict, ErrDataConflict, ErrAlreadyExists).
type Target interface {
	Engine() string
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string) error
	ListIndexes(ctx context.Context, collection string) ([]schema.Index, error)
	CreateIndex(ctx context.Context, collection string, index schema.Index) error
}

// Options configures a Provisioner
type Options struct {
	Logger *zap.Logger
	// DryRun inspects the catalog without creating anything
	DryRun bool
}

// Provisioner applies plans
type Provisioner struct {
	logger *zap.Logger
	dryRun bool
}

// New creates a Provisioner
func New(opts Options) *Provisioner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{logger: logger, dryRun: opts.DryRun}
}

// Apply ensures every collection and index in plan exists on target.
//
// Operations run serially in plan order and stop at the first failure. The
// returned report always lists the objects handled so far, so on error it
// describes the state up to the failing operation.
func (p *Provisioner) Apply(ctx context.Context, target Target, plan *schema.Plan) (*Report, error) {
	report := &Report{Target: target.Engine(), DryRun: p.dryRun}
	if plan != nil {
		report.Database = plan.Database
	}

	if err := plan.Validate(); err != nil {
		return report, newError("validate", "", "", err)
	}

	log := p.logger.With(zap.String("engine", target.Engine()), zap.String("database", plan.Database))

	names, err := target.ListCollections(ctx)
	if err != nil {
		return report, newError("list-collections", "", "", err)
	}

	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}
	// pending holds collections a dry run would create; they have no catalog yet
	pending := make(map[string]bool)

	for _, c := range plan.Collections {
		if err := contextError(ctx); err != nil {
			return report, newError("create-collection", c.Name, "", err)
		}

		if existing[c.Name] {
			log.Debug("collection already present", zap.String("collection", c.Name))
			report.add(Outcome{Kind: ObjectCollection, Collection: c.Name, Status: StatusPresent})
			continue
		}

		if p.dryRun {
			log.Debug("collection would be created", zap.String("collection", c.Name))
			report.add(Outcome{Kind: ObjectCollection, Collection: c.Name, Status: StatusPlanned})
			pending[c.Name] = true
			continue
		}

		status := StatusCreated
		if err := target.CreateCollection(ctx, c.Name); err != nil {
			if !errors.Is(err, schema.ErrAlreadyExists) {
				log.Warn("failed to create collection", zap.String("collection", c.Name), zap.Error(err))
				return report, newError("create-collection", c.Name, "", err)
			}
			status = StatusPresent
		}

		log.Debug("collection ensured", zap.String("collection", c.Name), zap.String("status", string(status)))
		report.add(Outcome{Kind: ObjectCollection, Collection: c.Name, Status: status})
		existing[c.Name] = true
	}

	catalogs := make(map[string][]schema.Index)

	for _, spec := range plan.Indexes {
		desired := spec.Definition()

		if err := contextError(ctx); err != nil {
			return report, newError("create-index", spec.Collection, desired.Name, err)
		}

		catalog, ok := catalogs[spec.Collection]
		if !ok && !pending[spec.Collection] {
			catalog, err = target.ListIndexes(ctx, spec.Collection)
			if err != nil {
				return report, newError("list-indexes", spec.Collection, desired.Name, err)
			}
		}

		match, conflict := resolve(desired, catalog)
		if conflict != nil {
			log.Warn("index conflict",
				zap.String("collection", spec.Collection),
				zap.Stringer("desired", desired),
				zap.Stringer("existing", conflict))
			return report, conflictError(spec.Collection, desired, *conflict)
		}

		if match != nil {
			outcome := Outcome{Kind: ObjectIndex, Collection: spec.Collection, Index: &desired, Status: StatusPresent}
			if match.Name != desired.Name {
				outcome.MatchedAs = match.Name
			}
			log.Debug("index already present", zap.String("collection", spec.Collection), zap.String("index", desired.Name))
			report.add(outcome)
			catalogs[spec.Collection] = catalog
			continue
		}

		if p.dryRun {
			log.Debug("index would be created", zap.String("collection", spec.Collection), zap.String("index", desired.Name))
			report.add(Outcome{Kind: ObjectIndex, Collection: spec.Collection, Index: &desired, Status: StatusPlanned})
			catalogs[spec.Collection] = append(catalog, desired)
			continue
		}

		outcome, err := p.createIndex(ctx, target, spec.Collection, desired)
		if err != nil {
			log.Warn("failed to create index",
				zap.String("collection", spec.Collection),
				zap.String("index", desired.Name),
				zap.Error(err))
			return report, err
		}

		log.Debug("index ensured",
			zap.String("collection", spec.Collection),
			zap.String("index", desired.Name),
			zap.String("status", string(outcome.Status)))
		report.add(outcome)
		catalogs[spec.Collection] = append(catalog, desired)
	}

	log.Info("provisioning finished",
		zap.Int("created", report.Created()),
		zap.Int("present", report.Present()),
		zap.Int("planned", report.Planned()))

	return report, nil
}

// createIndex creates desired and turns driver-side rejections into outcomes or
// structured errors. A rejection as "already exists" or "conflict" means another
// writer got there first, so the catalog is read again to decide.
func (p *Provisioner) createIndex(ctx context.Context, target Target, collection string, desired schema.Index) (Outcome, error) {
	outcome := Outcome{Kind: ObjectIndex, Collection: collection, Index: &desired, Status: StatusCreated}

	err := target.CreateIndex(ctx, collection, desired)
	if err == nil {
		return outcome, nil
	}

	switch {
	case errors.Is(err, schema.ErrDataConflict):
		e := newError("create-index", collection, desired.Name, err)
		e.Kind = KindDataConflict
		e.Desired = &desired
		return outcome, e

	case errors.Is(err, schema.ErrAlreadyExists), errors.Is(err, schema.ErrConflict):
		catalog, listErr := target.ListIndexes(ctx, collection)
		if listErr != nil {
			return outcome, newError("list-indexes", collection, desired.Name, listErr)
		}

		match, conflict := resolve(desired, catalog)
		if match != nil {
			outcome.Status = StatusPresent
			if match.Name != desired.Name {
				outcome.MatchedAs = match.Name
			}
			return outcome, nil
		}
		if conflict != nil {
			e := conflictError(collection, desired, *conflict)
			e.Err = err
			return outcome, e
		}

		e := newError("create-index", collection, desired.Name, err)
		e.Kind = KindConflict
		e.Desired = &desired
		return outcome, e

	default:
		return outcome, newError("create-index", collection, desired.Name, err)
	}
}

// resolve finds the catalog entry that satisfies desired, or the one that
// blocks it. A same-named index decides on its own; otherwise an index over
// the same keys counts, with differing uniqueness being a conflict.
func resolve(desired schema.Index, catalog []schema.Index) (match, conflict *schema.Index) {
	for i := range catalog {
		if catalog[i].Name != desired.Name {
			continue
		}
		if catalog[i].Equivalent(desired) {
			return &catalog[i], nil
		}
		return nil, &catalog[i]
	}

	for i := range catalog {
		if !catalog[i].SameKeys(desired) {
			continue
		}
		if catalog[i].Unique == desired.Unique {
			return &catalog[i], nil
		}
		return nil, &catalog[i]
	}

	return nil, nil
}

// contextError reports an expired deadline as a connectivity failure, the
// same way the backends classify a deadline hit inside a driver call.
func contextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", schema.ErrConnectivity, err)
	}
	return err
}
