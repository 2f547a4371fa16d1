package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Distributions
var migrationMillisecondsDistribution = view.Distribution(
	10, 50, 100, 250, 500, 1000, 2500, 5000, 10_000, 30_000, 60_000, // short migrations of small or cached trees
	2*60_000, 5*60_000, 10*60_000, 20*60_000, 30*60_000, 60*60_000, // full mainnet migrations
)

// Tags
var (
	// Network version being upgraded to.
	Upgrade, _ = tag.NewKey("upgrade")
	// Kind of migration failure.
	FailureType, _ = tag.NewKey("failure_type")
)

// Measures
var (
	ActorsMigrated    = stats.Int64("migration/actors", "Number of actors migrated", stats.UnitDimensionless)
	MigrationDuration = stats.Float64("migration/duration_ms", "Duration of a state migration", stats.UnitMilliseconds)
	MigrationFailures = stats.Int64("migration/failure", "Counter for failed state migrations", stats.UnitDimensionless)
	PreMigrations     = stats.Int64("migration/pre_migration", "Counter for pre-migrations run ahead of an upgrade", stats.UnitDimensionless)
)

var (
	ActorsMigratedView = &view.View{
		Measure:     ActorsMigrated,
		Aggregation: view.Sum(),
		TagKeys:     []tag.Key{Upgrade},
	}
	MigrationDurationView = &view.View{
		Measure:     MigrationDuration,
		Aggregation: migrationMillisecondsDistribution,
		TagKeys:     []tag.Key{Upgrade},
	}
	MigrationFailuresView = &view.View{
		Measure:     MigrationFailures,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Upgrade, FailureType},
	}
	PreMigrationsView = &view.View{
		Measure:     PreMigrations,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Upgrade},
	}
)

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = []*view.View{
	ActorsMigratedView,
	MigrationDurationView,
	MigrationFailuresView,
	PreMigrationsView,
}

// Tags the context with the upgrade being run.
func WithUpgrade(ctx context.Context, name string) context.Context {
	ctx, _ = tag.New(ctx, tag.Upsert(Upgrade, name))
	return ctx
}

// Counts a failed migration, tagged with the kind of failure.
func RecordFailure(ctx context.Context, failureType string) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(FailureType, failureType)}, MigrationFailures.M(1))
}

func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Milliseconds())
}
