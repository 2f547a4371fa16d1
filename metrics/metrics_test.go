package metrics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"

	"github.com/filecoin-project/go-state-migration/metrics"
)

func TestRecordFailure(t *testing.T) {
	require.NoError(t, view.Register(metrics.MigrationFailuresView))
	defer view.Unregister(metrics.MigrationFailuresView)

	ctx := metrics.WithUpgrade(context.Background(), "nv18")
	metrics.RecordFailure(ctx, "store error")
	metrics.RecordFailure(ctx, "store error")
	metrics.RecordFailure(ctx, "verification failure")

	rows, err := view.RetrieveData(metrics.MigrationFailuresView.Name)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	counts := map[string]int64{}
	for _, row := range rows {
		var kind string
		for _, tg := range row.Tags {
			if tg.Key == metrics.FailureType {
				kind = tg.Value
			}
			if tg.Key == metrics.Upgrade {
				assert.Equal(t, "nv18", tg.Value)
			}
		}
		counts[kind] = row.Data.(*view.CountData).Value
	}
	assert.Equal(t, map[string]int64{"store error": 2, "verification failure": 1}, counts)
}
