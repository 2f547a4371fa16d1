package upgrade_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
	"github.com/filecoin-project/go-state-migration/support/bundle"
	"github.com/filecoin-project/go-state-migration/support/genesis"
	"github.com/filecoin-project/go-state-migration/support/ipld"
	"github.com/filecoin-project/go-state-migration/upgrade"
)

func writeConfig(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestDefaultPreMigrationWorkers(t *testing.T) {
	cpus := uint(runtime.NumCPU())
	expected := cpus / 2
	if cpus <= 4 {
		expected = 1
	}
	cfg := upgrade.DefaultConfig()
	assert.Equal(t, cpus, cfg.MaxWorkers)
	assert.Equal(t, expected, cfg.PreMigrationWorkers)
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := upgrade.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, abi.ChainEpoch(-1), cfg.UpgradeHeight)
		assert.Positive(t, cfg.MaxWorkers)
		assert.Positive(t, cfg.PreMigrationWorkers)
		assert.Equal(t, 2*time.Minute, time.Duration(cfg.ProgressLogPeriod))
	})

	t.Run("file", func(t *testing.T) {
		path := writeConfig(t, `
upgrade_height = 2683348
manifest_cid = "bafkqaddgnfwc6ojpon4xg5dfnu"
max_workers = 6
job_queue_size = 50
result_queue_size = 5
progress_log_period = "30s"
pre_migration_workers = 2
`)
		cfg, err := upgrade.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, abi.ChainEpoch(2683348), cfg.UpgradeHeight)
		assert.Equal(t, uint(6), cfg.MaxWorkers)

		mcfg := cfg.MigrationConfig()
		assert.Equal(t, uint(6), mcfg.MaxWorkers)
		assert.Equal(t, uint(50), mcfg.JobQueueSize)
		assert.Equal(t, uint(5), mcfg.ResultQueueSize)
		assert.Equal(t, 30*time.Second, mcfg.ProgressLogPeriod)
		assert.Equal(t, uint(2), cfg.PreMigrationConfig().MaxWorkers)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "max_workers = 6\n")
		t.Setenv("MIGRATION_MAX_WORKERS", "3")
		t.Setenv("MIGRATION_PROGRESS_LOG_PERIOD", "1m")
		cfg, err := upgrade.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, uint(3), cfg.MaxWorkers)
		assert.Equal(t, time.Minute, time.Duration(cfg.ProgressLogPeriod))
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := upgrade.LoadConfig(writeConfig(t, "max_wrokers = 6\n"))
		require.Error(t, err)
	})

	t.Run("upgrade without manifest", func(t *testing.T) {
		_, err := upgrade.LoadConfig(writeConfig(t, "upgrade_height = 10\n"))
		require.Error(t, err)
	})

	t.Run("bad manifest cid", func(t *testing.T) {
		_, err := upgrade.LoadConfig(writeConfig(t, "upgrade_height = 10\nmanifest_cid = \"nope\"\n"))
		require.Error(t, err)
	})

	t.Run("zero workers", func(t *testing.T) {
		_, err := upgrade.LoadConfig(writeConfig(t, "max_workers = 0\n"))
		require.Error(t, err)
	})
}

func TestResolveManifest(t *testing.T) {
	ctx := context.Background()
	src := ipld.NewBlockStoreInMemory()
	mf, mfCid := genesis.MakeManifest(t, adt.WrapBlockStore(ctx, src), 10, builtin.BuiltinActorNamesV10)

	t.Run("from bundle", func(t *testing.T) {
		var blocks = mustBlocks(t, src, mfCid, mf.Data)
		path := filepath.Join(t.TempDir(), "bundle.car")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, bundle.WriteBundle(f, mfCid, blocks))
		require.NoError(t, f.Close())

		bs := ipld.NewBlockStoreInMemory()
		cfg := upgrade.DefaultConfig()
		cfg.BundlePath = path
		got, err := cfg.ResolveManifest(ctx, bs)
		require.NoError(t, err)
		assert.Equal(t, mfCid, got)
		assert.True(t, bs.Has(mf.Data))
	})

	t.Run("from cid", func(t *testing.T) {
		cfg := upgrade.DefaultConfig()
		cfg.ManifestCID = mfCid.String()
		got, err := cfg.ResolveManifest(ctx, src)
		require.NoError(t, err)
		assert.Equal(t, mfCid, got)

		// Not in the store.
		_, err = cfg.ResolveManifest(ctx, ipld.NewBlockStoreInMemory())
		require.Error(t, err)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := upgrade.DefaultConfig().ResolveManifest(ctx, src)
		require.Error(t, err)
	})
}
