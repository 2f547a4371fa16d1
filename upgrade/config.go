package upgrade

import (
	"context"
	"encoding"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	ipldcbor "github.com/ipfs/go-ipld-cbor"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin/manifest"
	"github.com/filecoin-project/go-state-migration/actors/migration"
	"github.com/filecoin-project/go-state-migration/actors/util/adt"
	"github.com/filecoin-project/go-state-migration/support/bundle"
)

// Prefix of the environment variables overriding the config file, e.g. MIGRATION_MAX_WORKERS.
const EnvPrefix = "MIGRATION"

// Config for running the actors v10 upgrade on a node.
type Config struct {
	// Epoch of the upgrade. Negative disables it.
	UpgradeHeight abi.ChainEpoch `toml:"upgrade_height" envconfig:"UPGRADE_HEIGHT"`
	// CAR file of the actors v10 bundle, loaded into the block store before the upgrade.
	BundlePath string `toml:"bundle_path" envconfig:"BUNDLE_PATH"`
	// CID of an actors v10 manifest already in the block store. Used when no bundle path is set.
	ManifestCID string `toml:"manifest_cid" envconfig:"MANIFEST_CID"`

	MaxWorkers        uint     `toml:"max_workers" envconfig:"MAX_WORKERS"`
	JobQueueSize      uint     `toml:"job_queue_size" envconfig:"JOB_QUEUE_SIZE"`
	ResultQueueSize   uint     `toml:"result_queue_size" envconfig:"RESULT_QUEUE_SIZE"`
	ProgressLogPeriod Duration `toml:"progress_log_period" envconfig:"PROGRESS_LOG_PERIOD"`
	// Workers for pre-migrations, which run alongside normal chain processing.
	PreMigrationWorkers uint `toml:"pre_migration_workers" envconfig:"PRE_MIGRATION_WORKERS"`
}

func DefaultConfig() *Config {
	workers := uint(runtime.NumCPU())
	// Pre-migration gets half the CPUs, or a single worker on machines with 4 or fewer.
	preWorkers := workers / 2
	if workers <= 4 {
		preWorkers = 1
	}
	return &Config{
		UpgradeHeight:       -1,
		MaxWorkers:          workers,
		JobQueueSize:        1000,
		ResultQueueSize:     100,
		ProgressLogPeriod:   Duration(2 * time.Minute),
		PreMigrationWorkers: preWorkers,
	}
}

// Reads the config from a TOML file over the defaults, then applies environment overrides.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, xerrors.Errorf("decoding config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, xerrors.Errorf("unknown config keys in %s: %v", path, undecoded)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, xerrors.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxWorkers == 0 {
		return xerrors.Errorf("max workers must be positive")
	}
	if c.PreMigrationWorkers == 0 {
		return xerrors.Errorf("pre-migration workers must be positive")
	}
	if c.UpgradeHeight >= 0 && c.BundlePath == "" && c.ManifestCID == "" {
		return xerrors.Errorf("upgrade at height %d needs a bundle path or manifest CID", c.UpgradeHeight)
	}
	if c.ManifestCID != "" {
		if _, err := cid.Decode(c.ManifestCID); err != nil {
			return xerrors.Errorf("invalid manifest CID %q: %w", c.ManifestCID, err)
		}
	}
	return nil
}

// Engine config for the upgrade itself.
func (c *Config) MigrationConfig() migration.Config {
	return migration.Config{
		MaxWorkers:        c.MaxWorkers,
		JobQueueSize:      c.JobQueueSize,
		ResultQueueSize:   c.ResultQueueSize,
		ProgressLogPeriod: time.Duration(c.ProgressLogPeriod),
	}
}

// Engine config for pre-migrations.
func (c *Config) PreMigrationConfig() migration.Config {
	cfg := c.MigrationConfig()
	cfg.MaxWorkers = c.PreMigrationWorkers
	return cfg
}

// Returns the CID of the actors v10 manifest, loading the bundle into the block store if one is configured.
// Either way the manifest must be well formed and present in the store.
func (c *Config) ResolveManifest(ctx context.Context, bs ipldcbor.IpldBlockstore) (cid.Cid, error) {
	if c.BundlePath != "" {
		mfCid, _, err := bundle.LoadBundleFile(ctx, bs, c.BundlePath)
		if err != nil {
			return cid.Undef, err
		}
		return mfCid, nil
	}
	if c.ManifestCID == "" {
		return cid.Undef, xerrors.Errorf("no bundle path or manifest CID configured")
	}
	mfCid, err := cid.Decode(c.ManifestCID)
	if err != nil {
		return cid.Undef, xerrors.Errorf("invalid manifest CID %q: %w", c.ManifestCID, err)
	}
	if _, err := manifest.LoadManifest(ctx, adt.WrapBlockStore(ctx, bs), mfCid); err != nil {
		return cid.Undef, err
	}
	return mfCid, nil
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML and the environment
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
