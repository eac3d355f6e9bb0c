package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/placeset/pkg/adapter"
	"github.com/m-mizutani/placeset/pkg/filter"
	"github.com/m-mizutani/placeset/pkg/query"
	"github.com/m-mizutani/placeset/pkg/repository"
	"github.com/m-mizutani/placeset/pkg/usecase/dataset"
	"github.com/m-mizutani/placeset/pkg/usecase/plan"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
)

// config holds configuration values
type config struct {
	// Repository
	backend         string
	badgerPath      string
	project         string
	database        string
	bucket          string
	credentialsFile string
	cacheSize       int64
	cacheTTL        time.Duration

	// Provider
	apiKey           string
	baseURL          string
	legacyURL        string
	proFields        string
	enterpriseFields string
	idsOnlyFields    string
	detailsFields    string

	// Acquisition
	minDelay      time.Duration
	backoffBase   time.Duration
	attempts      int64
	sentinelCount int64
	maxIterations int64
	threshold     int64
	poolSize      int64
	depth         int64
	popularity    string
	policyDir     string
}

// repositoryFlags returns flags of the persistence backend with destination
// config
func repositoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Repository backend (memory, badger, firestore)",
			Value:       "badger",
			Sources:     cli.EnvVars("PLACESET_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "badger-path",
			Usage:       "Directory of the badger database",
			Value:       ".placeset",
			Sources:     cli.EnvVars("PLACESET_BADGER_PATH"),
			Destination: &cfg.badgerPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for dataset payloads (firestore backend)",
			Sources:     cli.EnvVars("PLACESET_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "credentials",
			Usage:       "Google Cloud credentials file",
			Sources:     cli.EnvVars("GOOGLE_APPLICATION_CREDENTIALS"),
			Destination: &cfg.credentialsFile,
		},
		&cli.IntFlag{
			Name:        "cache-size",
			Usage:       "In-process cache size in bytes, 0 disables it",
			Value:       64 << 20,
			Sources:     cli.EnvVars("PLACESET_CACHE_SIZE"),
			Destination: &cfg.cacheSize,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "In-process cache entry lifetime",
			Value:       10 * time.Minute,
			Sources:     cli.EnvVars("PLACESET_CACHE_TTL"),
			Destination: &cfg.cacheTTL,
		},
	}
}

// providerFlags returns flags of the places provider with destination config
func providerFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "Places API key",
			Sources:     cli.EnvVars("PLACESET_API_KEY"),
			Destination: &cfg.apiKey,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Places API base URL",
			Value:       adapter.DefaultPlacesBaseURL,
			Sources:     cli.EnvVars("PLACESET_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.StringFlag{
			Name:        "legacy-url",
			Usage:       "Legacy nearby search URL",
			Value:       adapter.DefaultLegacyURL,
			Sources:     cli.EnvVars("PLACESET_LEGACY_URL"),
			Destination: &cfg.legacyURL,
		},
		&cli.StringFlag{
			Name:        "pro-fields",
			Usage:       "Field mask of regular searches",
			Sources:     cli.EnvVars("PLACESET_PRO_FIELDS"),
			Destination: &cfg.proFields,
		},
		&cli.StringFlag{
			Name:        "enterprise-fields",
			Usage:       "Field mask of searches with rating information",
			Sources:     cli.EnvVars("PLACESET_ENTERPRISE_FIELDS"),
			Destination: &cfg.enterpriseFields,
		},
		&cli.StringFlag{
			Name:        "ids-only-fields",
			Usage:       "Field mask of identifier and location only text searches",
			Sources:     cli.EnvVars("PLACESET_IDS_ONLY_FIELDS"),
			Destination: &cfg.idsOnlyFields,
		},
		&cli.StringFlag{
			Name:        "details-fields",
			Usage:       "Field mask of place details lookups",
			Sources:     cli.EnvVars("PLACESET_DETAILS_FIELDS"),
			Destination: &cfg.detailsFields,
		},
	}
}

// acquisitionFlags returns flags of the acquisition tuning with destination
// config
func acquisitionFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "min-delay",
			Usage:       "Pause before every provider call",
			Value:       dataset.DefaultMinDelay,
			Sources:     cli.EnvVars("PLACESET_MIN_DELAY"),
			Destination: &cfg.minDelay,
		},
		&cli.DurationFlag{
			Name:        "backoff-base",
			Usage:       "Base of the exponential retry backoff",
			Value:       dataset.DefaultBackoffBase,
			Sources:     cli.EnvVars("PLACESET_BACKOFF_BASE"),
			Destination: &cfg.backoffBase,
		},
		&cli.IntFlag{
			Name:        "attempts",
			Usage:       "Attempts per call protocol",
			Value:       dataset.DefaultAttempts,
			Sources:     cli.EnvVars("PLACESET_ATTEMPTS"),
			Destination: &cfg.attempts,
		},
		&cli.IntFlag{
			Name:        "sentinel-count",
			Usage:       "Placeholder records produced by an exhausted call",
			Value:       dataset.DefaultSentinelCount,
			Sources:     cli.EnvVars("PLACESET_SENTINEL_COUNT"),
			Destination: &cfg.sentinelCount,
		},
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "Maximum coverage loop iterations per request",
			Value:       dataset.DefaultMaxIterations,
			Sources:     cli.EnvVars("PLACESET_MAX_ITERATIONS"),
			Destination: &cfg.maxIterations,
		},
		&cli.IntFlag{
			Name:        "threshold",
			Usage:       "Feature count below which a plan step is exhausted",
			Value:       dataset.DefaultThreshold,
			Sources:     cli.EnvVars("PLACESET_THRESHOLD"),
			Destination: &cfg.threshold,
		},
		&cli.IntFlag{
			Name:        "pool-size",
			Usage:       "Concurrent fetches of missing term sets",
			Value:       8,
			Sources:     cli.EnvVars("PLACESET_POOL_SIZE"),
			Destination: &cfg.poolSize,
		},
		&cli.IntFlag{
			Name:        "plan-depth",
			Usage:       "Tiling levels of a new coverage plan",
			Value:       plan.DefaultDepth,
			Sources:     cli.EnvVars("PLACESET_PLAN_DEPTH"),
			Destination: &cfg.depth,
		},
		&cli.StringFlag{
			Name:        "popularity",
			Usage:       "Popularity table file (YAML or JSON)",
			Sources:     cli.EnvVars("PLACESET_POPULARITY"),
			Destination: &cfg.popularity,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies filtering full data results",
			Sources:     cli.EnvVars("PLACESET_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

func (cfg *config) clientOptions() []option.ClientOption {
	if cfg.credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.credentialsFile)}
}

// newRepository creates the configured repository and a function closing it
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	var (
		repo    repository.Repository
		closers []func()
	)

	switch cfg.backend {
	case "memory":
		repo = repository.NewMemory()

	case "badger":
		db, err := repository.OpenBadger(cfg.badgerPath, false)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to open badger", goerr.V("path", cfg.badgerPath))
		}
		repo = db
		closers = append(closers, func() { _ = db.Close() })

	case "firestore":
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required")
		}

		var opts []repository.FirestoreOption
		if cfg.bucket != "" {
			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, repository.WithPayloadStorage(storage))
		}

		fs, err := repository.NewWithClientOptions(ctx, cfg.project, cfg.database, cfg.clientOptions(), opts...)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		repo = fs
		closers = append(closers, func() { _ = fs.Close() })

	default:
		return nil, nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}

	if cfg.cacheSize > 0 {
		cached, err := repository.NewCached(repo,
			repository.WithCacheMaxCost(cfg.cacheSize),
			repository.WithCacheTTL(cfg.cacheTTL))
		if err != nil {
			return nil, nil, err
		}
		repo = cached
		closers = append([]func(){cached.Close}, closers...)
	}

	return repo, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket, cfg.clientOptions()...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newPlaces creates a new places provider client
func (cfg *config) newPlaces() (adapter.Places, error) {
	if cfg.apiKey == "" {
		return nil, goerr.New("api-key is required")
	}
	return adapter.NewPlaces(cfg.apiKey,
		adapter.WithBaseURL(cfg.baseURL),
		adapter.WithLegacyURL(cfg.legacyURL),
		adapter.WithFieldMasks(cfg.proFields, cfg.enterpriseFields, cfg.idsOnlyFields, cfg.detailsFields),
	), nil
}

// newDecomposer creates the query decomposer with the popularity table
func (cfg *config) newDecomposer() (*query.Decomposer, error) {
	if cfg.popularity == "" {
		return query.NewDecomposer(nil), nil
	}
	pop, err := query.LoadPopularity(cfg.popularity)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load popularity table")
	}
	return query.NewDecomposer(pop), nil
}

// newPolicy loads the Rego policy, nil when no directory is configured
func (cfg *config) newPolicy(ctx context.Context) (*filter.Policy, error) {
	if cfg.policyDir == "" {
		return nil, nil
	}
	return filter.LoadPolicy(ctx, cfg.policyDir)
}

// newPlanner creates the coverage planner
func (cfg *config) newPlanner(repo repository.Repository) *plan.UseCase {
	return plan.New(repo, plan.WithDepth(int(cfg.depth)))
}

// newDataset wires the dataset use case. The returned function releases
// everything it opened.
func (cfg *config) newDataset(ctx context.Context) (*dataset.UseCase, func(), error) {
	repo, closeRepo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	places, err := cfg.newPlaces()
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	decomposer, err := cfg.newDecomposer()
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	policy, err := cfg.newPolicy(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	uc, err := dataset.New(repo, places, decomposer, cfg.newPlanner(repo),
		dataset.WithPolicy(policy),
		dataset.WithPoolSize(int(cfg.poolSize)),
		dataset.WithMinDelay(cfg.minDelay),
		dataset.WithBackoffBase(cfg.backoffBase),
		dataset.WithAttempts(uint(max(cfg.attempts, 1))),
		dataset.WithSentinelCount(int(cfg.sentinelCount)),
		dataset.WithMaxIterations(int(cfg.maxIterations)),
		dataset.WithThreshold(int(cfg.threshold)),
	)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	return uc, func() {
		uc.Close()
		closeRepo()
	}, nil
}
