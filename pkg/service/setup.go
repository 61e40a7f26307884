package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/logflow/alphaflow/internal/pipe"
	"github.com/logflow/alphaflow/pkg/cache"
	"github.com/logflow/alphaflow/pkg/config"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/parser"
	"github.com/logflow/alphaflow/pkg/storage"
	"github.com/logflow/alphaflow/pkg/telemetry"
)

// ParserConfig maps the columns section onto parser settings.
func ParserConfig(c config.ColumnsConfig) parser.Config {
	cfg := parser.DefaultConfig()
	cfg.CaseIDColumn = c.CaseID
	cfg.ActivityColumn = c.Activity
	cfg.TimestampColumn = c.Timestamp
	cfg.ResourceColumn = c.Resource
	if c.TimestampFormat != "" {
		cfg.TimestampFormat = c.TimestampFormat
	}
	if len(c.Delimiter) == 1 {
		cfg.Delimiter = c.Delimiter[0]
	}
	return cfg
}

// FromConfig builds a Discoverer and its collaborators from cfg. The
// returned close func flushes telemetry and closes the cache. A cache that
// cannot be reached is logged and replaced by no cache. opts are applied
// after the configured collaborators.
func FromConfig(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*Discoverer, func(context.Context) error, error) {
	tcfg := telemetry.DefaultConfig(cfg.Telemetry.ServiceName)
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SampleRatio = cfg.Telemetry.SampleRatio
	provider, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		return nil, nil, err
	}

	var c cache.Cache = cache.Noop{}
	if cfg.Cache.Enabled {
		rcfg := cache.DefaultRedisConfig(cfg.Cache.Addr)
		rcfg.Password = cfg.Cache.Password
		rcfg.Database = cfg.Cache.DB
		rcfg.Prefix = cfg.Cache.Prefix
		rcfg.TTL = cfg.Cache.TTL
		r, err := cache.NewRedis(ctx, rcfg)
		if err != nil {
			log.WithError(err).Warn("result cache disabled")
		} else {
			c = r
		}
	}

	s3cfg := storage.DefaultS3Config(cfg.Storage.Region)
	s3cfg.Endpoint = cfg.Storage.Endpoint
	s3cfg.AccessKeyID = cfg.Storage.AccessKey
	s3cfg.SecretAccessKey = cfg.Storage.SecretKey
	s3cfg.UsePathStyle = cfg.Storage.UsePathStyle

	pcfg := pipe.DefaultConfig()
	pcfg.ParserConfig = ParserConfig(cfg.Columns)

	d := New(Config{
		Pipe:      pcfg,
		UseDuckDB: cfg.Discovery.UseDuckDB,
		TempDir:   cfg.Storage.TempDir,
		Workers:   cfg.Discovery.Workers,
	}, append([]Option{
		WithLogger(log),
		WithCache(c),
		WithStorage(storage.NewOpener(s3cfg)),
		WithTracer(provider.Tracer()),
	}, opts...)...)

	closeFn := func(ctx context.Context) error {
		var errs lferrors.MultiError
		errs.Add(c.Close())
		errs.Add(provider.Shutdown(ctx))
		return errs.Combined()
	}
	return d, closeFn, nil
}
