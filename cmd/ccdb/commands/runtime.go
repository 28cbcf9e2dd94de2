package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ccdb/pkg/changetrack"
	"github.com/Sumatoshi-tech/ccdb/pkg/config"
	"github.com/Sumatoshi-tech/ccdb/pkg/engine"
	"github.com/Sumatoshi-tech/ccdb/pkg/observability"
	"github.com/Sumatoshi-tech/ccdb/pkg/prefstore"
	"github.com/Sumatoshi-tech/ccdb/pkg/toolchain"
	"github.com/Sumatoshi-tech/ccdb/pkg/version"
)

const envOTLPHeaders = "OTEL_EXPORTER_OTLP_HEADERS"

// runtime bundles what every subcommand needs after settings are resolved.
type runtime struct {
	cfg       *config.Config
	providers observability.Providers
	metrics   *observability.IngestMetrics
	logger    *slog.Logger
}

// setup loads settings, applies flag overrides and initializes observability.
// Callers must defer close.
func (g *globalFlags) setup(cmd *cobra.Command, mode observability.AppMode) (*runtime, error) {
	cfg, err := config.LoadConfig(g.configFile)
	if err != nil {
		return nil, err
	}

	g.override(cmd, cfg)

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}

	level, err := observability.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv(envOTLPHeaders))
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.LogLevel = level
	// MCP mode always logs JSON.
	obsCfg.LogJSON = cfg.Log.JSON || mode == observability.ModeMCP

	providers, err := observability.InitWithWriter(obsCfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	rt := &runtime{cfg: cfg, providers: providers, logger: providers.Logger}

	rt.metrics, err = observability.NewIngestMetrics(providers.Meter)
	if err != nil {
		rt.close()

		return nil, err
	}

	return rt, nil
}

// override copies explicitly set persistent flags over the loaded settings.
func (g *globalFlags) override(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		flag := cmd.Flag(name)

		return flag != nil && flag.Changed
	}

	if changed(flagProject) {
		cfg.Project = g.project
	}

	if changed(flagConfiguration) {
		cfg.Configuration = g.configuration
	}

	if changed(flagStoreDir) {
		cfg.Store.Dir = g.storeDir
	}

	if changed(flagStoreFormat) {
		cfg.Store.Format = g.storeFormat
	}

	if changed(flagStrict) {
		cfg.Detect.Strict = g.strict
	}

	if changed(flagLogLevel) {
		cfg.Log.Level = g.logLevel
	}

	if changed(flagLogJSON) {
		cfg.Log.JSON = g.logJSON
	}
}

// close flushes telemetry within the configured shutdown timeout.
func (rt *runtime) close() {
	timeout := time.Duration(observability.DefaultConfig().ShutdownTimeoutSec) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := rt.providers.Shutdown(ctx)
	if err != nil {
		rt.logger.Warn("observability shutdown failed", "error", err)
	}
}

// database picks the positional argument when given, else the configured path.
func (rt *runtime) database(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}

	return rt.cfg.Database
}

// scope names the store partition for database.
func (rt *runtime) scope(database string) prefstore.Scope {
	project := rt.cfg.Project
	if project == "" {
		project = engine.DefaultProject(database)
	}

	return prefstore.Scope{Project: project, Config: rt.cfg.Configuration}
}

// openStore opens the file-backed timestamp store for scope.
func (rt *runtime) openStore(scope prefstore.Scope) (*prefstore.Node, error) {
	dir := rt.cfg.Store.Dir
	if dir == "" {
		var err error

		dir, err = prefstore.DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	codec, err := prefstore.CodecByName(rt.cfg.Store.Format)
	if err != nil {
		return nil, err
	}

	return prefstore.Open(dir, scope, codec)
}

// detectorOptions returns the tokenizer options the settings ask for.
func (rt *runtime) detectorOptions() []toolchain.Option {
	if rt.cfg.Detect.Strict {
		return []toolchain.Option{toolchain.WithStrictTokenizer()}
	}

	return nil
}

// session creates an engine session for database. A nil store keeps
// timestamps in memory.
func (rt *runtime) session(database string, store changetrack.Store) (*engine.Session, error) {
	scope := rt.scope(database)

	opts := []engine.Option{
		engine.WithProject(scope.Project),
		engine.WithConfig(scope.Config),
		engine.WithLogger(rt.logger),
		engine.WithRecorder(rt.metrics),
		engine.WithTracer(rt.providers.Tracer),
		engine.WithDetectorOptions(rt.detectorOptions()...),
	}

	if store != nil {
		opts = append(opts, engine.WithStore(store))
	}

	return engine.New(database, opts...)
}

// fileSize returns the size of path, or 0 when it cannot be read.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}
