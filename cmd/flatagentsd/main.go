// Command flatagentsd is the flatagents process entrypoint: it loads daemon
// configuration, wires the persistence/result/lock backends it selects,
// loads every machine definition under a directory into a launch.Registry,
// and serves the httpapi control plane until an interrupt or TERM signal
// arrives, then shuts down gracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/flatagents/flatagents/agentexec"
	"github.com/flatagents/flatagents/config"
	"github.com/flatagents/flatagents/expression"
	"github.com/flatagents/flatagents/httpapi"
	"github.com/flatagents/flatagents/launch"
	"github.com/flatagents/flatagents/lock"
	"github.com/flatagents/flatagents/machine"
	"github.com/flatagents/flatagents/persistence"
	"github.com/flatagents/flatagents/resultbackend"
	"github.com/flatagents/flatagents/strategy"
	"github.com/flatagents/flatagents/telemetry"
	"github.com/flatagents/flatagents/workpool"
)

func main() {
	configPath := flag.String("config", "", "path to daemon config YAML (optional; defaults apply if absent)")
	machinesDir := flag.String("machines", "./machines", "directory of machine definition YAML files to load at startup")
	flag.Parse()

	if err := run(*configPath, *machinesDir); err != nil {
		fmt.Fprintln(os.Stderr, "flatagentsd:", err)
		os.Exit(1)
	}
}

func run(configPath, machinesDir string) error {
	daemon, err := loadDaemonConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewLogger(daemon.LogLevel, "json")
	metrics := telemetry.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer, err := telemetry.InitTracer(ctx, "flatagentsd", daemon.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	snapshots, results, execLock, redisClient, err := buildBackends(daemon)
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}

	machineRegistry, err := loadMachines(machinesDir, daemon.MaxStepsDefault)
	if err != nil {
		return fmt.Errorf("load machines: %w", err)
	}

	agents := agentexec.NewRegistry()

	simple := expression.NewSimpleEngine()
	cel := expression.NewCELEngine()

	strategyFn := func(ctx context.Context, exec machine.Executor, input map[string]any, cfg *machine.ExecutionConfig) ([]*machine.AgentResult, error) {
		return strategy.Select(cfg).Execute(ctx, exec, input, cfg)
	}

	inproc := &launch.InProcess{
		Registry:    machineRegistry,
		AgentLookup: agents.Lookup,
		Strategy:    strategyFn,
		Snapshots:   snapshots,
		Results:     results,
		Simple:      simple,
		CEL:         cel,
	}
	launcher := &launch.Launcher{Invoker: inproc, Snapshots: snapshots, Results: results}
	inproc.Launch = launcher.Launch

	runner := &daemonRunner{
		registry:    machineRegistry,
		agentLookup: agents.Lookup,
		strategy:    strategyFn,
		snapshots:   snapshots,
		results:     results,
		launcher:    launcher,
		simple:      simple,
		cel:         cel,
		lock:        execLock,
		metrics:     metrics,
		logger:      logger,
		tracer:      tracer,
	}

	var reaper *workpool.Reaper
	if daemon.WorkPoolEnabled {
		reaper, err = startReaper(ctx, daemon, redisClient, logger)
		if err != nil {
			return fmt.Errorf("start work-pool reaper: %w", err)
		}
	}

	server := httpapi.NewServer(runner, logger, metrics)
	httpServer := &http.Server{Addr: daemon.HTTPAddr, Handler: server.Handler()}

	go func() {
		logger.Info().Str("addr", daemon.HTTPAddr).Msg("flatagentsd listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if reaper != nil {
		reaper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// loadDaemonConfig reads configPath (if given) as YAML into a generic map,
// resolves ${VAR} references in every leaf, and runs it through the
// defaults→merge→validate pipeline (config.Load).
func loadDaemonConfig(configPath string) (*config.Daemon, error) {
	if configPath == "" {
		return config.Load(nil)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", configPath, err)
	}

	var rawValues map[string]any
	if err := yaml.Unmarshal(raw, &rawValues); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	resolved, _ := config.ResolveEnvVars(rawValues).(map[string]any)
	return config.Load(resolved)
}

// buildBackends selects the persistence/result/lock implementations named
// by daemon's backend fields. Redis persistence, the Redis lock and the work
// pool share one Redis client; a Redis result backend opens its own.
func buildBackends(daemon *config.Daemon) (machine.SnapshotStore, machine.ResultStore, machine.ExecLock, *redis.Client, error) {
	var redisClient *redis.Client
	if daemon.PersistenceBackend == "redis" || daemon.LockBackend == "redis" || daemon.WorkPoolEnabled {
		opt, err := redis.ParseURL(daemon.RedisURL)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("invalid redis_url: %w", err)
		}
		redisClient = redis.NewClient(opt)
	}

	var snapshots machine.SnapshotStore
	switch daemon.PersistenceBackend {
	case "redis":
		snapshots = persistence.NewRedis(redisClient, "flatagents:")
	case "file":
		if err := os.MkdirAll(daemon.PersistenceDir, 0o755); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("create persistence dir: %w", err)
		}
		snapshots = persistence.NewFile(daemon.PersistenceDir)
	default:
		snapshots = persistence.NewMemory()
	}

	var results machine.ResultStore
	switch daemon.ResultBackend {
	case "redis":
		r, err := resultbackend.NewRedis(daemon.RedisURL, "flatagents:")
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("connect result backend: %w", err)
		}
		results = r
	default:
		results = resultbackend.NewMemory()
	}

	var execLock machine.ExecLock
	switch daemon.LockBackend {
	case "redis":
		execLock = lock.NewRedis(redisClient, "flatagents:")
	default:
		execLock = lock.NewMemory()
	}

	return snapshots, results, execLock, redisClient, nil
}

// loadMachines globs *.yaml/*.yml under dir, resolves ${VAR}/${VAR:default}
// references in every leaf the same way loadDaemonConfig does for the
// daemon's own config (§6 "applied to machine settings and backend
// connection strings"), and registers each decoded machine.Config under its
// declared Name (falling back to the file's base name when a machine omits
// one). A machine that declares no settings.max_steps of its own inherits
// maxStepsDefault rather than the package-wide machine.DefaultMaxSteps, so a
// daemon operator's config applies uniformly.
func loadMachines(dir string, maxStepsDefault int) (*launch.Registry, error) {
	registry := launch.NewRegistry()

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}

	for _, file := range files {
		cfg, declaresMaxSteps, err := loadOneMachine(file)
		if err != nil {
			return nil, fmt.Errorf("load machine %s: %w", file, err)
		}
		if !declaresMaxSteps && maxStepsDefault > 0 {
			cfg.Settings.MaxSteps = maxStepsDefault
		}
		name := cfg.Name
		if name == "" {
			base := filepath.Base(file)
			name = base[:len(base)-len(filepath.Ext(base))]
		}
		registry.Register(name, cfg)
	}

	return registry, nil
}

// loadOneMachine reads and env-resolves one machine YAML file, reporting
// whether the source declared its own settings.max_steps so the caller can
// tell "explicitly 1000" from "defaulted to 1000" before applying the
// daemon-wide override.
func loadOneMachine(file string) (*machine.Config, bool, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, false, err
	}

	var rawMap map[string]any
	if err := yaml.Unmarshal(raw, &rawMap); err != nil {
		return nil, false, fmt.Errorf("parse: %w", err)
	}

	declaresMaxSteps := false
	if settings, ok := rawMap["settings"].(map[string]any); ok {
		_, declaresMaxSteps = settings["max_steps"]
	}

	resolved, _ := config.ResolveEnvVars(rawMap).(map[string]any)
	resolvedRaw, err := yaml.Marshal(resolved)
	if err != nil {
		return nil, false, fmt.Errorf("re-encode after env resolution: %w", err)
	}

	cfg, err := config.DecodeMachine(resolvedRaw)
	if err != nil {
		return nil, false, err
	}
	return cfg, declaresMaxSteps, nil
}

// startReaper wires the stale-worker reaper against the Redis-backed work
// pool and worker registry when redisClient is available (WorkPoolEnabled
// implies buildBackends already opened one), or the in-process equivalents
// otherwise (single-process deployments exercising the work-pool tier in
// tests or local runs without a Redis dependency).
func startReaper(ctx context.Context, daemon *config.Daemon, redisClient *redis.Client, logger zerolog.Logger) (*workpool.Reaper, error) {
	var pool workpool.WorkPool
	var markStale func(context.Context, time.Duration) ([]string, error)

	if redisClient != nil {
		reg := workpool.NewRedisRegistry(redisClient, "flatagents:")
		pool = workpool.NewRedis(redisClient, "flatagents:")
		markStale = reg.MarkStale
	} else {
		reg := workpool.NewMemoryRegistry()
		pool = workpool.NewMemory()
		markStale = workpool.MemoryMarkStale(reg)
	}

	reaper := workpool.NewReaper(pool, 2*time.Minute, logger, markStale)
	if err := reaper.Start(ctx, daemon.ReaperCron); err != nil {
		return nil, err
	}
	return reaper, nil
}
