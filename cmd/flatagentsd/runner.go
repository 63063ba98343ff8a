package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/flatagents/flatagents/expression"
	"github.com/flatagents/flatagents/launch"
	"github.com/flatagents/flatagents/machine"
	"github.com/flatagents/flatagents/telemetry"
)

// daemonRunner implements httpapi.Runner by constructing a fresh
// machine.Interpreter per request against the process-wide backends and
// machine registry, the same per-call interpreter construction
// launch.InProcess.Launch uses for child executions.
type daemonRunner struct {
	registry    *launch.Registry
	agentLookup func(name string) (machine.Executor, bool)
	strategy    machine.StrategyFunc
	snapshots   machine.SnapshotStore
	results     machine.ResultStore
	launcher    *launch.Launcher
	simple      expression.Engine
	cel         expression.Engine
	lock        machine.ExecLock
	metrics     *telemetry.Metrics
	logger      zerolog.Logger
	tracer      trace.Tracer
}

func (d *daemonRunner) interpreter(cfg *machine.Config) *machine.Interpreter {
	return &machine.Interpreter{
		Config:      cfg,
		AgentLookup: d.agentLookup,
		Strategy:    d.strategy,
		Snapshots:   d.snapshots,
		Results:     d.results,
		Launch:      d.launcher.Launch,
		Simple:      d.simple,
		CEL:         d.cel,
	}
}

// Start begins a new execution of machineName, serializing it against
// execID via the execution lock the same way a resumed execution is
// serialized (§4.H "at most one interpreter loop advances a given execution
// at a time"), so a concurrent duplicate start request cannot race a
// resume.
func (d *daemonRunner) Start(ctx context.Context, machineName string, input map[string]any, executionID machine.ExecutionId) (*machine.Snapshot, error) {
	cfg, err := d.registry.Resolve(machineName)
	if err != nil {
		return nil, fmt.Errorf("unknown machine %q: %w", machineName, err)
	}

	if executionID == "" {
		executionID = machine.NewExecutionId()
	}

	token, err := d.lock.Acquire(ctx, string(executionID), launch.DefaultReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("acquire execution lock: %w", err)
	}
	defer d.lock.Release(ctx, string(executionID), token)

	spanCtx, span := telemetry.StartStateSpan(ctx, d.tracer, string(executionID), machineName, "start", 0)
	defer span.End()

	d.metrics.ExecutionsStarted.Inc()
	snap, err := d.interpreter(cfg).Run(spanCtx, executionID, input)
	d.recordOutcome(machineName, snap, err)
	return snap, err
}

// Resume re-enters a previously-checkpointed execution, re-issuing any
// not-yet-launched child-machine intents before stepping (§4.H "On
// resume"), mirroring the outbox ResumePending contract launch.Launcher
// exposes for crash recovery.
func (d *daemonRunner) Resume(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error) {
	snap, err := d.snapshots.Load(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", executionID, err)
	}

	cfg, err := d.registry.Resolve(snap.MachineName)
	if err != nil {
		return nil, fmt.Errorf("unknown machine %q: %w", snap.MachineName, err)
	}

	token, err := d.lock.Acquire(ctx, string(executionID), launch.DefaultReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("acquire execution lock: %w", err)
	}
	defer d.lock.Release(ctx, string(executionID), token)

	if err := d.launcher.ResumePending(ctx, snap); err != nil {
		return nil, fmt.Errorf("resume pending launches: %w", err)
	}

	spanCtx, span := telemetry.StartStateSpan(ctx, d.tracer, string(executionID), snap.MachineName, snap.CurrentState, snap.Step)
	defer span.End()

	result, err := d.interpreter(cfg).Resume(spanCtx, snap)
	d.recordOutcome(snap.MachineName, result, err)
	return result, err
}

func (d *daemonRunner) Snapshot(ctx context.Context, executionID machine.ExecutionId) (*machine.Snapshot, error) {
	return d.snapshots.Load(ctx, executionID)
}

func (d *daemonRunner) recordOutcome(machineName string, snap *machine.Snapshot, err error) {
	if err != nil {
		errType := "unknown"
		if me, ok := err.(*machine.Error); ok {
			errType = string(me.Type)
		}
		d.metrics.ExecutionsFailed.WithLabelValues(errType).Inc()
		d.logger.Error().Err(err).Str("machine", machineName).Msg("execution failed")
		return
	}
	d.metrics.ExecutionsFinished.Inc()
	if snap != nil {
		d.logger.Info().Str("machine", machineName).Str("execution_id", string(snap.ExecutionId)).Str("state", snap.CurrentState).Msg("execution finished")
	}
}
