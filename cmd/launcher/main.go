package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"finetune-launcher/api/status"
	"finetune-launcher/config"
	"finetune-launcher/core/models"
	"finetune-launcher/core/monitoring"
	"finetune-launcher/core/planner"
	"finetune-launcher/core/probe"
	"finetune-launcher/core/staging"
	"finetune-launcher/core/supervisor"
	"finetune-launcher/core/trainspec"
	"finetune-launcher/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	log.Printf("Starting launcher for job %s", cfg.JobName)

	fail := func(stage string, err error) int {
		log.Printf("job=%s status=failed stage=%s reason=%q", cfg.JobName, stage, err.Error())
		return 1
	}

	if cfg.DumpEnvironment {
		dumpEnvironment()
	}

	// Stop signals from the platform must reach the child process.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	spec, err := trainspec.Load(cfg.TrainSpec)
	if err != nil {
		return fail("load training spec", err)
	}
	log.Printf("Training spec: rank=%d seq_len=%d batch_size=%d max_steps=%d lr=%g",
		spec.LoRA.Rank, spec.SeqLen, spec.BatchSize, spec.MaxSteps, spec.Optim.LearningRate)

	topo := probe.NewProber().Probe(ctx)

	mapping := models.ChannelMapping{
		models.ChannelTrain:      cfg.TrainChannel,
		models.ChannelEvaluation: cfg.EvalChannel,
		models.ChannelBaseModel:  cfg.BaseModelChannel,
	}
	// The training config is the single source of truth for where the child
	// reads its data and writes its checkpoints; stage and finalize follow it.
	layout, err := staging.NewStager(spec.Data.TrainPath, spec.Data.EvalPath, spec.RunDir).Stage(mapping)
	if err != nil {
		return fail("stage data channels", err)
	}
	log.Printf("Staged layout: dataset=%s run=%s", layout.DatasetDir, layout.RunDir)

	// Sinks. A sink that cannot be built is observability lost, not a job
	// failure.
	var sinks []monitoring.MetricSink
	tracking, err := monitoring.NewTrackingSink(
		filepath.Join(layout.RunDir, "tracking"),
		cfg.TrackingProject, cfg.TrackingMode, cfg.TrackingEndpoint,
	)
	if err != nil {
		log.Printf("Experiment tracking unavailable (continuing): %v", err)
	} else {
		defer tracking.Close()
		sinks = append(sinks, tracking)
	}

	cw, err := monitoring.NewCloudWatchSink(ctx, cfg.AWSRegion, cfg.MetricsNamespace, cfg.JobName)
	if err != nil {
		log.Printf("Platform metrics unavailable (continuing): %v", err)
	} else {
		sinks = append(sinks, cw)
	}

	bridge := monitoring.NewBridge(sinks...)

	inv := planner.Invocation{
		Script:     filepath.Join(cfg.CodeDir, cfg.TrainScript),
		ConfigPath: cfg.TrainSpec,
	}
	sup := supervisor.New(
		&supervisor.ExecTrainingProcess{WorkDir: cfg.CodeDir},
		topo, inv, cfg.StallWindow, bridge,
	)

	statusServer := status.NewServer(cfg.StatusPort, cfg.JobName, sup.Snapshot)
	statusServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		statusServer.Shutdown(shutdownCtx)
	}()

	if tracking != nil {
		if err := tracking.StartRun(ctx); err != nil {
			log.Printf("Tracking run start failed (ignored): %v", err)
		}
	}

	outcome, runErr := sup.Run(ctx)
	bridge.Flush(context.Background())

	if tracking != nil {
		if err := tracking.FinishRun(context.Background(), outcome.Success); err != nil {
			log.Printf("Tracking run finish failed (ignored): %v", err)
		}
	}

	if runErr != nil {
		return fail("training run", runErr)
	}

	result, err := storage.NewFinalizer().Finalize(layout.RunDir, cfg.ModelDir)
	if err != nil {
		return fail("finalize artifacts", err)
	}

	log.Printf("job=%s status=succeeded run_id=%s attempts=%d last_step=%d artifacts=%s",
		cfg.JobName, outcome.Record.RunID, outcome.Record.Attempt,
		outcome.Record.LastStep, result.ArtifactDir)
	return 0
}

// dumpEnvironment echoes the execution environment for debugging, the way
// the platform's own training toolkits do at container start.
func dumpEnvironment() {
	wd, _ := os.Getwd()
	log.Printf("Working directory: %s", wd)
	for _, kv := range os.Environ() {
		log.Printf("env %s", kv)
	}
}
