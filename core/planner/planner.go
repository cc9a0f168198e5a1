package planner

import (
	"strconv"
	"strings"

	"finetune-launcher/core/models"
)

const (
	masterAddr = "127.0.0.1"
	masterPort = 29500
)

// Invocation is the static part of a launch: which script to run and with
// which configuration document.
type Invocation struct {
	Script     string // training library entry point
	ConfigPath string // training configuration document
	PythonBin  string // interpreter for single-process runs, defaults to python3
}

// Plan derives the concrete launch plan from the probed topology. Pure and
// deterministic: the same inputs always produce the same plan.
//
// Distributed is chosen only when more than one accelerator is available,
// the environment supports it, and no distributed attempt has failed for
// this job yet. Everything else falls through to single-process.
func Plan(topo models.AcceleratorTopology, inv Invocation, priorDistributedFailure bool) (models.LaunchPlan, error) {
	if inv.Script == "" {
		return models.LaunchPlan{}, &models.LaunchPlanError{Reason: "no training script configured"}
	}
	if inv.ConfigPath == "" {
		return models.LaunchPlan{}, &models.LaunchPlanError{Reason: "no training configuration configured"}
	}

	if !topo.SingleDevice() && !priorDistributedFailure {
		return distributedPlan(topo, inv), nil
	}
	return singleProcessPlan(topo, inv), nil
}

func distributedPlan(topo models.AcceleratorTopology, inv Invocation) models.LaunchPlan {
	// Pin visibility to the probed device IDs so an existing mask is
	// respected and retries see an identical assignment.
	devices := topo.DeviceIDs()
	n := len(devices)
	return models.LaunchPlan{
		Strategy:     models.StrategyDistributed,
		ProcessCount: n,
		Argv: []string{
			"torchrun",
			"--nproc-per-node", strconv.Itoa(n),
			inv.Script,
			"--config", inv.ConfigPath,
		},
		Env: map[string]string{
			"CUDA_VISIBLE_DEVICES": strings.Join(devices, ","),
			"MASTER_ADDR":          masterAddr,
			"MASTER_PORT":          strconv.Itoa(masterPort),
			"WORLD_SIZE":           strconv.Itoa(n),
		},
	}
}

func singleProcessPlan(topo models.AcceleratorTopology, inv Invocation) models.LaunchPlan {
	python := inv.PythonBin
	if python == "" {
		python = "python3"
	}

	env := map[string]string{}
	if devices := topo.DeviceIDs(); len(devices) >= 1 {
		env["CUDA_VISIBLE_DEVICES"] = devices[0]
	}

	return models.LaunchPlan{
		Strategy:     models.StrategySingleProcess,
		ProcessCount: 1,
		Argv: []string{
			python,
			inv.Script,
			"--config", inv.ConfigPath,
		},
		Env: env,
	}
}
