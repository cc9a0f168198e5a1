package probe

import (
	"context"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"finetune-launcher/core/models"
)

// Prober inspects the execution environment for accelerator devices.
// It never fails hard: an instance where the inventory cannot be read is
// treated as having zero accelerators, which forces a single-process run.
type Prober struct {
	// overridable for tests
	listGPUs func(ctx context.Context) (string, error)
	lookPath func(file string) (string, error)
}

// NewProber creates a new environment prober
func NewProber() *Prober {
	return &Prober{
		listGPUs: runNvidiaSMI,
		lookPath: exec.LookPath,
	}
}

// Probe returns the accelerator topology of the current instance.
func (p *Prober) Probe(ctx context.Context) models.AcceleratorTopology {
	devices := p.visibleDevices(ctx)

	distributed := false
	if _, err := p.lookPath("torchrun"); err == nil {
		distributed = true
	} else {
		log.Printf("torchrun not on PATH, distributed launch unavailable: %v", err)
	}

	topo := models.AcceleratorTopology{
		AcceleratorCount:     len(devices),
		DistributedSupported: distributed,
		VisibleDevices:       devices,
	}
	log.Printf("Probed topology: %d accelerator(s) %v, distributed_supported=%v",
		topo.AcceleratorCount, topo.VisibleDevices, topo.DistributedSupported)
	return topo
}

// visibleDevices returns the device IDs the job may bind. An existing
// CUDA_VISIBLE_DEVICES mask fixes both how many devices are usable and which
// IDs they carry; launch plans must reuse those IDs rather than 0..n-1.
func (p *Prober) visibleDevices(ctx context.Context) []string {
	out, err := p.listGPUs(ctx)
	if err != nil {
		log.Printf("No GPUs detected or nvidia-smi not available: %v", err)
		return nil
	}
	count := CountDevices(out)
	if count == 0 {
		return nil
	}

	if mask := os.Getenv("CUDA_VISIBLE_DEVICES"); mask != "" {
		masked := splitMask(mask)
		if len(masked) > count {
			masked = masked[:count]
		}
		return masked
	}

	devices := make([]string, count)
	for i := range devices {
		devices[i] = strconv.Itoa(i)
	}
	return devices
}

// CountDevices counts devices in `nvidia-smi --list-gpus` output, one
// device per non-empty line.
func CountDevices(out string) int {
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}

func splitMask(mask string) []string {
	var ids []string
	for _, id := range strings.Split(mask, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func runNvidiaSMI(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi", "--list-gpus").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
