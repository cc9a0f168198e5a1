package probe

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestCountDevices(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want int
	}{
		{
			name: "four gpus",
			out: "GPU 0: NVIDIA A100-SXM4-80GB (UUID: GPU-aaa)\n" +
				"GPU 1: NVIDIA A100-SXM4-80GB (UUID: GPU-bbb)\n" +
				"GPU 2: NVIDIA A100-SXM4-80GB (UUID: GPU-ccc)\n" +
				"GPU 3: NVIDIA A100-SXM4-80GB (UUID: GPU-ddd)\n",
			want: 4,
		},
		{
			name: "single gpu no trailing newline",
			out:  "GPU 0: Tesla V100-SXM2-16GB (UUID: GPU-eee)",
			want: 1,
		},
		{name: "empty output", out: "", want: 0},
		{name: "blank lines only", out: "\n\n", want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CountDevices(tc.out); got != tc.want {
				t.Errorf("CountDevices = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestProbeNeverFails(t *testing.T) {
	p := &Prober{
		listGPUs: func(ctx context.Context) (string, error) {
			return "", errors.New("nvidia-smi: command not found")
		},
		lookPath: func(string) (string, error) {
			return "", errors.New("torchrun not found")
		},
	}

	topo := p.Probe(context.Background())
	if topo.AcceleratorCount != 0 {
		t.Errorf("accelerator count = %d, want 0 on probe failure", topo.AcceleratorCount)
	}
	if topo.DistributedSupported {
		t.Error("distributed supported without torchrun")
	}
}

func TestProbeDistributedTopology(t *testing.T) {
	t.Setenv("CUDA_VISIBLE_DEVICES", "")
	p := &Prober{
		listGPUs: func(ctx context.Context) (string, error) {
			return "GPU 0: A100\nGPU 1: A100\n", nil
		},
		lookPath: func(string) (string, error) {
			return "/usr/local/bin/torchrun", nil
		},
	}

	topo := p.Probe(context.Background())
	if topo.AcceleratorCount != 2 {
		t.Errorf("accelerator count = %d, want 2", topo.AcceleratorCount)
	}
	if !topo.DistributedSupported {
		t.Error("distributed should be supported with torchrun present")
	}
	if topo.SingleDevice() {
		t.Error("two supported accelerators should not report single-device")
	}
	if !reflect.DeepEqual(topo.VisibleDevices, []string{"0", "1"}) {
		t.Errorf("visible devices = %v, want [0 1]", topo.VisibleDevices)
	}
}

func TestProbeHonorsVisibilityMask(t *testing.T) {
	t.Setenv("CUDA_VISIBLE_DEVICES", "2,3")
	p := &Prober{
		listGPUs: func(ctx context.Context) (string, error) {
			return "GPU 0: A100\nGPU 1: A100\nGPU 2: A100\nGPU 3: A100\n", nil
		},
		lookPath: func(string) (string, error) {
			return "/usr/local/bin/torchrun", nil
		},
	}

	topo := p.Probe(context.Background())
	if topo.AcceleratorCount != 2 {
		t.Errorf("accelerator count = %d, want 2 under mask", topo.AcceleratorCount)
	}
	if !reflect.DeepEqual(topo.VisibleDevices, []string{"2", "3"}) {
		t.Errorf("visible devices = %v, want the masked IDs [2 3]", topo.VisibleDevices)
	}
	if !reflect.DeepEqual(topo.DeviceIDs(), []string{"2", "3"}) {
		t.Errorf("device IDs = %v, want [2 3]", topo.DeviceIDs())
	}
}
