package trainspec

import (
	"strings"
	"testing"
)

const validSpec = `
data:
  data: /opt/ml/code/datasets/finetune/train.jsonl
  eval_instruct_data: /opt/ml/code/datasets/finetune/eval.jsonl
model_id_or_path: /opt/ml/input/data/model
run_dir: /opt/ml/output/run
seq_len: 8192
batch_size: 2
max_steps: 300
optim:
  lr: 6.0e-5
  weight_decay: 0.1
  pct_start: 0.05
lora:
  rank: 16
seed: 0
log_freq: 1
eval_freq: 100
ckpt_freq: 100
save_adapters: true
wandb:
  project: finetune
  offline: true
`

func TestParse(t *testing.T) {
	spec, err := Parse(validSpec)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if spec.LoRA.Rank != 16 {
		t.Errorf("rank = %d, want 16", spec.LoRA.Rank)
	}
	if spec.SeqLen != 8192 {
		t.Errorf("seq_len = %d, want 8192", spec.SeqLen)
	}
	if spec.MaxSteps != 300 {
		t.Errorf("max_steps = %d, want 300", spec.MaxSteps)
	}
	if spec.Optim.LearningRate != 6.0e-5 {
		t.Errorf("lr = %g, want 6e-5", spec.Optim.LearningRate)
	}
	if spec.Optim.WeightDecay != 0.1 {
		t.Errorf("weight_decay = %g, want 0.1", spec.Optim.WeightDecay)
	}
	if !spec.SaveAdapters {
		t.Error("save_adapters not parsed")
	}
	if spec.Wandb.Project != "finetune" || !spec.Wandb.Offline {
		t.Errorf("wandb section not parsed: %+v", spec.Wandb)
	}
}

func TestParseDefaults(t *testing.T) {
	spec, err := Parse(`
data:
  data: /data/train.jsonl
  eval_instruct_data: /data/eval.jsonl
run_dir: /opt/ml/output/run
seq_len: 4096
max_steps: 10
optim:
  lr: 1.0e-4
`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if spec.BatchSize != 1 {
		t.Errorf("default batch_size = %d, want 1", spec.BatchSize)
	}
	if spec.LogFreq != 1 {
		t.Errorf("default log_freq = %d, want 1", spec.LogFreq)
	}
	if spec.LoRA.Rank != 64 {
		t.Errorf("default rank = %d, want 64", spec.LoRA.Rank)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "not yaml",
			yaml: "{{{",
			want: "failed to parse YAML",
		},
		{
			name: "missing run_dir",
			yaml: "seq_len: 4096\nmax_steps: 10\noptim:\n  lr: 1.0e-4\n",
			want: "run_dir",
		},
		{
			name: "zero max_steps",
			yaml: "run_dir: /r\nseq_len: 4096\noptim:\n  lr: 1.0e-4\n",
			want: "max_steps",
		},
		{
			name: "negative learning rate",
			yaml: "run_dir: /r\nseq_len: 4096\nmax_steps: 10\noptim:\n  lr: -1.0\n",
			want: "optim.lr",
		},
		{
			name: "warmup fraction above one",
			yaml: "run_dir: /r\nseq_len: 4096\nmax_steps: 10\noptim:\n  lr: 1.0e-4\n  pct_start: 1.5\n",
			want: "pct_start",
		},
		{
			name: "missing train data path",
			yaml: "data:\n  eval_instruct_data: /d/eval.jsonl\nrun_dir: /r\nseq_len: 4096\nmax_steps: 10\noptim:\n  lr: 1.0e-4\n",
			want: "data.data",
		},
		{
			name: "missing eval data path",
			yaml: "data:\n  data: /d/train.jsonl\nrun_dir: /r\nseq_len: 4096\nmax_steps: 10\noptim:\n  lr: 1.0e-4\n",
			want: "eval_instruct_data",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.yaml)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
