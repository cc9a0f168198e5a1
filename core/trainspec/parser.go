package trainspec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrainSpec represents the YAML training configuration document handed to
// the training library. Loaded once at startup and never mutated.
type TrainSpec struct {
	Data         TrainSpecData  `yaml:"data"`
	ModelPath    string         `yaml:"model_id_or_path"`
	RunDir       string         `yaml:"run_dir"`
	SeqLen       int            `yaml:"seq_len"`
	BatchSize    int            `yaml:"batch_size"`
	MaxSteps     int64          `yaml:"max_steps"`
	Optim        TrainSpecOptim `yaml:"optim"`
	LoRA         TrainSpecLoRA  `yaml:"lora"`
	Seed         int            `yaml:"seed"`
	LogFreq      int            `yaml:"log_freq"`
	EvalFreq     int            `yaml:"eval_freq"`
	CkptFreq     int            `yaml:"ckpt_freq"`
	SaveAdapters bool           `yaml:"save_adapters"`
	Wandb        TrainSpecWandb `yaml:"wandb"`
}

// TrainSpecData represents the data section of the training config
type TrainSpecData struct {
	TrainPath string `yaml:"data"`
	EvalPath  string `yaml:"eval_instruct_data"`
}

// TrainSpecOptim represents the optimizer section of the training config
type TrainSpecOptim struct {
	LearningRate float64 `yaml:"lr"`
	WeightDecay  float64 `yaml:"weight_decay"`
	WarmupFrac   float64 `yaml:"pct_start"`
}

// TrainSpecLoRA represents the LoRA adapter section of the training config
type TrainSpecLoRA struct {
	Rank int `yaml:"rank"`
}

// TrainSpecWandb represents the experiment tracking section of the training config
type TrainSpecWandb struct {
	Project string `yaml:"project"`
	Offline bool   `yaml:"offline"`
}

// Load reads and parses the training configuration document from disk.
func Load(path string) (*TrainSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training spec: %w", err)
	}
	return Parse(string(raw))
}

// Parse parses a YAML training configuration into a TrainSpec
func Parse(specYAML string) (*TrainSpec, error) {
	var spec TrainSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Set defaults
	if spec.BatchSize == 0 {
		spec.BatchSize = 1
	}
	if spec.LogFreq == 0 {
		spec.LogFreq = 1
	}
	if spec.LoRA.Rank == 0 {
		spec.LoRA.Rank = 64
	}

	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *TrainSpec) validate() error {
	if s.RunDir == "" {
		return fmt.Errorf("training spec: run_dir is required")
	}
	if s.SeqLen <= 0 {
		return fmt.Errorf("training spec: seq_len must be positive, got %d", s.SeqLen)
	}
	if s.MaxSteps <= 0 {
		return fmt.Errorf("training spec: max_steps must be positive, got %d", s.MaxSteps)
	}
	if s.Optim.LearningRate <= 0 {
		return fmt.Errorf("training spec: optim.lr must be positive, got %g", s.Optim.LearningRate)
	}
	if s.Optim.WarmupFrac < 0 || s.Optim.WarmupFrac > 1 {
		return fmt.Errorf("training spec: optim.pct_start must be in [0,1], got %g", s.Optim.WarmupFrac)
	}
	if s.LoRA.Rank < 0 {
		return fmt.Errorf("training spec: lora.rank must be non-negative, got %d", s.LoRA.Rank)
	}
	// The launcher stages channel data to exactly these paths; without them
	// there is nowhere agreed-upon to put it.
	if s.Data.TrainPath == "" {
		return fmt.Errorf("training spec: data.data is required")
	}
	if s.Data.EvalPath == "" {
		return fmt.Errorf("training spec: data.eval_instruct_data is required")
	}
	return nil
}
