package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the launcher runtime configuration, read once from the
// environment the platform injects into the training container.
type Config struct {
	// Job identity
	JobName string

	// Data channels (platform-mounted paths)
	TrainChannel     string
	EvalChannel      string
	BaseModelChannel string

	// Filesystem layout. Dataset and run directories are not configured
	// here: the training configuration document owns those paths.
	CodeDir     string // where the training library lives
	ModelDir    string // platform output directory for finalized artifacts
	TrainSpec   string // path to the training configuration document
	TrainScript string // training library entry point, relative to CodeDir

	// Supervision
	StallWindow time.Duration
	StatusPort  string

	// AWS / platform metrics
	AWSRegion        string
	MetricsNamespace string

	// Experiment tracking
	TrackingProject  string
	TrackingMode     string // "online" | "offline" | "disabled"
	TrackingEndpoint string

	// Diagnostics
	DumpEnvironment bool
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		JobName:          getEnv("TRAINING_JOB_NAME", "finetune-job"),
		TrainChannel:     getEnv("SM_CHANNEL_TRAIN", ""),
		EvalChannel:      getEnv("SM_CHANNEL_TEST", ""),
		BaseModelChannel: getEnv("SM_CHANNEL_MODEL", ""),
		CodeDir:          getEnv("SM_CODE_DIR", "/opt/ml/code"),
		ModelDir:         getEnv("SM_MODEL_DIR", "/opt/ml/model"),
		TrainSpec:        getEnv("TRAIN_SPEC", "/opt/ml/code/config.yaml"),
		TrainScript:      getEnv("TRAIN_SCRIPT", "mistral-finetune/train.py"),
		StallWindow:      getDuration("STALL_WINDOW", 10*time.Minute),
		StatusPort:       getEnv("STATUS_PORT", "8080"),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "SageMaker/Training"),
		TrackingProject:  getEnv("WANDB_PROJECT", ""),
		TrackingMode:     getEnv("WANDB_MODE", "offline"),
		TrackingEndpoint: getEnv("WANDB_BASE_URL", ""),
		DumpEnvironment:  getBool("DUMP_ENVIRONMENT", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
