package models

// Channel is a logical data channel name supplied by the platform.
type Channel string

const (
	ChannelTrain      Channel = "train"
	ChannelEvaluation Channel = "evaluation"
	ChannelBaseModel  Channel = "base-model"
)

// RequiredChannels lists the channels that must resolve before a launch.
// The base-model channel is optional: without it the training library
// downloads the base weights itself.
func RequiredChannels() []Channel {
	return []Channel{ChannelTrain, ChannelEvaluation}
}

// ChannelMapping maps logical channel names to the filesystem paths the
// platform mounted them at. Ordered by RequiredChannels for deterministic
// validation output.
type ChannelMapping map[Channel]string

// StagedLayout is the materialized directory layout handed to the training
// library: the dataset directory with train/eval files in place, plus the
// run and checkpoint directories the library writes into.
type StagedLayout struct {
	DatasetDir    string
	TrainFile     string
	EvalFile      string
	BaseModelDir  string // empty when the base-model channel was not supplied
	RunDir        string
	CheckpointDir string
}
