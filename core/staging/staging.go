package staging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"finetune-launcher/core/models"
)

// Stager materializes platform-mounted data channels at the exact paths the
// training configuration document points the training library at, so the
// launcher and the child never disagree on where data and checkpoints live.
// Filesystem mutation is confined to those targets; source channels are
// never written to.
type Stager struct {
	trainFile string // target path for train data, from the training config
	evalFile  string // target path for eval data, from the training config
	runDir    string // the training config's run_dir
}

// NewStager creates a new data stager
func NewStager(trainFile, evalFile, runDir string) *Stager {
	return &Stager{
		trainFile: trainFile,
		evalFile:  evalFile,
		runDir:    runDir,
	}
}

// Stage validates every required channel and links its data into place.
// Idempotent: re-running with the same mapping converges on the same layout.
func (s *Stager) Stage(mapping models.ChannelMapping) (*models.StagedLayout, error) {
	sources := make(map[models.Channel]string)
	for _, ch := range models.RequiredChannels() {
		src, err := resolveChannel(mapping, ch)
		if err != nil {
			return nil, err
		}
		sources[ch] = src
	}

	for _, target := range []string{s.trainFile, s.evalFile} {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dataset dir: %w", err)
		}
	}

	checkpointDir := filepath.Join(s.runDir, "checkpoints")
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	layout := &models.StagedLayout{
		DatasetDir:    filepath.Dir(s.trainFile),
		TrainFile:     s.trainFile,
		EvalFile:      s.evalFile,
		RunDir:        s.runDir,
		CheckpointDir: checkpointDir,
	}

	if err := placeLink(sources[models.ChannelTrain], layout.TrainFile); err != nil {
		return nil, fmt.Errorf("failed to stage train data: %w", err)
	}
	if err := placeLink(sources[models.ChannelEvaluation], layout.EvalFile); err != nil {
		return nil, fmt.Errorf("failed to stage evaluation data: %w", err)
	}

	// Base model is optional: without it the training library downloads the
	// base weights itself.
	if path, ok := mapping[models.ChannelBaseModel]; ok && path != "" {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return nil, &models.MissingChannelError{
				Channel: models.ChannelBaseModel,
				Reason:  fmt.Sprintf("path %s is not a readable directory", path),
			}
		}
		layout.BaseModelDir = path
		log.Printf("Channel %s: %s", models.ChannelBaseModel, path)
	} else {
		log.Printf("No %s channel provided, training library will fetch base weights", models.ChannelBaseModel)
	}

	return layout, nil
}

// resolveChannel checks a required channel and returns the first data file
// found in it, by name order for determinism.
func resolveChannel(mapping models.ChannelMapping, ch models.Channel) (string, error) {
	path, ok := mapping[ch]
	if !ok || path == "" {
		return "", &models.MissingChannelError{Channel: ch, Reason: "no path supplied"}
	}

	files, err := filepath.Glob(filepath.Join(path, "*.jsonl"))
	if err != nil || len(files) == 0 {
		return "", &models.MissingChannelError{
			Channel: ch,
			Reason:  fmt.Sprintf("no .jsonl files under %s", path),
		}
	}
	sort.Strings(files)

	info, err := os.Stat(files[0])
	if err != nil {
		return "", &models.MissingChannelError{Channel: ch, Reason: err.Error()}
	}
	if info.Size() == 0 {
		return "", &models.MissingChannelError{
			Channel: ch,
			Reason:  fmt.Sprintf("%s is empty", files[0]),
		}
	}

	log.Printf("Channel %s: %s (%d files, first %s, %d bytes)",
		ch, path, len(files), filepath.Base(files[0]), info.Size())
	return files[0], nil
}

// placeLink symlinks src at dst atomically: the link is created under a
// temporary name and renamed over dst, so a partial staging never leaves a
// broken entry visible and re-staging converges.
func placeLink(src, dst string) error {
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}

	// Already staged to the same source.
	if existing, err := os.Readlink(dst); err == nil && existing == abs {
		return nil
	}

	tmp := dst + ".staging"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(abs, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
