package storage

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"finetune-launcher/core/models"
)

// Adapter weight files the training library is known to emit.
var adapterNames = []string{"lora.safetensors", "adapter_model.safetensors"}

// CompletionMarker signals a fully finalized artifact set to the platform.
const CompletionMarker = "_SUCCESS"

// Finalizer verifies and publishes the trained adapter artifacts into the
// platform's model output directory.
type Finalizer struct{}

// NewFinalizer creates a new artifact finalizer
func NewFinalizer() *Finalizer {
	return &Finalizer{}
}

// FinalizeResult describes the published artifact set.
type FinalizeResult struct {
	SourceDir   string
	ArtifactDir string
	Files       []string
}

// Finalize locates the newest adapter checkpoint under runDir and publishes
// it into modelDir. Publication is atomic from the platform's perspective:
// files are copied into a hidden staging directory which is renamed into
// place, and the completion marker is written last.
func (f *Finalizer) Finalize(runDir, modelDir string) (*FinalizeResult, error) {
	sourceDir, err := findAdapterDir(runDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint dir: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model dir: %w", err)
	}
	staging, err := os.MkdirTemp(modelDir, ".finalize-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(sourceDir, entry.Name())
		if err := copyFile(src, filepath.Join(staging, entry.Name())); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", entry.Name(), err)
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	target := filepath.Join(modelDir, "adapter")
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("failed to clear previous artifacts: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		return nil, fmt.Errorf("failed to publish artifacts: %w", err)
	}

	marker := filepath.Join(modelDir, CompletionMarker)
	if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write completion marker: %w", err)
	}

	log.Printf("Published %d artifact file(s) from %s to %s", len(files), sourceDir, target)
	return &FinalizeResult{
		SourceDir:   sourceDir,
		ArtifactDir: target,
		Files:       files,
	}, nil
}

// findAdapterDir returns the directory of the newest adapter weight file
// under root, or ArtifactMissingError when none exists.
func findAdapterDir(root string) (string, error) {
	var (
		newestDir string
		newestMod time.Time
	)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isAdapterFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newestDir == "" || info.ModTime().After(newestMod) {
			newestDir = filepath.Dir(path)
			newestMod = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if newestDir == "" {
		return "", &models.ArtifactMissingError{Dir: root}
	}
	return newestDir, nil
}

func isAdapterFile(name string) bool {
	for _, candidate := range adapterNames {
		if name == candidate {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
