package rnn

import (
	"encoding/gob"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hydrosense/droughtcast/features"
)

// artifactVersion is incremented when the on-disk artifact format changes.
const artifactVersion = 1

// Artifact is the on-disk representation of a trained model: the network
// weights plus the fitted scaler and feature ordering needed to run the
// same transform at inference time.
type Artifact struct {
	Version      int
	CreatedAt    int64
	RunID        string
	Config       Config
	InputDim     int
	Params       netParams
	Scaler       *features.StandardScaler
	FeatureNames []string
}

// SaveArtifact writes the trained model, scaler and feature names to
// path using encoding/gob. The write is atomic (temp file then rename)
// and unconditionally replaces any existing artifact at path.
func SaveArtifact(path string, m *Model, scaler *features.StandardScaler, featureNames []string) error {
	if path == "" {
		return errors.New("empty artifact path")
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp artifact file")
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	art := Artifact{
		Version:      artifactVersion,
		CreatedAt:    time.Now().Unix(),
		RunID:        uuid.NewString(),
		Config:       m.Config,
		InputDim:     m.InputDim,
		Params:       m.p,
		Scaler:       scaler,
		FeatureNames: featureNames,
	}
	if err := gob.NewEncoder(tmpFile).Encode(&art); err != nil {
		return errors.Wrap(err, "encode artifact")
	}
	if err := tmpFile.Sync(); err != nil {
		return errors.Wrap(err, "sync artifact")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp artifact file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename temp artifact to target")
	}
	return nil
}

// LoadArtifact restores a saved model together with its fitted scaler
// and feature names. The artifact format version must match.
func LoadArtifact(path string) (*Model, *features.StandardScaler, []string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "open artifact %s", path)
	}
	defer fh.Close()

	var art Artifact
	if err := gob.NewDecoder(fh).Decode(&art); err != nil {
		return nil, nil, nil, errors.Wrapf(err, "decode artifact %s", path)
	}
	if art.Version != artifactVersion {
		return nil, nil, nil, errors.Errorf("artifact version mismatch: file=%d expected=%d", art.Version, artifactVersion)
	}

	m := &Model{
		Config:   art.Config,
		InputDim: art.InputDim,
		p:        art.Params,
		rng:      rand.New(rand.NewSource(art.Config.Seed)),
	}
	return m, art.Scaler, art.FeatureNames, nil
}
