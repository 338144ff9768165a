package ml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Bundle carries a trained model pair plus the feature contract both
// models were fitted against. The regressor and classifier always share
// one feature vector layout; FeatureNames records that layout so the
// serving path can rebuild vectors in exactly the order training used.
type Bundle struct {
	FeatureSet   string    `msgpack:"feature_set"`
	FeatureNames []string  `msgpack:"feature_names"`
	TrainedAt    time.Time `msgpack:"trained_at"`
	Regressor    *GBM      `msgpack:"regressor"`
	Classifier   *GBM      `msgpack:"classifier"`
}

// Save writes the bundle as msgpack, staging to a temp file in the target
// directory and renaming into place so readers never observe a partial
// write.
func (b *Bundle) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create model directory %s: %w", dir, err)
	}

	data, err := msgpack.Marshal(b)
	if err != nil {
		return fmt.Errorf("could not encode model bundle: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("could not stage model bundle: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("could not write model bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not finalize model bundle: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not install model bundle at %s: %w", path, err)
	}
	return nil
}

// LoadBundle reads a bundle written by Save. A missing file surfaces as
// an os.IsNotExist error so callers can treat first boot specially.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("could not decode model bundle %s: %w", path, err)
	}
	if b.Regressor == nil || b.Classifier == nil {
		return nil, fmt.Errorf("model bundle %s is incomplete", path)
	}
	return &b, nil
}
