// Package predict produces the base eligibility score, either from a loaded
// probability model artifact or from a deterministic rules fallback.
package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opensource-commerce/kestrel/internal/features"
)

// Model is a loaded scoring model. Concrete models expose exactly one of the
// two inference capabilities below; the predictor dispatches on which one.
type Model interface {
	Version() string
}

// ProbabilityModel predicts the probability that a return is eligible.
type ProbabilityModel interface {
	Model
	PredictProba(vec features.Vector) (float64, error)
}

// LabelModel predicts only a hard eligible/not-eligible label.
type LabelModel interface {
	Model
	PredictLabel(vec features.Vector) (int, error)
}

// Artifact kinds accepted by Load.
const (
	KindBoostedStumps = "boosted_stumps"
	KindLabelStumps   = "label_stumps"
)

// Stump is one boosted decision stump: vec[Feature] < Threshold selects the
// left response, otherwise the right.
type Stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

// Artifact is the serialized model format. FeatureNames pins the feature
// contract the model was trained against.
type Artifact struct {
	Version      string   `json:"version"`
	Kind         string   `json:"kind"`
	FeatureNames []string `json:"feature_names"`
	Bias         float64  `json:"bias"`
	Stumps       []Stump  `json:"stumps"`
}

// Validate checks the artifact against the current feature contract.
func (a *Artifact) Validate() error {
	if a.Kind != KindBoostedStumps && a.Kind != KindLabelStumps {
		return fmt.Errorf("unsupported model kind %q", a.Kind)
	}
	if len(a.FeatureNames) != features.VectorLen {
		return fmt.Errorf("model expects %d features, contract has %d", len(a.FeatureNames), features.VectorLen)
	}
	for i, name := range a.FeatureNames {
		if name != features.Names[i] {
			return fmt.Errorf("feature %d: model has %q, contract has %q", i, name, features.Names[i])
		}
	}
	if len(a.Stumps) == 0 {
		return fmt.Errorf("model has no stumps")
	}
	for i, s := range a.Stumps {
		if s.Feature < 0 || s.Feature >= features.VectorLen {
			return fmt.Errorf("stump %d references feature %d outside contract", i, s.Feature)
		}
	}
	return nil
}

// Load reads and validates a model artifact from disk.
func Load(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if err := art.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}

	stumps := &stumpModel{artifact: art}
	if art.Kind == KindLabelStumps {
		return &labelStumpModel{inner: stumps}, nil
	}
	return stumps, nil
}

// Save serializes an artifact to disk.
func Save(path string, art *Artifact) error {
	if err := art.Validate(); err != nil {
		return fmt.Errorf("invalid model artifact: %w", err)
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// stumpModel is a gradient-boosted stump ensemble with a logistic link.
type stumpModel struct {
	artifact Artifact
}

func (m *stumpModel) Version() string { return m.artifact.Version }

func (m *stumpModel) PredictProba(vec features.Vector) (float64, error) {
	raw := m.artifact.Bias
	for _, s := range m.artifact.Stumps {
		if vec[s.Feature] < s.Threshold {
			raw += s.Left
		} else {
			raw += s.Right
		}
	}
	return sigmoid(raw), nil
}

// labelStumpModel wraps the same ensemble but only exposes the hard label,
// for artifacts exported without calibrated probabilities. The inner model is
// held unexported so the predictor sees only the label capability.
type labelStumpModel struct {
	inner *stumpModel
}

func (m *labelStumpModel) Version() string { return m.inner.Version() }

func (m *labelStumpModel) PredictLabel(vec features.Vector) (int, error) {
	p, err := m.inner.PredictProba(vec)
	if err != nil {
		return 0, err
	}
	if p >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
