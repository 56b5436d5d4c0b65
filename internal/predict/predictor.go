package predict

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/opensource-commerce/kestrel/internal/domain"
	"github.com/opensource-commerce/kestrel/internal/features"
)

// Confidence constants for the non-probability paths.
const (
	labelConfidence = 0.7 // hard-label models carry no calibrated probability
	rulesConfidence = 0.6 // deterministic fallback
)

// Predictor produces the base eligibility score. The loaded model is held
// behind an atomic pointer so hot swaps never expose a half-formed model to
// in-flight scoring calls.
type Predictor struct {
	model atomic.Pointer[Model]
}

// NewPredictor creates a predictor, attempting to load the artifact at path.
// Loading is fail-soft: a missing or corrupt artifact logs a warning and
// selects the rules fallback for the process lifetime (until a reload).
func NewPredictor(path string) *Predictor {
	p := &Predictor{}
	if path == "" {
		slog.Info("no model path configured, using rules-based scoring")
		return p
	}
	m, err := Load(path)
	if err != nil {
		slog.Warn("could not load scoring model, using rules-based scoring",
			"path", path,
			"error", err,
		)
		return p
	}
	p.model.Store(&m)
	slog.Info("scoring model loaded", "path", path, "model_version", m.Version())
	return p
}

// Swap atomically replaces the loaded model. Passing nil drops to the rules
// fallback.
func (p *Predictor) Swap(m Model) {
	if m == nil {
		p.model.Store(nil)
		return
	}
	p.model.Store(&m)
}

// Reload loads a new artifact from path and swaps it in atomically.
// On error the current model stays in place.
func (p *Predictor) Reload(path string) error {
	m, err := Load(path)
	if err != nil {
		return err
	}
	p.Swap(m)
	return nil
}

// ModelVersion returns the loaded model's version, or "" on the rules path.
func (p *Predictor) ModelVersion() string {
	if m := p.model.Load(); m != nil {
		return (*m).Version()
	}
	return ""
}

// Predict scores a feature bag. The model path is used when a model is
// loaded and inference succeeds; any inference error falls back to the rules
// path for that request only.
func (p *Predictor) Predict(bag *features.Bag) domain.ScoreResult {
	m := p.model.Load()
	if m == nil {
		return RulesScore(bag)
	}

	vec := features.Extract(bag)

	switch model := (*m).(type) {
	case ProbabilityModel:
		proba, err := model.PredictProba(vec)
		if err != nil {
			slog.Warn("model inference failed, falling back to rules", "error", err)
			return RulesScore(bag)
		}
		return domain.ScoreResult{
			Score:      clampScore(proba * 100),
			Confidence: clampConfidence(math.Abs(proba-0.5) * 2),
			ModelUsed:  true,
		}

	case LabelModel:
		label, err := model.PredictLabel(vec)
		if err != nil {
			slog.Warn("model inference failed, falling back to rules", "error", err)
			return RulesScore(bag)
		}
		return domain.ScoreResult{
			Score:      clampScore(float64(label) * 100),
			Confidence: labelConfidence,
			ModelUsed:  true,
		}
	}

	// Model exposes no usable inference capability.
	return RulesScore(bag)
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func clampConfidence(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
