package predict

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-commerce/kestrel/internal/features"
)

func writeArtifact(t *testing.T, art *Artifact) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := Save(path, art); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	return path
}

func probaArtifact() *Artifact {
	return &Artifact{
		Version:      "test-1",
		Kind:         KindBoostedStumps,
		FeatureNames: features.Names,
		Bias:         2.0,
		Stumps: []Stump{
			{Feature: 0, Threshold: 0.3, Left: 1.0, Right: -3.0},
		},
	}
}

func TestPredictorNoModel(t *testing.T) {
	p := NewPredictor("")

	if v := p.ModelVersion(); v != "" {
		t.Errorf("expected empty model version, got %q", v)
	}

	result := p.Predict(&features.Bag{})
	if result.ModelUsed {
		t.Error("expected rules fallback with no model loaded")
	}
	if result.Confidence != 0.6 {
		t.Errorf("expected rules confidence 0.6, got %v", result.Confidence)
	}
}

func TestPredictorMissingArtifactFailsSoft(t *testing.T) {
	p := NewPredictor(filepath.Join(t.TempDir(), "nope.json"))

	result := p.Predict(&features.Bag{})
	if result.ModelUsed {
		t.Error("expected rules fallback for missing artifact")
	}
}

func TestPredictorProbabilityModel(t *testing.T) {
	p := NewPredictor(writeArtifact(t, probaArtifact()))

	if v := p.ModelVersion(); v != "test-1" {
		t.Errorf("model version = %q, want test-1", v)
	}

	// buyer_return_rate 0 < 0.3 selects the left response: raw = 2 + 1 = 3
	result := p.Predict(&features.Bag{})
	if !result.ModelUsed {
		t.Fatal("expected model path")
	}
	wantProba := 1.0 / (1.0 + math.Exp(-3.0))
	if math.Abs(result.Score-wantProba*100) > 1e-9 {
		t.Errorf("score = %v, want %v", result.Score, wantProba*100)
	}
	wantConf := math.Abs(wantProba-0.5) * 2
	if math.Abs(result.Confidence-wantConf) > 1e-9 {
		t.Errorf("confidence = %v, want %v", result.Confidence, wantConf)
	}

	// buyer_return_rate 0.5 >= 0.3 selects the right response: raw = 2 - 3 = -1
	result = p.Predict(&features.Bag{BuyerReturnRate: 0.5})
	lowProba := 1.0 / (1.0 + math.Exp(1.0))
	if math.Abs(result.Score-lowProba*100) > 1e-9 {
		t.Errorf("score = %v, want %v", result.Score, lowProba*100)
	}
}

func TestPredictorLabelModel(t *testing.T) {
	art := probaArtifact()
	art.Kind = KindLabelStumps
	p := NewPredictor(writeArtifact(t, art))

	// raw = 3 => proba > 0.5 => label 1 => score 100
	result := p.Predict(&features.Bag{})
	if !result.ModelUsed {
		t.Fatal("expected model path")
	}
	if result.Score != 100 {
		t.Errorf("score = %v, want 100", result.Score)
	}
	if result.Confidence != 0.7 {
		t.Errorf("label model confidence = %v, want 0.7", result.Confidence)
	}

	// raw = -1 => proba < 0.5 => label 0 => score 0
	result = p.Predict(&features.Bag{BuyerReturnRate: 0.5})
	if result.Score != 0 {
		t.Errorf("score = %v, want 0", result.Score)
	}
}

func TestPredictorSwapAndReload(t *testing.T) {
	p := NewPredictor(writeArtifact(t, probaArtifact()))

	// Reload from a broken path keeps the current model.
	if err := p.Reload(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error reloading a missing artifact")
	}
	if v := p.ModelVersion(); v != "test-1" {
		t.Errorf("model version after failed reload = %q, want test-1", v)
	}

	// Reload with a newer artifact swaps it in.
	art := probaArtifact()
	art.Version = "test-2"
	if err := p.Reload(writeArtifact(t, art)); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if v := p.ModelVersion(); v != "test-2" {
		t.Errorf("model version = %q, want test-2", v)
	}

	// Swapping nil drops to the rules fallback.
	p.Swap(nil)
	if v := p.ModelVersion(); v != "" {
		t.Errorf("model version after nil swap = %q, want empty", v)
	}
	if p.Predict(&features.Bag{}).ModelUsed {
		t.Error("expected rules fallback after nil swap")
	}
}

func TestLoadRejectsBadArtifacts(t *testing.T) {
	t.Run("UnknownKind", func(t *testing.T) {
		art := probaArtifact()
		art.Kind = "random_forest"
		assertSaveRejected(t, art)
	})

	t.Run("WrongFeatureNames", func(t *testing.T) {
		art := probaArtifact()
		names := append([]string(nil), features.Names...)
		names[0], names[1] = names[1], names[0]
		art.FeatureNames = names
		assertSaveRejected(t, art)
	})

	t.Run("NoStumps", func(t *testing.T) {
		art := probaArtifact()
		art.Stumps = nil
		assertSaveRejected(t, art)
	})

	t.Run("StumpFeatureOutOfRange", func(t *testing.T) {
		art := probaArtifact()
		art.Stumps = []Stump{{Feature: features.VectorLen, Threshold: 1}}
		assertSaveRejected(t, art)
	})

	t.Run("CorruptJSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected error loading corrupt artifact")
		}
	})
}

// assertSaveRejected checks that both Save and Load refuse an invalid
// artifact.
func assertSaveRejected(t *testing.T, art *Artifact) {
	t.Helper()
	if err := Save(filepath.Join(t.TempDir(), "model.json"), art); err == nil {
		t.Error("expected Save to reject invalid artifact")
	}
}
