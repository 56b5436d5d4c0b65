// Offline trainer for the Kestrel scoring model.
//
// Usage:
//   go run cmd/trainer/main.go -out models/scoring_model.json
//
// This tool:
//   1. Generates a synthetic labeled return dataset
//   2. Fits a gradient-boosted stump ensemble with a logistic loss
//   3. Evaluates accuracy, precision, recall, F1, and k-fold CV
//   4. Runs the hand-built validation scenarios
//   5. Writes the model artifact consumed by the serving path
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/opensource-commerce/kestrel/internal/predict"
	"github.com/opensource-commerce/kestrel/internal/trainer"
)

func main() {
	opts := trainer.DefaultOptions()
	flag.IntVar(&opts.Samples, "samples", opts.Samples, "Number of synthetic samples to generate")
	flag.IntVar(&opts.Rounds, "rounds", opts.Rounds, "Boosting rounds")
	flag.Float64Var(&opts.LearningRate, "lr", opts.LearningRate, "Learning rate")
	flag.IntVar(&opts.CVFolds, "folds", opts.CVFolds, "Cross-validation folds (0 to skip)")
	flag.Int64Var(&opts.Seed, "seed", opts.Seed, "Dataset seed")
	out := flag.String("out", "models/scoring_model.json", "Output artifact path")
	asLabel := flag.Bool("label-only", false, "Export a label-only artifact without calibrated probabilities")
	flag.Parse()

	fmt.Printf("Training with %d samples, %d rounds, lr %.2f\n\n", opts.Samples, opts.Rounds, opts.LearningRate)

	result, err := trainer.Train(opts)
	if err != nil {
		fmt.Printf("ERROR: training failed: %v\n", err)
		os.Exit(1)
	}

	m := result.Metrics
	fmt.Println("Held-out metrics:")
	fmt.Printf("  Accuracy:   %.4f\n", m.Accuracy)
	fmt.Printf("  Precision:  %.4f\n", m.Precision)
	fmt.Printf("  Recall:     %.4f\n", m.Recall)
	fmt.Printf("  F1-Score:   %.4f\n", m.F1)
	if opts.CVFolds > 1 {
		fmt.Printf("  CV:         %.4f ± %.4f (%d folds)\n", m.CVMean, m.CVStd, opts.CVFolds)
	}
	fmt.Printf("  Train/Test: %d / %d samples\n", m.TrainingSamples, m.TestSamples)

	fmt.Println("\nTop features:")
	for i, imp := range result.Importance {
		if i >= 8 || imp.Weight == 0 {
			break
		}
		fmt.Printf("  %-24s %.4f\n", imp.Feature, imp.Weight)
	}

	fmt.Println("\nValidation scenarios:")
	scenarios, scenarioErr := trainer.ValidateScenarios(result.Artifact)
	for _, sc := range scenarios {
		status := "PASS"
		if !sc.Passed {
			status = "FAIL"
		}
		fmt.Printf("  [%s] %-45s p=%.3f", status, sc.Name, sc.Probability)
		if sc.Detail != "" {
			fmt.Printf("  (%s)", sc.Detail)
		}
		fmt.Println()
	}
	if scenarioErr != nil {
		fmt.Printf("\nERROR: %v, artifact not written\n", scenarioErr)
		os.Exit(1)
	}

	if *asLabel {
		result.Artifact.Kind = predict.KindLabelStumps
	}
	if err := predict.Save(*out, result.Artifact); err != nil {
		fmt.Printf("ERROR: failed to write artifact: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nModel %s written to %s (%d stumps)\n", result.Artifact.Version, *out, len(result.Artifact.Stumps))
}
