package trainer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/opensource-commerce/kestrel/internal/features"
	"github.com/opensource-commerce/kestrel/internal/predict"
)

// Options controls a training run.
type Options struct {
	Samples      int
	Rounds       int
	LearningRate float64
	TestFraction float64
	CVFolds      int
	Seed         int64
}

// DefaultOptions matches the production training configuration.
func DefaultOptions() Options {
	return Options{
		Samples:      10000,
		Rounds:       100,
		LearningRate: 0.1,
		TestFraction: 0.2,
		CVFolds:      5,
		Seed:         42,
	}
}

// Metrics summarizes held-out model quality.
type Metrics struct {
	Accuracy        float64 `json:"accuracy"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	F1              float64 `json:"f1"`
	CVMean          float64 `json:"cv_mean"`
	CVStd           float64 `json:"cv_std"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
}

// Importance is one feature's share of ensemble weight.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// Result bundles the trained artifact with its evaluation.
type Result struct {
	Artifact   *predict.Artifact
	Metrics    Metrics
	Importance []Importance
}

// Train generates a synthetic dataset, fits a boosted-stump ensemble, and
// evaluates it on a stratified held-out split plus k-fold cross validation.
func Train(opts Options) (*Result, error) {
	if opts.Samples < 100 {
		return nil, fmt.Errorf("trainer: need at least 100 samples, got %d", opts.Samples)
	}
	if opts.Rounds <= 0 || opts.LearningRate <= 0 {
		return nil, fmt.Errorf("trainer: rounds and learning rate must be positive")
	}

	samples := GenerateDataset(opts.Samples, opts.Seed)
	train, test := stratifiedSplit(samples, opts.TestFraction, opts.Seed)

	art := fit(train, opts)

	m := evaluate(art, test)
	m.TrainingSamples = len(train)
	m.TestSamples = len(test)
	if opts.CVFolds > 1 {
		m.CVMean, m.CVStd = crossValidate(samples, opts)
	}

	return &Result{
		Artifact:   art,
		Metrics:    m,
		Importance: featureImportance(art),
	}, nil
}

// fit runs gradient boosting with a logistic loss over depth-1 stumps. Leaf
// responses use the second-order Newton step, scaled by the learning rate.
func fit(samples []Sample, opts Options) *predict.Artifact {
	n := len(samples)
	vecs := make([]features.Vector, n)
	labels := make([]float64, n)
	pos := 0
	for i, s := range samples {
		vecs[i] = features.Extract(s.Bag)
		labels[i] = float64(s.Label)
		pos += s.Label
	}

	// Initialize the raw score at the log-odds of the base rate.
	base := float64(pos) / float64(n)
	base = math.Min(math.Max(base, 1e-6), 1-1e-6)
	bias := math.Log(base / (1 - base))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = bias
	}

	stumps := make([]predict.Stump, 0, opts.Rounds)
	grad := make([]float64, n)
	hess := make([]float64, n)
	for round := 0; round < opts.Rounds; round++ {
		for i := range raw {
			p := sigmoid(raw[i])
			grad[i] = p - labels[i]
			hess[i] = p * (1 - p)
		}

		stump, ok := bestStump(vecs, grad, hess)
		if !ok {
			break
		}
		stump.Left *= opts.LearningRate
		stump.Right *= opts.LearningRate
		stumps = append(stumps, stump)

		for i := range raw {
			if vecs[i][stump.Feature] < stump.Threshold {
				raw[i] += stump.Left
			} else {
				raw[i] += stump.Right
			}
		}
	}

	return &predict.Artifact{
		Version:      time.Now().UTC().Format("20060102T150405Z"),
		Kind:         predict.KindBoostedStumps,
		FeatureNames: append([]string(nil), features.Names...),
		Bias:         bias,
		Stumps:       stumps,
	}
}

// candidate split points per feature per round
const maxThresholds = 16

// hessian regularization, keeps leaf values bounded on tiny partitions
const lambda = 1.0

// bestStump searches every feature for the split with the largest loss
// reduction and returns it with unscaled Newton leaf values.
func bestStump(vecs []features.Vector, grad, hess []float64) (predict.Stump, bool) {
	n := len(vecs)
	var sumG, sumH float64
	for i := 0; i < n; i++ {
		sumG += grad[i]
		sumH += hess[i]
	}
	rootScore := sumG * sumG / (sumH + lambda)

	best := predict.Stump{}
	bestGain := 1e-9
	found := false

	vals := make([]float64, n)
	for f := 0; f < features.VectorLen; f++ {
		for i := 0; i < n; i++ {
			vals[i] = vecs[i][f]
		}
		for _, thr := range thresholds(vals) {
			var lg, lh float64
			for i := 0; i < n; i++ {
				if vals[i] < thr {
					lg += grad[i]
					lh += hess[i]
				}
			}
			rg := sumG - lg
			rh := sumH - lh
			gain := lg*lg/(lh+lambda) + rg*rg/(rh+lambda) - rootScore
			if gain > bestGain {
				bestGain = gain
				best = predict.Stump{
					Feature:   f,
					Threshold: thr,
					Left:      -lg / (lh + lambda),
					Right:     -rg / (rh + lambda),
				}
				found = true
			}
		}
	}
	return best, found
}

// thresholds returns up to maxThresholds quantile split points for one
// feature column. Constant columns yield none.
func thresholds(vals []float64) []float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	if sorted[0] == sorted[len(sorted)-1] {
		return nil
	}
	out := make([]float64, 0, maxThresholds)
	seen := math.Inf(-1)
	for k := 1; k <= maxThresholds; k++ {
		idx := k * len(sorted) / (maxThresholds + 1)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		v := sorted[idx]
		if v > seen && v > sorted[0] {
			out = append(out, v)
			seen = v
		}
	}
	return out
}

// stratifiedSplit shuffles and splits samples preserving the label ratio.
func stratifiedSplit(samples []Sample, testFraction float64, seed int64) (train, test []Sample) {
	rng := rand.New(rand.NewSource(seed + 1))
	var pos, neg []Sample
	for _, s := range samples {
		if s.Label == 1 {
			pos = append(pos, s)
		} else {
			neg = append(neg, s)
		}
	}
	for _, group := range [][]Sample{pos, neg} {
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		cut := int(float64(len(group)) * testFraction)
		test = append(test, group[:cut]...)
		train = append(train, group[cut:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test
}

// evaluate scores the artifact against held-out samples.
func evaluate(art *predict.Artifact, test []Sample) Metrics {
	var tp, fp, tn, fn int
	for _, s := range test {
		pred := 0
		if Proba(art, features.Extract(s.Bag)) >= 0.5 {
			pred = 1
		}
		switch {
		case pred == 1 && s.Label == 1:
			tp++
		case pred == 1 && s.Label == 0:
			fp++
		case pred == 0 && s.Label == 0:
			tn++
		default:
			fn++
		}
	}

	m := Metrics{}
	total := tp + fp + tn + fn
	if total > 0 {
		m.Accuracy = float64(tp+tn) / float64(total)
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// crossValidate runs k-fold CV over the full dataset and returns the mean and
// standard deviation of fold accuracy.
func crossValidate(samples []Sample, opts Options) (mean, std float64) {
	k := opts.CVFolds
	rng := rand.New(rand.NewSource(opts.Seed + 2))
	shuffled := append([]Sample(nil), samples...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	accs := make([]float64, 0, k)
	foldSize := len(shuffled) / k
	for fold := 0; fold < k; fold++ {
		lo := fold * foldSize
		hi := lo + foldSize
		if fold == k-1 {
			hi = len(shuffled)
		}
		test := shuffled[lo:hi]
		train := make([]Sample, 0, len(shuffled)-len(test))
		train = append(train, shuffled[:lo]...)
		train = append(train, shuffled[hi:]...)

		art := fit(train, opts)
		accs = append(accs, evaluate(art, test).Accuracy)
	}

	for _, a := range accs {
		mean += a
	}
	mean /= float64(len(accs))
	for _, a := range accs {
		std += (a - mean) * (a - mean)
	}
	std = math.Sqrt(std / float64(len(accs)))
	return mean, std
}

// featureImportance ranks features by their share of total absolute leaf
// weight across the ensemble.
func featureImportance(art *predict.Artifact) []Importance {
	weights := make([]float64, features.VectorLen)
	var total float64
	for _, s := range art.Stumps {
		w := math.Abs(s.Left) + math.Abs(s.Right)
		weights[s.Feature] += w
		total += w
	}

	out := make([]Importance, 0, features.VectorLen)
	for f, w := range weights {
		if total > 0 {
			w /= total
		}
		out = append(out, Importance{Feature: features.Names[f], Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// Proba runs the raw artifact forward without going through the predictor.
// The trainer evaluates artifacts before they are written to disk.
func Proba(art *predict.Artifact, vec features.Vector) float64 {
	raw := art.Bias
	for _, s := range art.Stumps {
		if vec[s.Feature] < s.Threshold {
			raw += s.Left
		} else {
			raw += s.Right
		}
	}
	return sigmoid(raw)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
