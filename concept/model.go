package concept

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
)

// Model is a trained per-embedding concept classifier: a linear
// decision function over the embedding vector, followed by a Platt
// scaling curve so score=0.5 is the decision boundary (spec section
// 4.F). No pack repo carries a ML/stats library, so training is a
// hand-rolled batch gradient descent over stdlib `math` — justified,
// there is no gonum or similar dependency anywhere in the retrieval
// pack to ground an alternative on.
type Model struct {
	Weights []float64
	Bias    float64
	PlattA  float64
	PlattB  float64
}

// Metrics is the per-model report of spec section 4.F: ROC AUC, F1 and
// precision/recall at threshold 0.5, and the positive/negative counts.
// Every figure is measured on the training examples themselves; no
// examples are held out and there is no cross-validation.
type Metrics struct {
	ROCAUC    float64
	F1        float64
	Precision float64
	Recall    float64
	Positives int
	Negatives int
}

const (
	learningRate = 0.1
	l2Lambda     = 0.01
	epochs       = 200
)

// Train fits a logistic classifier over (vectors, labels) and a Platt
// calibration curve over its raw margins, returning the model and its
// metrics. The Platt curve and the metrics are both computed on the same
// examples the classifier was fit on. It refuses to train a concept with zero
// negative examples (spec section 4.F invariant).
func Train(vectors [][]float32, labels []bool) (*Model, Metrics, error) {
	pos, neg := 0, 0
	for _, l := range labels {
		if l {
			pos++
		} else {
			neg++
		}
	}
	if neg == 0 {
		return nil, Metrics{}, newErr(NeedsNegatives, "concept has no negative examples")
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, Metrics{}, newErr(EmbeddingMismatch, "no embedding vectors to train on")
	}
	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim {
			return nil, Metrics{}, newErr(EmbeddingMismatch, "inconsistent embedding dimension among examples")
		}
	}

	weights, bias := fitLogistic(vectors, labels, dim)

	margins := make([]float64, len(vectors))
	for i, v := range vectors {
		margins[i] = dot(weights, v) + bias
	}
	plattA, plattB := fitPlatt(margins, labels)

	scores := make([]float64, len(margins))
	for i, m := range margins {
		scores[i] = sigmoid(plattA*m + plattB)
	}
	metrics := computeMetrics(scores, labels, pos, neg)

	return &Model{Weights: weights, Bias: bias, PlattA: plattA, PlattB: plattB}, metrics, nil
}

// Score evaluates the model on a batch of embedding vectors.
func (m *Model) Score(vectors [][]float32) []float64 {
	out := make([]float64, len(vectors))
	for i, v := range vectors {
		margin := dot(m.Weights, v) + m.Bias
		out[i] = sigmoid(m.PlattA*margin + m.PlattB)
	}
	return out
}

func dot(weights []float64, v []float32) float64 {
	var sum float64
	n := len(weights)
	if len(v) < n {
		n = len(v)
	}
	for i := 0; i < n; i++ {
		sum += weights[i] * float64(v[i])
	}
	return sum
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// fitLogistic runs full-batch gradient descent with L2 regularization
// on the weight vector (not the bias).
func fitLogistic(vectors [][]float32, labels []bool, dim int) ([]float64, float64) {
	weights := make([]float64, dim)
	var bias float64
	n := float64(len(vectors))

	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, dim)
		var gradB float64
		for i, v := range vectors {
			pred := sigmoid(dot(weights, v) + bias)
			target := 0.0
			if labels[i] {
				target = 1.0
			}
			diff := pred - target
			for j := 0; j < dim && j < len(v); j++ {
				gradW[j] += diff * float64(v[j])
			}
			gradB += diff
		}
		for j := range weights {
			gradW[j] = gradW[j]/n + l2Lambda*weights[j]
			weights[j] -= learningRate * gradW[j]
		}
		bias -= learningRate * (gradB / n)
	}
	return weights, bias
}

// fitPlatt fits the 1-D logistic calibration curve score = sigmoid(A*margin + B)
// by gradient descent, the same primitive as fitLogistic reduced to one
// input dimension (spec section 4.F: "reusing the same gradient-descent
// primitive as training").
func fitPlatt(margins []float64, labels []bool) (float64, float64) {
	a, b := 1.0, 0.0
	n := float64(len(margins))
	for epoch := 0; epoch < epochs; epoch++ {
		var gradA, gradB float64
		for i, m := range margins {
			pred := sigmoid(a*m + b)
			target := 0.0
			if labels[i] {
				target = 1.0
			}
			diff := pred - target
			gradA += diff * m
			gradB += diff
		}
		a -= learningRate * (gradA / n)
		b -= learningRate * (gradB / n)
	}
	return a, b
}

func computeMetrics(scores []float64, labels []bool, pos, neg int) Metrics {
	var tp, fp, fn, tn int
	for i, s := range scores {
		predPos := s > 0.5
		if predPos && labels[i] {
			tp++
		} else if predPos && !labels[i] {
			fp++
		} else if !predPos && labels[i] {
			fn++
		} else {
			tn++
		}
	}
	precision := 0.0
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return Metrics{
		ROCAUC:    rocAUC(scores, labels),
		F1:        f1,
		Precision: precision,
		Recall:    recall,
		Positives: pos,
		Negatives: neg,
	}
}

// rocAUC computes the Mann-Whitney U statistic: the probability a
// random positive scores above a random negative.
func rocAUC(scores []float64, labels []bool) float64 {
	type pair struct {
		score float64
		label bool
	}
	pairs := make([]pair, len(scores))
	for i := range scores {
		pairs[i] = pair{scores[i], labels[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	var posCount, negCount int
	for _, p := range pairs {
		if p.label {
			posCount++
		} else {
			negCount++
		}
	}
	if posCount == 0 || negCount == 0 {
		return 0.5
	}

	var rankSum float64
	i := 0
	for i < len(pairs) {
		j := i
		for j < len(pairs) && pairs[j].score == pairs[i].score {
			j++
		}
		avgRank := float64(i+1+j) / 2.0
		for k := i; k < j; k++ {
			if pairs[k].label {
				rankSum += avgRank
			}
		}
		i = j
	}
	u := rankSum - float64(posCount)*float64(posCount+1)/2.0
	return u / (float64(posCount) * float64(negCount))
}

func encodeWeights(weights []float64) []byte {
	buf := make([]byte, len(weights)*8)
	for i, w := range weights {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(w))
	}
	return buf
}

func decodeWeights(data []byte) []float64 {
	n := len(data) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}

func encodeMetrics(m Metrics) []byte {
	data, _ := json.Marshal(m)
	return data
}

func decodeMetrics(data []byte) Metrics {
	var m Metrics
	_ = json.Unmarshal(data, &m)
	return m
}
