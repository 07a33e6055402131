// Package classifier ranks candidate diseases for a symptom text with a
// locally fitted vectorizer and probabilistic model.
package classifier

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"medreport/logging"
)

// DefaultTopK is how many candidates Predict returns.
const DefaultTopK = 5

// Prediction is one ranked candidate disease.
type Prediction struct {
	Disease string  `json:"disease"`
	Score   float64 `json:"score"`
}

// Classifier pairs a vectorizer with a model. The zero value and a nil
// *Classifier are valid and predict nothing.
type Classifier struct {
	vectorizer Vectorizer
	model      ProbabilisticModel
	k          int
	logger     *logging.Logger
}

// New pairs vectorizer and model, checking that their feature spaces agree.
// Either may be nil, which disables prediction.
func New(vectorizer Vectorizer, model ProbabilisticModel, logger *logging.Logger) (*Classifier, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if vectorizer != nil && model != nil && vectorizer.NumFeatures() > model.NumFeatures() {
		return nil, fmt.Errorf("%w: vectorizer produces %d features, model expects %d",
			ErrInvalidArtifact, vectorizer.NumFeatures(), model.NumFeatures())
	}
	return &Classifier{
		vectorizer: vectorizer,
		model:      model,
		k:          DefaultTopK,
		logger:     logger.Named("classifier"),
	}, nil
}

// Load reads both artifacts and builds a Classifier.
func Load(modelPath, vectorizerPath string, logger *logging.Logger) (*Classifier, error) {
	vec, err := LoadVectorizer(vectorizerPath)
	if err != nil {
		return nil, fmt.Errorf("load vectorizer: %w", err)
	}
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return New(vec, model, logger)
}

// Available reports whether both artifacts are loaded.
func (c *Classifier) Available() bool {
	return c != nil && c.vectorizer != nil && c.model != nil
}

// Classes returns the model's class labels, or nil when unavailable.
func (c *Classifier) Classes() []string {
	if !c.Available() {
		return nil
	}
	return c.model.Classes()
}

// Predict returns up to five candidates for text, most probable first.
// Without both artifacts it returns an empty, non-nil slice. No probability
// threshold is applied.
func (c *Classifier) Predict(text string) []Prediction {
	if !c.Available() {
		return []Prediction{}
	}

	x := c.vectorizer.Transform(text)
	probs, err := c.model.PredictProba(x)
	if err != nil {
		c.logger.Warn("disease prediction failed", zap.Error(err))
		return []Prediction{}
	}

	preds := TopK(c.model.Classes(), probs, c.k)
	c.logger.Debug("diseases predicted",
		zap.Int("features", x.Len()),
		zap.Int("candidates", len(preds)))
	return preds
}

// TopK pairs labels with probabilities and returns the k most probable,
// ties kept in class order.
func TopK(classes []string, probs []float64, k int) []Prediction {
	n := len(classes)
	if len(probs) < n {
		n = len(probs)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	if k > n {
		k = n
	}
	if k < 0 {
		k = 0
	}

	out := make([]Prediction, 0, k)
	for _, i := range idx[:k] {
		out = append(out, Prediction{Disease: classes[i], Score: probs[i]})
	}
	return out
}
