package classifier

import (
	"fmt"
	"math"
	"strings"
)

// ProbabilisticModel scores a feature vector against every class.
type ProbabilisticModel interface {
	Classes() []string
	// PredictProba returns one probability per class, in Classes order.
	PredictProba(x SparseVector) ([]float64, error)
	NumFeatures() int
}

// ModelSpec is the serialisable description of a fitted classifier.
type ModelSpec struct {
	Kind    string   `yaml:"kind" json:"kind"`
	Classes []string `yaml:"classes" json:"classes"`

	// logistic_regression
	Coef       [][]float64 `yaml:"coef" json:"coef"`
	Intercept  []float64   `yaml:"intercept" json:"intercept"`
	MultiClass string      `yaml:"multi_class" json:"multi_class"`

	// multinomial_nb
	ClassLogPrior  []float64   `yaml:"class_log_prior" json:"class_log_prior"`
	FeatureLogProb [][]float64 `yaml:"feature_log_prob" json:"feature_log_prob"`
}

// NewModel builds the model described by spec.
func NewModel(spec ModelSpec) (ProbabilisticModel, error) {
	if len(spec.Classes) < 2 {
		return nil, fmt.Errorf("%w: need at least two classes, got %d", ErrInvalidArtifact, len(spec.Classes))
	}
	switch strings.ToLower(spec.Kind) {
	case "logistic_regression", "logreg":
		return newLogisticRegression(spec)
	case "multinomial_nb", "naive_bayes":
		return newMultinomialNB(spec)
	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", ErrInvalidArtifact, spec.Kind)
	}
}

// LogisticRegression is a linear model with softmax (multinomial), per-class
// sigmoid (one-vs-rest) or single-row sigmoid (binary) probabilities.
type LogisticRegression struct {
	classes   []string
	coef      [][]float64
	intercept []float64
	ovr       bool
	features  int
}

func newLogisticRegression(spec ModelSpec) (*LogisticRegression, error) {
	n := len(spec.Classes)
	rows := len(spec.Coef)
	binary := n == 2 && rows == 1
	if !binary && rows != n {
		return nil, fmt.Errorf("%w: coef has %d rows for %d classes", ErrInvalidArtifact, rows, n)
	}
	if len(spec.Intercept) != rows {
		return nil, fmt.Errorf("%w: intercept has %d entries for %d coef rows", ErrInvalidArtifact, len(spec.Intercept), rows)
	}
	features, err := rectangular(spec.Coef, "coef")
	if err != nil {
		return nil, err
	}

	return &LogisticRegression{
		classes:   spec.Classes,
		coef:      spec.Coef,
		intercept: spec.Intercept,
		ovr:       strings.EqualFold(spec.MultiClass, "ovr"),
		features:  features,
	}, nil
}

func (m *LogisticRegression) Classes() []string { return m.classes }

func (m *LogisticRegression) NumFeatures() int { return m.features }

func (m *LogisticRegression) PredictProba(x SparseVector) ([]float64, error) {
	scores := make([]float64, len(m.coef))
	for i, row := range m.coef {
		scores[i] = x.Dot(row) + m.intercept[i]
	}

	if len(m.coef) == 1 {
		p := sigmoid(scores[0])
		return []float64{1 - p, p}, nil
	}

	if m.ovr {
		var total float64
		for i, s := range scores {
			scores[i] = sigmoid(s)
			total += scores[i]
		}
		for i := range scores {
			scores[i] /= total
		}
		return scores, nil
	}

	return softmax(scores), nil
}

// MultinomialNB is a multinomial naive Bayes model.
type MultinomialNB struct {
	classes        []string
	classLogPrior  []float64
	featureLogProb [][]float64
	features       int
}

func newMultinomialNB(spec ModelSpec) (*MultinomialNB, error) {
	n := len(spec.Classes)
	if len(spec.ClassLogPrior) != n || len(spec.FeatureLogProb) != n {
		return nil, fmt.Errorf("%w: naive bayes tables do not match %d classes", ErrInvalidArtifact, n)
	}
	features, err := rectangular(spec.FeatureLogProb, "feature_log_prob")
	if err != nil {
		return nil, err
	}
	return &MultinomialNB{
		classes:        spec.Classes,
		classLogPrior:  spec.ClassLogPrior,
		featureLogProb: spec.FeatureLogProb,
		features:       features,
	}, nil
}

func (m *MultinomialNB) Classes() []string { return m.classes }

func (m *MultinomialNB) NumFeatures() int { return m.features }

// PredictProba normalises the joint log-likelihood of every class.
func (m *MultinomialNB) PredictProba(x SparseVector) ([]float64, error) {
	jll := make([]float64, len(m.classes))
	for i := range m.classes {
		jll[i] = x.Dot(m.featureLogProb[i]) + m.classLogPrior[i]
	}
	return softmax(jll), nil
}

func rectangular(rows [][]float64, name string) (int, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrInvalidArtifact, name)
	}
	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return 0, fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrInvalidArtifact, name, i, len(row), width)
		}
	}
	return width, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softmax exponentiates scores shifted by their maximum, which is the same
// as subtracting their logsumexp after normalising.
func softmax(scores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	var total float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
