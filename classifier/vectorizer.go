package classifier

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Vectorizer maps text into the feature space the model was fitted on.
type Vectorizer interface {
	Transform(text string) SparseVector
	NumFeatures() int
}

// SparseVector holds the non-zero features of one document, ordered by index.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Len returns the number of non-zero entries.
func (v SparseVector) Len() int {
	return len(v.Indices)
}

// Dot returns the dot product with a dense row.
func (v SparseVector) Dot(row []float64) float64 {
	var sum float64
	for i, idx := range v.Indices {
		if idx < len(row) {
			sum += v.Values[i] * row[idx]
		}
	}
	return sum
}

// tokenPattern matches runs of two or more word characters, like the
// default `(?u)\b\w\w+\b` used when the vectorizer was fitted.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Norm is the row normalisation applied after weighting.
type Norm string

const (
	NormL2   Norm = "l2"
	NormL1   Norm = "l1"
	NormNone Norm = "none"
)

// TextVectorizer is a bag-of-n-grams vectorizer with optional IDF weighting.
type TextVectorizer struct {
	vocabulary  map[string]int
	idf         []float64
	lowercase   bool
	minN, maxN  int
	norm        Norm
	sublinearTF bool
	binary      bool
	stopWords   map[string]struct{}
	numFeatures int
}

// VectorizerSpec is the serialisable description of a fitted vectorizer.
// An empty IDF makes it a plain count vectorizer.
type VectorizerSpec struct {
	Kind        string         `yaml:"kind" json:"kind"`
	Lowercase   *bool          `yaml:"lowercase" json:"lowercase"`
	NgramRange  []int          `yaml:"ngram_range" json:"ngram_range"`
	Vocabulary  map[string]int `yaml:"vocabulary" json:"vocabulary"`
	IDF         []float64      `yaml:"idf" json:"idf"`
	Norm        string         `yaml:"norm" json:"norm"`
	SublinearTF bool           `yaml:"sublinear_tf" json:"sublinear_tf"`
	Binary      bool           `yaml:"binary" json:"binary"`
	StopWords   []string       `yaml:"stop_words" json:"stop_words"`
}

// NewTextVectorizer validates spec and builds the vectorizer.
func NewTextVectorizer(spec VectorizerSpec) (*TextVectorizer, error) {
	if len(spec.Vocabulary) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrInvalidArtifact)
	}

	kind := strings.ToLower(spec.Kind)
	switch kind {
	case "", "tfidf":
		if kind == "tfidf" && len(spec.IDF) == 0 {
			return nil, fmt.Errorf("%w: tfidf vectorizer without idf", ErrInvalidArtifact)
		}
	case "count":
		if len(spec.IDF) > 0 {
			return nil, fmt.Errorf("%w: count vectorizer with idf", ErrInvalidArtifact)
		}
	default:
		return nil, fmt.Errorf("%w: unknown vectorizer kind %q", ErrInvalidArtifact, spec.Kind)
	}

	numFeatures := 0
	for term, idx := range spec.Vocabulary {
		if idx < 0 {
			return nil, fmt.Errorf("%w: negative column for %q", ErrInvalidArtifact, term)
		}
		if idx+1 > numFeatures {
			numFeatures = idx + 1
		}
	}
	if len(spec.IDF) > 0 && len(spec.IDF) != numFeatures {
		return nil, fmt.Errorf("%w: idf has %d entries for %d features", ErrInvalidArtifact, len(spec.IDF), numFeatures)
	}

	minN, maxN := 1, 1
	switch len(spec.NgramRange) {
	case 0:
	case 2:
		minN, maxN = spec.NgramRange[0], spec.NgramRange[1]
	default:
		return nil, fmt.Errorf("%w: ngram_range must have two entries", ErrInvalidArtifact)
	}
	if minN < 1 || maxN < minN {
		return nil, fmt.Errorf("%w: bad ngram_range [%d, %d]", ErrInvalidArtifact, minN, maxN)
	}

	norm := Norm(strings.ToLower(spec.Norm))
	switch norm {
	case "":
		norm = NormL2
		if kind == "count" {
			norm = NormNone
		}
	case NormL1, NormL2, NormNone:
	default:
		return nil, fmt.Errorf("%w: unknown norm %q", ErrInvalidArtifact, spec.Norm)
	}

	lowercase := true
	if spec.Lowercase != nil {
		lowercase = *spec.Lowercase
	}

	var stop map[string]struct{}
	if len(spec.StopWords) > 0 {
		stop = make(map[string]struct{}, len(spec.StopWords))
		for _, w := range spec.StopWords {
			stop[w] = struct{}{}
		}
	}

	return &TextVectorizer{
		vocabulary:  spec.Vocabulary,
		idf:         spec.IDF,
		lowercase:   lowercase,
		minN:        minN,
		maxN:        maxN,
		norm:        norm,
		sublinearTF: spec.SublinearTF,
		binary:      spec.Binary,
		stopWords:   stop,
		numFeatures: numFeatures,
	}, nil
}

// NumFeatures returns the width of the feature space.
func (v *TextVectorizer) NumFeatures() int {
	return v.numFeatures
}

// Transform counts in-vocabulary n-grams, then applies sublinear TF, IDF
// and normalisation as configured. Unknown terms are ignored.
func (v *TextVectorizer) Transform(text string) SparseVector {
	counts := make(map[int]float64)
	for _, gram := range v.ngrams(v.tokenize(text)) {
		if idx, ok := v.vocabulary[gram]; ok {
			counts[idx]++
		}
	}

	out := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		out.Indices = append(out.Indices, idx)
	}
	sort.Ints(out.Indices)

	for _, idx := range out.Indices {
		tf := counts[idx]
		switch {
		case v.binary:
			tf = 1
		case v.sublinearTF:
			tf = 1 + math.Log(tf)
		}
		if len(v.idf) > 0 {
			tf *= v.idf[idx]
		}
		out.Values = append(out.Values, tf)
	}

	normalize(out.Values, v.norm)
	return out
}

func (v *TextVectorizer) tokenize(text string) []string {
	if v.lowercase {
		text = strings.ToLower(text)
	}
	tokens := tokenPattern.FindAllString(text, -1)
	if v.stopWords == nil {
		return tokens
	}
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, stop := v.stopWords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	return kept
}

func (v *TextVectorizer) ngrams(tokens []string) []string {
	if v.minN == 1 && v.maxN == 1 {
		return tokens
	}
	var out []string
	for n := v.minN; n <= v.maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

func normalize(values []float64, norm Norm) {
	var total float64
	switch norm {
	case NormL2:
		for _, x := range values {
			total += x * x
		}
		total = math.Sqrt(total)
	case NormL1:
		for _, x := range values {
			total += math.Abs(x)
		}
	default:
		return
	}
	if total == 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
