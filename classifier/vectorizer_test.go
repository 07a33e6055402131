package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestTextVectorizer_Transform(t *testing.T) {
	v, err := NewTextVectorizer(VectorizerSpec{
		Kind:       "tfidf",
		NgramRange: []int{1, 2},
		Vocabulary: map[string]int{"sore": 0, "throat": 1, "sore throat": 2, "fever": 3},
		IDF:        []float64{1, 1, 2, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, v.NumFeatures())

	x := v.Transform("Sore throat, fever & a sore back")

	// sore x2, throat x1, "sore throat" x1 (idf 2), fever x1; single letters dropped
	assert.Equal(t, []int{0, 1, 2, 3}, x.Indices)
	raw := []float64{2, 1, 2, 1}
	norm := math.Sqrt(4 + 1 + 4 + 1)
	for i, want := range raw {
		assert.InDelta(t, want/norm, x.Values[i], 1e-12)
	}
}

func TestTextVectorizer_Options(t *testing.T) {
	vocab := map[string]int{"fever": 0, "cough": 1}

	t.Run("count without norm", func(t *testing.T) {
		v, err := NewTextVectorizer(VectorizerSpec{Kind: "count", Vocabulary: vocab})
		require.NoError(t, err)
		x := v.Transform("fever fever cough")
		assert.Equal(t, []float64{2, 1}, x.Values)
	})

	t.Run("sublinear tf", func(t *testing.T) {
		v, err := NewTextVectorizer(VectorizerSpec{Kind: "count", Vocabulary: vocab, SublinearTF: true})
		require.NoError(t, err)
		x := v.Transform("fever fever fever")
		assert.InDelta(t, 1+math.Log(3), x.Values[0], 1e-12)
	})

	t.Run("binary with l1", func(t *testing.T) {
		v, err := NewTextVectorizer(VectorizerSpec{Kind: "count", Vocabulary: vocab, Binary: true, Norm: "l1"})
		require.NoError(t, err)
		x := v.Transform("fever fever cough")
		assert.Equal(t, []float64{0.5, 0.5}, x.Values)
	})

	t.Run("case sensitive", func(t *testing.T) {
		v, err := NewTextVectorizer(VectorizerSpec{Kind: "count", Vocabulary: vocab, Lowercase: boolPtr(false)})
		require.NoError(t, err)
		assert.Equal(t, 0, v.Transform("FEVER").Len())
	})

	t.Run("stop words", func(t *testing.T) {
		v, err := NewTextVectorizer(VectorizerSpec{
			Kind:       "count",
			NgramRange: []int{2, 2},
			Vocabulary: map[string]int{"fever cough": 0},
			StopWords:  []string{"and"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, v.Transform("fever and cough").Len())
	})

	t.Run("unknown words", func(t *testing.T) {
		v, err := NewTextVectorizer(VectorizerSpec{Kind: "count", Vocabulary: vocab})
		require.NoError(t, err)
		assert.Equal(t, 0, v.Transform("nothing relevant").Len())
	})
}

func TestNewTextVectorizer_Invalid(t *testing.T) {
	vocab := map[string]int{"a1": 0, "b2": 1}
	specs := map[string]VectorizerSpec{
		"empty vocabulary": {Kind: "tfidf"},
		"tfidf no idf":     {Kind: "tfidf", Vocabulary: vocab},
		"idf mismatch":     {Kind: "tfidf", Vocabulary: vocab, IDF: []float64{1}},
		"bad ngram":        {Kind: "count", Vocabulary: vocab, NgramRange: []int{2, 1}},
		"bad norm":         {Kind: "count", Vocabulary: vocab, Norm: "max"},
		"unknown kind":     {Kind: "hashing", Vocabulary: vocab},
	}

	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := NewTextVectorizer(spec)
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}
