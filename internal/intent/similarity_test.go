package intent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSceneSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, SceneSimilarity("", ""))
	assert.Equal(t, 1.0, SceneSimilarity("a crowded plaza", "a crowded plaza"))
	assert.Equal(t, 0.0, SceneSimilarity("a", "b"))

	// Unrelated scenes score near zero.
	low := SceneSimilarity("neon city street with dancing avatars", "quiet forest clearing, birdsong")
	assert.Less(t, low, 0.3)

	// Minor rewording stays above the default threshold.
	high := SceneSimilarity(
		"two players standing near a mirror, one waving",
		"two players standing by a mirror, one is waving",
	)
	assert.Greater(t, high, 0.58)
}

func TestSceneSimilarityPrefixBound(t *testing.T) {
	base := strings.Repeat("same scene text. ", 30) // well past the prefix cap
	a := base + "completely different tail about a dragon avatar"
	b := base + "another tail mentioning a spaceship lobby"
	assert.Equal(t, 1.0, SceneSimilarity(a, b))
}

func TestSceneSimilaritySymmetric(t *testing.T) {
	a, b := "a calm rooftop at night", "a busy rooftop party at night"
	assert.InDelta(t, SceneSimilarity(a, b), SceneSimilarity(b, a), 1e-9)
}
