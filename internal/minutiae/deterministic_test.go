package minutiae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicMatcherSameImageMatches(t *testing.T) {
	m := NewDeterministicMatcher(templateSize)
	img := []byte("a synthetic fingerprint scan, not a real one")

	a, err := m.Detect(img)
	require.NoError(t, err)
	b, err := m.Detect(append([]byte(nil), img...))
	require.NoError(t, err)

	assert.True(t, Match(m, a, b))
}

func TestDeterministicMatcherDifferentImagesDiffer(t *testing.T) {
	m := NewDeterministicMatcher(templateSize)

	a, _ := m.Detect([]byte("finger one scan data"))
	b, _ := m.Detect([]byte("an entirely different finger"))

	assert.False(t, Match(m, a, b))
}

func TestMatchNilTemplates(t *testing.T) {
	m := NewDeterministicMatcher(1)
	assert.False(t, Match(m, nil, nil))
}
