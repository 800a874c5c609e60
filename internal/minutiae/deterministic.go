package minutiae

import "bytes"

// DeterministicMatcher is NOT a real fingerprint matcher (spec §1
// Non-goals). It exists solely to give the image pipeline and the
// reference drivers something concrete to call in tests: Detect hashes
// the raw image down to a fixed-size template with a trivial rolling sum,
// and Score counts matching bytes, so two captures of "the same" synthetic
// image template deterministically compare as equal and two different
// ones don't.
type DeterministicMatcher struct {
	threshold int
}

// NewDeterministicMatcher builds a matcher with the given score threshold.
func NewDeterministicMatcher(threshold int) *DeterministicMatcher {
	return &DeterministicMatcher{threshold: threshold}
}

const templateSize = 32

// Detect reduces image to a fixed-size fingerprint-shaped template via a
// simple byte-folding hash. Deterministic: the same image always yields
// the same template.
func (d *DeterministicMatcher) Detect(image []byte) (*Template, error) {
	out := make([]byte, templateSize)
	for i, b := range image {
		out[i%templateSize] ^= b
		out[(i*31)%templateSize] += b
	}
	return &Template{Data: out}, nil
}

// Score counts the number of matching bytes at corresponding positions.
func (d *DeterministicMatcher) Score(a, b *Template) int {
	if a == nil || b == nil || len(a.Data) != len(b.Data) {
		return 0
	}
	if bytes.Equal(a.Data, b.Data) {
		return len(a.Data)
	}
	score := 0
	for i := range a.Data {
		if a.Data[i] == b.Data[i] {
			score++
		}
	}
	return score
}

// Threshold returns the configured minimum score for a match.
func (d *DeterministicMatcher) Threshold() int { return d.threshold }
