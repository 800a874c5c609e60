// Package minutiae is the external matching collaborator the image
// pipeline (internal/image) delegates to: turning a raw scan into a
// minutiae template, and comparing two templates (spec §4.3, §1
// Non-goals — "no implementation of a real fingerprint matching
// algorithm"). The real algorithm (NBIS/bozorth3-equivalent) is explicitly
// out of scope; this package only needs to be good enough to drive the
// pipeline's control flow in tests and in the reference drivers.
package minutiae

// Template is a minutiae-domain representation of a scanned or enrolled
// print. Detector implementations fill Data with whatever their matcher
// needs; the image pipeline treats it as opaque.
type Template struct {
	Data []byte
}

// Detector turns a raw captured image into a Template.
type Detector interface {
	Detect(image []byte) (*Template, error)
}

// Matcher scores two templates. Score conventions are matcher-specific;
// callers compare against Matcher's own Threshold.
type Matcher interface {
	Score(a, b *Template) int
	Threshold() int
}

// Match reports whether a and b score at or above m's threshold.
func Match(m Matcher, a, b *Template) bool {
	if a == nil || b == nil {
		return false
	}
	return m.Score(a, b) >= m.Threshold()
}
