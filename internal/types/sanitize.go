package types

import "strings"

// Sanitized returns a copy of the segment whose optional asset fields are
// either a non-empty trimmed string or nil. Applying it twice is the same as
// applying it once, and it never fails: unusable values degrade to nil.
func (s Segment) Sanitized() Segment {
	s.Mermaid = normalizeOptional(s.Mermaid)
	s.ImagePrompt = normalizeOptional(s.ImagePrompt)
	s.Alt = normalizeOptional(s.Alt)
	return s
}

// HasMermaid reports whether the segment is diagram-bearing once sanitized.
func (s Segment) HasMermaid() bool {
	return normalizeOptional(s.Mermaid) != nil
}

// HasImagePrompt reports whether the segment is image-bearing once sanitized.
func (s Segment) HasImagePrompt() bool {
	return normalizeOptional(s.ImagePrompt) != nil
}

func SanitizeSegments(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = s.Sanitized()
	}
	return out
}

func CountAssets(segs []Segment) (diagrams, images int) {
	for _, s := range segs {
		if s.HasMermaid() {
			diagrams++
		}
		if s.HasImagePrompt() {
			images++
		}
	}
	return diagrams, images
}

func normalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	if trimmed == *v {
		return v
	}
	return &trimmed
}
