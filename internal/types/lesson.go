package types

import (
	"encoding/json"
	"strings"
)

// Segment is one ordered piece of lesson content. Mermaid and ImagePrompt are
// present only when the segment actually carries a diagram source or an image
// prompt; nil means "no asset for this slot".
type Segment struct {
	Section     string  `json:"section,omitempty"`
	Kind        string  `json:"kind,omitempty"`
	Text        string  `json:"text"`
	Format      string  `json:"format,omitempty"`
	Mermaid     *string `json:"mermaid,omitempty"`
	ImagePrompt *string `json:"image_prompt,omitempty"`
	Alt         *string `json:"alt,omitempty"`
}

// UnmarshalJSON tolerates the junk models put into optional fields: booleans,
// numbers, empty or whitespace-only strings all decode to an absent field.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var aux struct {
		Section     string          `json:"section"`
		Kind        string          `json:"kind"`
		Text        string          `json:"text"`
		Format      string          `json:"format"`
		Mermaid     json.RawMessage `json:"mermaid"`
		ImagePrompt json.RawMessage `json:"image_prompt"`
		Alt         json.RawMessage `json:"alt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Section = aux.Section
	s.Kind = aux.Kind
	s.Text = aux.Text
	s.Format = aux.Format
	s.Mermaid = coerceOptionalString(aux.Mermaid)
	s.ImagePrompt = coerceOptionalString(aux.ImagePrompt)
	s.Alt = coerceOptionalString(aux.Alt)
	return nil
}

func coerceOptionalString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

type LessonDraft struct {
	Title     string    `json:"title"`
	Segments  []Segment `json:"segments"`
	Narration *string   `json:"narration,omitempty"`
}

// EnrichedSegment is a Segment plus the on-disk artifacts produced for it.
// An empty path means rendering for that asset did not succeed.
type EnrichedSegment struct {
	Segment
	DiagramPath string `json:"diagram_path,omitempty"`
	DiagramURL  string `json:"diagram_url,omitempty"`
	ImagePath   string `json:"image_path,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// LessonWithAssets is the outbound shape of /lesson_rendered.
type LessonWithAssets struct {
	Title         string            `json:"title"`
	Segments      []EnrichedSegment `json:"segments"`
	Narration     *string           `json:"narration,omitempty"`
	RunID         string            `json:"run_id"`
	ArtifactsRoot string            `json:"artifacts_root"`
}
