package types

// TaskSpec is the normalized form of a casual user request. It is produced
// once by the normalize step and treated as read-only afterwards.
type TaskSpec struct {
	Topic      string   `json:"topic"`
	Audience   string   `json:"audience,omitempty"`
	Language   string   `json:"language,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Outputs    []string `json:"outputs,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	ImageIdeas []string `json:"image_ideas,omitempty"`

	// Minimum asset counts the rendered lesson must satisfy.
	MinDiagrams int `json:"min_diagrams,omitempty"`
	MinImages   int `json:"min_images,omitempty"`
}

func (t TaskSpec) WantsOutput(kind string) bool {
	for _, o := range t.Outputs {
		if o == kind {
			return true
		}
	}
	return false
}
