package promptstyle

import (
	"fmt"
	"strings"
)

// schematicStyle keeps generated lesson imagery consistent: flat vector
// schematics rather than photos or scenery.
const schematicStyle = "clean 2D vector schematic, flat, white background, thin black outlines, limited accent colors, clear labels and arrows, no people, no scenery"

// EnrichImagePrompt injects the lesson topic and the house style into a raw
// image prompt before it is submitted to the image oracle.
func EnrichImagePrompt(prompt string, topic string) string {
	prompt = collapseWhitespace(prompt)
	topic = strings.TrimSpace(topic)

	if topic != "" && !strings.Contains(strings.ToLower(prompt), strings.ToLower(topic)) {
		prompt = fmt.Sprintf("Educational illustration for %q: %s", topic, prompt)
	}
	if !strings.Contains(strings.ToLower(prompt), "schematic") {
		prompt = prompt + ". Style: " + schematicStyle + "."
	}
	return prompt
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
