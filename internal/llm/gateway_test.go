package llm

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeOracle struct {
	text string
	err  error
}

func (f *fakeOracle) GenerateText(ctx context.Context, system string, user string, model string) (string, error) {
	return f.text, f.err
}

func (f *fakeOracle) GenerateImage(ctx context.Context, prompt string, model string) ([]byte, error) {
	return nil, nil
}

func TestNormalizeTaskDefaultsAndMinimums(t *testing.T) {
	gw := NewGateway(testLogger(), &fakeOracle{
		text: `{"topic":"osmosis","keywords":["water","membrane"]}`,
	}, nil)

	task, err := gw.NormalizeTask(context.Background(), "explain osmosis", map[string]any{"language": "en"}, "")
	if err != nil {
		t.Fatalf("NormalizeTask: %v", err)
	}
	if task.Topic != "osmosis" {
		t.Fatalf("topic = %q", task.Topic)
	}
	if task.Language != "en" {
		t.Fatalf("default language not merged: %q", task.Language)
	}
	if !task.WantsOutput("diagram") || !task.WantsOutput("image") {
		t.Fatalf("default outputs missing: %v", task.Outputs)
	}
	if task.MinDiagrams != 1 || task.MinImages != 1 {
		t.Fatalf("minimums = %d/%d, want 1/1", task.MinDiagrams, task.MinImages)
	}
}

func TestNormalizeTaskKeepsExplicitValues(t *testing.T) {
	gw := NewGateway(testLogger(), &fakeOracle{
		text: `{"topic":"osmosis","language":"de","outputs":["text"],"min_diagrams":0}`,
	}, nil)

	task, err := gw.NormalizeTask(context.Background(), "x", map[string]any{"language": "en"}, "")
	if err != nil {
		t.Fatalf("NormalizeTask: %v", err)
	}
	if task.Language != "de" {
		t.Fatalf("explicit language overwritten: %q", task.Language)
	}
	// Text-only lessons need no assets.
	if task.MinDiagrams != 0 || task.MinImages != 0 {
		t.Fatalf("minimums forced for text-only task: %d/%d", task.MinDiagrams, task.MinImages)
	}
}

func TestGenerateLessonParsesDraft(t *testing.T) {
	gw := NewGateway(testLogger(), &fakeOracle{
		text: "```json\n{\"title\":\"Osmosis\",\"segments\":[{\"text\":\"intro\",\"mermaid\":\"graph TD\\nA --> B\"}]}\n```",
	}, nil)

	draft, err := gw.GenerateLesson(context.Background(), taskFor("osmosis"), nil, "")
	if err != nil {
		t.Fatalf("GenerateLesson: %v", err)
	}
	if draft.Title != "Osmosis" || len(draft.Segments) != 1 {
		t.Fatalf("draft = %+v", draft)
	}
	if draft.Segments[0].Mermaid == nil {
		t.Fatal("mermaid lost in decode")
	}
}

func TestGenerateLessonRawFallback(t *testing.T) {
	gw := NewGateway(testLogger(), &fakeOracle{
		text: "Osmosis is the movement of water across a membrane.",
	}, nil)

	draft, err := gw.GenerateLesson(context.Background(), taskFor("osmosis"), nil, "")
	if err != nil {
		t.Fatalf("GenerateLesson: %v", err)
	}
	if draft.Title != "osmosis" {
		t.Fatalf("title = %q, want topic fallback", draft.Title)
	}
	if len(draft.Segments) != 1 || draft.Segments[0].Text == "" {
		t.Fatalf("raw text not preserved: %+v", draft.Segments)
	}
}

func TestGenMermaidSnippetStripsFences(t *testing.T) {
	gw := NewGateway(testLogger(), &fakeOracle{
		text: "```mermaid\ngraph TD\nA --> B\n```",
	}, nil)

	snippet, err := gw.GenMermaidSnippet(context.Background(), taskFor("x"), nil, "")
	if err != nil {
		t.Fatalf("GenMermaidSnippet: %v", err)
	}
	if snippet != "graph TD\nA --> B" {
		t.Fatalf("snippet = %q", snippet)
	}
}

func TestGenImagePromptIsSingleLine(t *testing.T) {
	gw := NewGateway(testLogger(), &fakeOracle{
		text: "a labeled schematic\nof an impeller\twith arrows",
	}, nil)

	prompt, err := gw.GenImagePrompt(context.Background(), taskFor("x"), nil, "")
	if err != nil {
		t.Fatalf("GenImagePrompt: %v", err)
	}
	if prompt != "a labeled schematic of an impeller with arrows" {
		t.Fatalf("prompt = %q", prompt)
	}
}

func taskFor(topic string) types.TaskSpec {
	return types.TaskSpec{Topic: topic}
}
