package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ugta/ugta-backend/internal/clients/gemini"
	"github.com/ugta/ugta-backend/internal/ctxutil"
	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/repos"
	"github.com/ugta/ugta-backend/internal/types"
)

// Gateway wraps the text oracle with the prompt contracts the pipeline relies
// on: task normalization, lesson drafting, and the single-asset fallback
// calls (one mermaid snippet, one image prompt, one repair per invocation).
type Gateway interface {
	NormalizeTask(ctx context.Context, chat string, defaults map[string]any, model string) (types.TaskSpec, error)
	GenerateLesson(ctx context.Context, task types.TaskSpec, helpfulNotes []string, model string) (types.LessonDraft, error)
	GenMermaidSnippet(ctx context.Context, task types.TaskSpec, helpfulNotes []string, model string) (string, error)
	GenImagePrompt(ctx context.Context, task types.TaskSpec, helpfulNotes []string, model string) (string, error)
	RepairMermaid(ctx context.Context, broken string, errorLog string, topic string, model string) (string, error)
}

type gateway struct {
	log    *logger.Logger
	oracle gemini.Client
	aiLog  repos.AICallLogRepo // nil when persistence is disabled
}

func NewGateway(log *logger.Logger, oracle gemini.Client, aiLog repos.AICallLogRepo) Gateway {
	return &gateway{
		log:    log.With("service", "LLMGateway"),
		oracle: oracle,
		aiLog:  aiLog,
	}
}

func (g *gateway) NormalizeTask(ctx context.Context, chat string, defaults map[string]any, model string) (types.TaskSpec, error) {
	system := "You normalize casual user requests into a compact JSON TaskSpec. " +
		"Return ONLY valid JSON (no code fences). Strict keys: topic, audience, language, difficulty, " +
		"outputs (default ['text','diagram','image']), keywords (3-7), image_ideas (1-2). " +
		"Add 'audio' only if the user asked for voice. Add 'video' only if asked."
	user := fmt.Sprintf("User message: ```%s```\nReturn ONLY valid JSON without code fences. Start with '{' and end with '}'.", chat)

	text, err := g.oracle.GenerateText(ctx, system, user, model)
	g.recordCall(ctx, "normalize", model, user, text, err)
	if err != nil {
		return types.TaskSpec{}, fmt.Errorf("normalize task: %w", err)
	}

	doc := ExtractJSON(text)
	for k, v := range defaults {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
	if _, ok := doc["outputs"]; !ok {
		doc["outputs"] = []string{"text", "diagram", "image"}
	}

	var task types.TaskSpec
	raw, err := json.Marshal(doc)
	if err != nil {
		return types.TaskSpec{}, fmt.Errorf("normalize task: %w", err)
	}
	if err := json.Unmarshal(raw, &task); err != nil {
		return types.TaskSpec{}, fmt.Errorf("normalize task: decode TaskSpec: %w", err)
	}

	// Every lesson ships at least one of each requested asset kind.
	if task.MinDiagrams <= 0 && task.WantsOutput("diagram") {
		task.MinDiagrams = 1
	}
	if task.MinImages <= 0 && task.WantsOutput("image") {
		task.MinImages = 1
	}
	return task, nil
}

func (g *gateway) GenerateLesson(ctx context.Context, task types.TaskSpec, helpfulNotes []string, model string) (types.LessonDraft, error) {
	system := "You create concise, pedagogically sound lessons. Use HelpfulNotes to improve correctness, " +
		"but do not cite them. Return ONLY valid JSON (no code fences) with keys: " +
		"title, segments[{text, mermaid?, image_prompt?}], narration?. " +
		"If 'diagram' is among requested outputs, GUARANTEE at least one segment contains a valid Mermaid snippet. " +
		"If 'image' is among requested outputs, GUARANTEE at least one segment contains a concrete image_prompt. " +
		"Prefer simple, syntactically valid Mermaid ('flowchart TD' or 'graph LR'). " +
		`Keep images schematic (not photorealistic, e.g., "clean 2D vector schematic, white background, thin black outlines, clear labels").`

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return types.LessonDraft{}, fmt.Errorf("generate lesson: encode TaskSpec: %w", err)
	}
	user := fmt.Sprintf(
		"TaskSpec JSON:\n```json\n%s\n```\nHelpfulNotes (optional):\n%s\n"+
			"Produce the lesson now. Return ONLY valid JSON without code fences. Start with '{' and end with '}'.",
		taskJSON, notesBlock(helpfulNotes, 12),
	)

	text, err := g.oracle.GenerateText(ctx, system, user, model)
	g.recordCall(ctx, "lesson", model, user, text, err)
	if err != nil {
		return types.LessonDraft{}, fmt.Errorf("generate lesson: %w", err)
	}

	doc := ExtractJSON(text)
	if rawText, ok := rawOnly(doc); ok {
		// Minimally structured model output: keep the text as a single segment
		// so downstream counting still has something to work with.
		return types.LessonDraft{
			Title:    task.Topic,
			Segments: []types.Segment{{Text: rawText}},
		}, nil
	}

	var draft types.LessonDraft
	raw, err := json.Marshal(doc)
	if err != nil {
		return types.LessonDraft{}, fmt.Errorf("generate lesson: %w", err)
	}
	if err := json.Unmarshal(raw, &draft); err != nil {
		return types.LessonDraft{}, fmt.Errorf("generate lesson: decode draft: %w", err)
	}
	if strings.TrimSpace(draft.Title) == "" {
		draft.Title = task.Topic
	}
	return draft, nil
}

func (g *gateway) GenMermaidSnippet(ctx context.Context, task types.TaskSpec, helpfulNotes []string, model string) (string, error) {
	system := "Produce ONLY a valid, small Mermaid diagram that teaches the topic. " +
		"Prefer 'flowchart TD' or 'graph LR'. No narrative text. No code fences."
	user := fmt.Sprintf(
		"Topic: %s\nHelpfulNotes (optional):\n%s\n\n"+
			"Constraints:\n- Keep it compact and valid Mermaid\n"+
			"- Use simple nodes/edges and brief labels\n"+
			"- Avoid 'style' lines if unsure\n"+
			"- Output Mermaid only",
		topicOrDefault(task.Topic), notesBlock(helpfulNotes, 8),
	)

	text, err := g.oracle.GenerateText(ctx, system, user, model)
	g.recordCall(ctx, "mermaid", model, user, text, err)
	if err != nil {
		return "", fmt.Errorf("gen mermaid snippet: %w", err)
	}
	return StripCodeFences(text), nil
}

func (g *gateway) GenImagePrompt(ctx context.Context, task types.TaskSpec, helpfulNotes []string, model string) (string, error) {
	system := "Return ONLY one line of text: a clean 2D vector schematic prompt (not a photo). " +
		"Style: flat, minimal, white background, thin black outlines, limited accent colors, " +
		"clear labels/arrows, resolution ~1024x1024. No people or scenery."
	user := fmt.Sprintf(
		"Topic: %s\nHelpfulNotes (optional):\n%s\n\n"+
			"Return one line describing the schematic content, precise and labeled.",
		topicOrDefault(task.Topic), notesBlock(helpfulNotes, 8),
	)

	text, err := g.oracle.GenerateText(ctx, system, user, model)
	g.recordCall(ctx, "image_prompt", model, user, text, err)
	if err != nil {
		return "", fmt.Errorf("gen image prompt: %w", err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (g *gateway) RepairMermaid(ctx context.Context, broken string, errorLog string, topic string, model string) (string, error) {
	system := "You repair Mermaid diagrams. Output ONLY Mermaid code (no fences). " +
		"Use 'flowchart TD' or 'graph LR'. Remove fragile 'style' lines. Keep it small and valid."
	user := fmt.Sprintf(
		"Topic: %s\nBroken Mermaid:\n%s\nRenderer stderr (optional):\n%s\n\nReturn fixed Mermaid only.",
		topic, broken, strings.TrimSpace(errorLog),
	)

	text, err := g.oracle.GenerateText(ctx, system, user, model)
	g.recordCall(ctx, "repair", model, user, text, err)
	if err != nil {
		return "", fmt.Errorf("repair mermaid: %w", err)
	}
	return StripCodeFences(text), nil
}

func (g *gateway) recordCall(ctx context.Context, callType string, model string, prompt string, response string, callErr error) {
	if g.aiLog == nil {
		return
	}
	entry := &types.AICallLog{
		CallType: callType,
		Model:    model,
		Prompt:   prompt,
		Response: response,
		Success:  callErr == nil,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		entry.RunID = td.RequestID
	}
	if err := g.aiLog.Create(ctx, nil, []*types.AICallLog{entry}); err != nil {
		g.log.Warn("failed to record ai call", "call_type", callType, "error", err)
	}
}

func notesBlock(notes []string, limit int) string {
	if len(notes) > limit {
		notes = notes[:limit]
	}
	return strings.Join(notes, "\n")
}

func topicOrDefault(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "the topic"
	}
	return topic
}

func rawOnly(doc map[string]any) (string, bool) {
	if len(doc) != 1 {
		return "", false
	}
	raw, ok := doc["raw"].(string)
	return raw, ok
}
