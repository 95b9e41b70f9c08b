package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/media/images"
	"github.com/ugta/ugta-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func strPtr(s string) *string { return &s }

type fakeGateway struct {
	task  types.TaskSpec
	draft types.LessonDraft

	mermaidOut  string
	mermaidErr  error
	mermaidHits int

	promptOut  string
	promptErr  error
	promptHits int

	repairOut  string
	repairErr  error
	repairHits int
}

func (f *fakeGateway) NormalizeTask(ctx context.Context, chat string, defaults map[string]any, model string) (types.TaskSpec, error) {
	return f.task, nil
}

func (f *fakeGateway) GenerateLesson(ctx context.Context, task types.TaskSpec, notes []string, model string) (types.LessonDraft, error) {
	return f.draft, nil
}

func (f *fakeGateway) GenMermaidSnippet(ctx context.Context, task types.TaskSpec, notes []string, model string) (string, error) {
	f.mermaidHits++
	return f.mermaidOut, f.mermaidErr
}

func (f *fakeGateway) GenImagePrompt(ctx context.Context, task types.TaskSpec, notes []string, model string) (string, error) {
	f.promptHits++
	return f.promptOut, f.promptErr
}

func (f *fakeGateway) RepairMermaid(ctx context.Context, broken string, errorLog string, topic string, model string) (string, error) {
	f.repairHits++
	return f.repairOut, f.repairErr
}

type fakeNotes struct {
	notes []string
	err   error
}

func (f *fakeNotes) HelpfulNotes(ctx context.Context, queries []string) ([]string, error) {
	return f.notes, f.err
}

// fakeRenderer succeeds only for sources in okSources (all sources when nil).
type fakeRenderer struct {
	okSources map[string]bool
	allOK     bool
	calls     int
}

func (f *fakeRenderer) Render(ctx context.Context, source string, outPath string, theme string) bool {
	f.calls++
	if !f.allOK && !f.okSources[source] {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return false
	}
	return os.WriteFile(outPath, []byte("PNG"), 0o644) == nil
}

type okOracle struct{}

func (okOracle) GenerateImage(ctx context.Context, prompt string, model string) ([]byte, error) {
	return []byte("PNG"), nil
}

func newService(t *testing.T, gw *fakeGateway, notes *fakeNotes, renderer *fakeRenderer) LessonPipelineService {
	t.Helper()
	t.Setenv("ARTIFACTS_DIR", t.TempDir())
	log := testLogger()
	return NewLessonPipelineService(log, gw, notes, renderer, images.NewGenerator(log, okOracle{}), nil)
}

func TestBuildLessonDraftTopUpMeetsMinimums(t *testing.T) {
	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 2, MinImages: 2},
		draft: types.LessonDraft{
			Title: "Pumps",
			Segments: []types.Segment{
				{Text: "intro"},
				{Text: "parts", ImagePrompt: strPtr("schematic of a pump")},
			},
		},
		mermaidOut: "graph TD\nA --> B",
		promptOut:  "cutaway schematic of an impeller",
	}
	svc := newService(t, gw, &fakeNotes{}, &fakeRenderer{allOK: true})

	_, draft, _, err := svc.BuildLessonDraft(context.Background(), "teach me pumps", "")
	if err != nil {
		t.Fatalf("BuildLessonDraft: %v", err)
	}

	diagrams, imgs := types.CountAssets(draft.Segments)
	if diagrams != 2 || imgs != 2 {
		t.Fatalf("assets = %d diagrams, %d images; want 2/2", diagrams, imgs)
	}
	if gw.mermaidHits != 2 {
		t.Fatalf("mermaid top-up calls = %d, want 2", gw.mermaidHits)
	}
	if gw.promptHits != 1 {
		t.Fatalf("image prompt top-up calls = %d, want 1", gw.promptHits)
	}
}

func TestBuildLessonDraftNoTopUpWhenSatisfied(t *testing.T) {
	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 1, MinImages: 1},
		draft: types.LessonDraft{
			Title: "Pumps",
			Segments: []types.Segment{
				{Text: "flow", Mermaid: strPtr("graph TD\nA --> B")},
				{Text: "parts", ImagePrompt: strPtr("pump schematic")},
			},
		},
	}
	svc := newService(t, gw, &fakeNotes{}, &fakeRenderer{allOK: true})

	if _, _, _, err := svc.BuildLessonDraft(context.Background(), "pumps", ""); err != nil {
		t.Fatalf("BuildLessonDraft: %v", err)
	}
	if gw.mermaidHits != 0 || gw.promptHits != 0 {
		t.Fatalf("unexpected top-up calls: %d mermaid, %d prompt", gw.mermaidHits, gw.promptHits)
	}
}

func TestBuildLessonDraftEmptyOracleOutputExhaustsBudget(t *testing.T) {
	gw := &fakeGateway{
		task:       types.TaskSpec{Topic: "pumps", MinDiagrams: 2},
		draft:      types.LessonDraft{Title: "Pumps", Segments: []types.Segment{{Text: "x"}}},
		mermaidOut: "   ",
	}
	svc := newService(t, gw, &fakeNotes{}, &fakeRenderer{allOK: true})

	_, _, _, err := svc.BuildLessonDraft(context.Background(), "pumps", "")
	if err == nil {
		t.Fatal("expected minimum-not-reached error")
	}
	if !strings.Contains(err.Error(), "minimum") {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 2 * topUpBudgetFactor; gw.mermaidHits != want {
		t.Fatalf("mermaid calls = %d, want %d", gw.mermaidHits, want)
	}
}

func TestBuildLessonDraftOracleErrorIsFatal(t *testing.T) {
	gw := &fakeGateway{
		task:       types.TaskSpec{Topic: "pumps", MinDiagrams: 1},
		draft:      types.LessonDraft{Title: "Pumps", Segments: []types.Segment{{Text: "x"}}},
		mermaidErr: errors.New("quota exceeded"),
	}
	svc := newService(t, gw, &fakeNotes{}, &fakeRenderer{allOK: true})

	_, _, _, err := svc.BuildLessonDraft(context.Background(), "pumps", "")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected propagated oracle error, got %v", err)
	}
	if gw.mermaidHits != 1 {
		t.Fatalf("top-up should stop on first error, calls = %d", gw.mermaidHits)
	}
}

func TestBuildLessonDraftNotesFailureIsNonFatal(t *testing.T) {
	gw := &fakeGateway{
		task:  types.TaskSpec{Topic: "pumps"},
		draft: types.LessonDraft{Title: "Pumps", Segments: []types.Segment{{Text: "x"}}},
	}
	svc := newService(t, gw, &fakeNotes{err: errors.New("retrieval down")}, &fakeRenderer{allOK: true})

	_, draft, notes, err := svc.BuildLessonDraft(context.Background(), "pumps", "")
	if err != nil {
		t.Fatalf("notes failure must not fail the draft: %v", err)
	}
	if notes != nil {
		t.Fatalf("notes should be nil after failure, got %v", notes)
	}
	if draft.Title != "Pumps" {
		t.Fatalf("draft lost: %+v", draft)
	}
}

func TestBuildRenderedLessonHappyPath(t *testing.T) {
	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 1, MinImages: 1},
		draft: types.LessonDraft{
			Title: "Pumps",
			Segments: []types.Segment{
				{Text: "flow", Mermaid: strPtr("graph TD\nA --> B")},
				{Text: "parts", ImagePrompt: strPtr("pump schematic")},
			},
		},
	}
	svc := newService(t, gw, &fakeNotes{}, &fakeRenderer{allOK: true})

	lesson, err := svc.BuildRenderedLesson(context.Background(), "pumps", "", "http://host:8080")
	if err != nil {
		t.Fatalf("BuildRenderedLesson: %v", err)
	}
	if len(lesson.RunID) != 8 {
		t.Fatalf("run id = %q, want 8 chars", lesson.RunID)
	}
	// The artifacts dir is a temp path here, yet URLs must resolve through
	// the fixed /artifacts route.
	wantDiagramURL := "http://host:8080/artifacts/" + lesson.RunID + "/diagrams/diagram_0.png"
	if lesson.Segments[0].DiagramURL != wantDiagramURL {
		t.Fatalf("diagram url = %q, want %q", lesson.Segments[0].DiagramURL, wantDiagramURL)
	}
	wantImageURL := "http://host:8080/artifacts/" + lesson.RunID + "/images/img_1.png"
	if lesson.Segments[1].ImageURL != wantImageURL {
		t.Fatalf("image url = %q, want %q", lesson.Segments[1].ImageURL, wantImageURL)
	}
	if gw.repairHits != 0 {
		t.Fatalf("repair ran on a successful render: %d", gw.repairHits)
	}
}

func TestBuildRenderedLessonRepairsFailedDiagrams(t *testing.T) {
	fixed := "graph TD\nFIXED --> OK"
	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 1},
		draft: types.LessonDraft{
			Title: "Pumps",
			Segments: []types.Segment{
				{Text: "flow", Mermaid: strPtr("graph TD\nbroken((")},
			},
		},
		repairOut: fixed,
	}
	renderer := &fakeRenderer{okSources: map[string]bool{fixed: true}}
	svc := newService(t, gw, &fakeNotes{}, renderer)

	lesson, err := svc.BuildRenderedLesson(context.Background(), "pumps", "", "http://host")
	if err != nil {
		t.Fatalf("BuildRenderedLesson: %v", err)
	}
	if gw.repairHits != 1 {
		t.Fatalf("repair calls = %d, want 1", gw.repairHits)
	}
	seg := lesson.Segments[0]
	if seg.DiagramPath == "" || seg.DiagramURL == "" {
		t.Fatalf("repaired diagram not rendered: %+v", seg)
	}
	if seg.Mermaid == nil || *seg.Mermaid != fixed {
		t.Fatalf("segment should carry the repaired source: %v", seg.Mermaid)
	}
}

func TestBuildRenderedLessonRepairRunsOncePerDiagram(t *testing.T) {
	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 2, MinImages: 1},
		draft: types.LessonDraft{
			Title: "Pumps",
			Segments: []types.Segment{
				{Text: "a", Mermaid: strPtr("graph TD\nbad1((")},
				{Text: "b", Mermaid: strPtr("graph TD\nbad2((")},
				{Text: "c", ImagePrompt: strPtr("pump schematic")},
			},
		},
		repairOut: "graph TD\nstill --> bad",
	}
	renderer := &fakeRenderer{} // everything fails
	svc := newService(t, gw, &fakeNotes{}, renderer)

	lesson, err := svc.BuildRenderedLesson(context.Background(), "pumps", "", "http://host")
	if err != nil {
		t.Fatalf("BuildRenderedLesson: %v", err)
	}
	if gw.repairHits != 2 {
		t.Fatalf("repair calls = %d, want 2 (one per failed diagram)", gw.repairHits)
	}
	if lesson.Segments[0].DiagramPath != "" || lesson.Segments[1].DiagramPath != "" {
		t.Fatalf("unrenderable diagrams should stay pathless")
	}
	if lesson.Segments[2].ImagePath == "" || lesson.Segments[2].ImageURL == "" {
		t.Fatalf("image pipeline affected by diagram failures: %+v", lesson.Segments[2])
	}
}

func TestBuildRenderedLessonRepairSkipsUnhelpfulFix(t *testing.T) {
	broken := "graph TD\nbroken(("
	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 1},
		draft: types.LessonDraft{
			Title:    "Pumps",
			Segments: []types.Segment{{Text: "a", Mermaid: strPtr(broken)}},
		},
		repairOut: broken, // oracle echoes the broken source back
	}
	renderer := &fakeRenderer{}
	svc := newService(t, gw, &fakeNotes{}, renderer)

	lesson, err := svc.BuildRenderedLesson(context.Background(), "pumps", "", "http://host")
	if err != nil {
		t.Fatalf("BuildRenderedLesson: %v", err)
	}
	if lesson.Segments[0].DiagramPath != "" {
		t.Fatal("echoed fix must not be re-rendered as a success")
	}
	// One render during asset pass; the echoed fix skips the second attempt.
	if renderer.calls != 1 {
		t.Fatalf("render calls = %d, want 1", renderer.calls)
	}
}

func TestBuildRenderedLessonRepairOracleErrorIsFatal(t *testing.T) {
	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 1},
		draft: types.LessonDraft{
			Title:    "Pumps",
			Segments: []types.Segment{{Text: "a", Mermaid: strPtr("graph TD\nbad((")}},
		},
		repairErr: errors.New("oracle down"),
	}
	svc := newService(t, gw, &fakeNotes{}, &fakeRenderer{})

	_, err := svc.BuildRenderedLesson(context.Background(), "pumps", "", "http://host")
	if err == nil || !strings.Contains(err.Error(), "oracle down") {
		t.Fatalf("expected propagated repair error, got %v", err)
	}
}

func TestBuildQueries(t *testing.T) {
	task := types.TaskSpec{
		Topic:    "osmosis",
		Keywords: []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7"},
	}
	got := buildQueries(task, "chat text")
	if len(got) != 6 {
		t.Fatalf("queries = %d, want topic + 5 keywords", len(got))
	}
	if got[0] != "osmosis" {
		t.Fatalf("first query = %q", got[0])
	}

	empty := buildQueries(types.TaskSpec{}, "fallback chat")
	if len(empty) != 1 || empty[0] != "fallback chat" {
		t.Fatalf("fallback = %v", empty)
	}
}

func TestBuildRenderedLessonWritesUnderArtifactsRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv("ARTIFACTS_DIR", root)

	gw := &fakeGateway{
		task: types.TaskSpec{Topic: "pumps", MinDiagrams: 1},
		draft: types.LessonDraft{
			Title:    "Pumps",
			Segments: []types.Segment{{Text: "a", Mermaid: strPtr("graph TD\nA --> B")}},
		},
	}
	log := testLogger()
	svc := NewLessonPipelineService(log, gw, &fakeNotes{}, &fakeRenderer{allOK: true}, images.NewGenerator(log, okOracle{}), nil)

	lesson, err := svc.BuildRenderedLesson(context.Background(), "pumps", "", "http://host")
	if err != nil {
		t.Fatalf("BuildRenderedLesson: %v", err)
	}
	want := filepath.Join(root, lesson.RunID)
	if lesson.ArtifactsRoot != want {
		t.Fatalf("artifacts root = %q, want %q", lesson.ArtifactsRoot, want)
	}
	if _, err := os.Stat(filepath.Join(want, "diagrams", fmt.Sprintf("diagram_%d.png", 0))); err != nil {
		t.Fatalf("diagram file missing: %v", err)
	}
}
