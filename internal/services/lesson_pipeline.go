package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ugta/ugta-backend/internal/ctxutil"
	"github.com/ugta/ugta-backend/internal/llm"
	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/media/images"
	"github.com/ugta/ugta-backend/internal/media/mermaid"
	"github.com/ugta/ugta-backend/internal/media/pipeline"
	"github.com/ugta/ugta-backend/internal/repos"
	"github.com/ugta/ugta-backend/internal/retrieval"
	"github.com/ugta/ugta-backend/internal/types"
	"github.com/ugta/ugta-backend/internal/utils"
)

// topUpBudgetFactor bounds the top-up loop: at most deficit x factor oracle
// calls per asset kind before the pipeline gives up with an explicit error.
const topUpBudgetFactor = 3

// LessonPipelineService drives chat -> TaskSpec -> notes -> draft -> assets.
type LessonPipelineService interface {
	// BuildLessonDraft produces a draft whose asset counts meet the TaskSpec
	// minimums. No file I/O happens here.
	BuildLessonDraft(ctx context.Context, chat string, model string) (types.TaskSpec, types.LessonDraft, []string, error)

	// BuildRenderedLesson additionally renders every asset slot, runs the
	// one-shot diagram repair pass, and stitches public URLs against baseURL.
	BuildRenderedLesson(ctx context.Context, chat string, model string, baseURL string) (types.LessonWithAssets, error)
}

type lessonPipelineService struct {
	log      *logger.Logger
	gateway  llm.Gateway
	notes    retrieval.NotesService
	renderer mermaid.Renderer
	images   *images.Generator
	runs     repos.LessonRunRepo // nil when persistence is disabled

	artifactsRoot    string
	imageConcurrency int
	theme            string
}

func NewLessonPipelineService(
	log *logger.Logger,
	gateway llm.Gateway,
	notes retrieval.NotesService,
	renderer mermaid.Renderer,
	imageGen *images.Generator,
	runs repos.LessonRunRepo,
) LessonPipelineService {
	return &lessonPipelineService{
		log:              log.With("service", "LessonPipelineService"),
		gateway:          gateway,
		notes:            notes,
		renderer:         renderer,
		images:           imageGen,
		runs:             runs,
		artifactsRoot:    utils.GetEnv("ARTIFACTS_DIR", "artifacts", log),
		imageConcurrency: utils.GetEnvAsInt("IMAGE_CONCURRENCY", 5, log),
		theme:            utils.GetEnv("MERMAID_THEME", "default", log),
	}
}

func (s *lessonPipelineService) BuildLessonDraft(ctx context.Context, chat string, model string) (types.TaskSpec, types.LessonDraft, []string, error) {
	ctx = ctxutil.Default(ctx)

	task, err := s.gateway.NormalizeTask(ctx, chat, map[string]any{"language": "en"}, model)
	if err != nil {
		return types.TaskSpec{}, types.LessonDraft{}, nil, err
	}

	notes, err := s.notes.HelpfulNotes(ctx, buildQueries(task, chat))
	if err != nil {
		// Notes improve grounding but are not required for a valid lesson.
		s.log.Warn("helpful notes lookup failed; continuing without notes", "error", err)
		notes = nil
	}

	draft, err := s.gateway.GenerateLesson(ctx, task, notes, model)
	if err != nil {
		return types.TaskSpec{}, types.LessonDraft{}, nil, err
	}

	if err := s.ensureMinimumAssets(ctx, &draft, task, notes, model); err != nil {
		return types.TaskSpec{}, types.LessonDraft{}, nil, err
	}
	return task, draft, notes, nil
}

func (s *lessonPipelineService) BuildRenderedLesson(ctx context.Context, chat string, model string, baseURL string) (types.LessonWithAssets, error) {
	ctx = ctxutil.Default(ctx)

	task, draft, _, err := s.BuildLessonDraft(ctx, chat, model)
	if err != nil {
		return types.LessonWithAssets{}, err
	}

	runID := uuid.New().String()[:8]
	outRoot := filepath.Join(s.artifactsRoot, runID)
	runRow := s.recordRunStart(ctx, runID, task, draft, outRoot)

	enriched := pipeline.RenderAssets(ctx, pipeline.Deps{
		Log:      s.log,
		Renderer: s.renderer,
		Images:   s.images,
	}, draft, pipeline.Options{
		OutRoot:          outRoot,
		ImageConcurrency: s.imageConcurrency,
		Topic:            task.Topic,
		Theme:            s.theme,
	})

	enriched, err = s.repairFailedDiagrams(ctx, enriched, draft.Title, outRoot, model)
	if err != nil {
		s.recordRunEnd(ctx, runRow, enriched, err)
		return types.LessonWithAssets{}, err
	}

	enriched = pipeline.StitchAssetURLs(baseURL, s.artifactsRoot, enriched)
	s.recordRunEnd(ctx, runRow, enriched, nil)

	return types.LessonWithAssets{
		Title:         draft.Title,
		Segments:      enriched,
		Narration:     draft.Narration,
		RunID:         runID,
		ArtifactsRoot: outRoot,
	}, nil
}

// ensureMinimumAssets tops up the draft until the sanitized diagram and image
// counts reach the TaskSpec minimums. Each oracle call yields exactly one
// asset; empty oracle output consumes budget instead of looping forever.
func (s *lessonPipelineService) ensureMinimumAssets(ctx context.Context, draft *types.LessonDraft, task types.TaskSpec, notes []string, model string) error {
	segs := types.SanitizeSegments(draft.Segments)
	diagrams, imgs := types.CountAssets(segs)

	if diagrams < task.MinDiagrams {
		budget := (task.MinDiagrams - diagrams) * topUpBudgetFactor
		for diagrams < task.MinDiagrams && budget > 0 {
			budget--
			snippet, err := s.gateway.GenMermaidSnippet(ctx, task, notes, model)
			if err != nil {
				return fmt.Errorf("top-up diagrams: %w", err)
			}
			snippet = strings.TrimSpace(snippet)
			if snippet == "" {
				s.log.Warn("oracle returned empty mermaid snippet during top-up")
				continue
			}
			segs = append(segs, types.Segment{
				Kind:    "diagram",
				Text:    "Auto-added diagram",
				Mermaid: &snippet,
			}.Sanitized())
			diagrams++
		}
		if diagrams < task.MinDiagrams {
			return fmt.Errorf("top-up diagrams: minimum %d not reached (got %d)", task.MinDiagrams, diagrams)
		}
	}

	if imgs < task.MinImages {
		budget := (task.MinImages - imgs) * topUpBudgetFactor
		for imgs < task.MinImages && budget > 0 {
			budget--
			prompt, err := s.gateway.GenImagePrompt(ctx, task, notes, model)
			if err != nil {
				return fmt.Errorf("top-up images: %w", err)
			}
			prompt = strings.TrimSpace(prompt)
			if prompt == "" {
				s.log.Warn("oracle returned empty image prompt during top-up")
				continue
			}
			segs = append(segs, types.Segment{
				Kind:        "image",
				Text:        "Auto-added image",
				ImagePrompt: &prompt,
			}.Sanitized())
			imgs++
		}
		if imgs < task.MinImages {
			return fmt.Errorf("top-up images: minimum %d not reached (got %d)", task.MinImages, imgs)
		}
	}

	draft.Segments = types.SanitizeSegments(segs)
	return nil
}

// repairFailedDiagrams runs the single-shot repair pass: only diagram-bearing
// segments with no rendered file get one corrected source from the oracle and
// one more render attempt. Segments that already rendered are untouched.
func (s *lessonPipelineService) repairFailedDiagrams(ctx context.Context, segs []types.EnrichedSegment, title string, outRoot string, model string) ([]types.EnrichedSegment, error) {
	for i := range segs {
		seg := &segs[i]
		if !seg.HasMermaid() || seg.DiagramPath != "" {
			continue
		}

		fixed, err := s.gateway.RepairMermaid(ctx, *seg.Mermaid, "", title, model)
		if err != nil {
			return segs, fmt.Errorf("repair diagram %d: %w", i, err)
		}
		fixed = strings.TrimSpace(fixed)
		if fixed == "" || fixed == strings.TrimSpace(*seg.Mermaid) {
			continue
		}

		seg.Mermaid = &fixed
		outPath := pipeline.DiagramPath(outRoot, i)
		if s.renderer.Render(ctx, fixed, outPath, s.theme) {
			seg.DiagramPath = outPath
		}
	}
	return segs, nil
}

func (s *lessonPipelineService) recordRunStart(ctx context.Context, runID string, task types.TaskSpec, draft types.LessonDraft, outRoot string) *types.LessonRun {
	if s.runs == nil {
		return nil
	}
	diagrams, imgs := types.CountAssets(draft.Segments)
	row := &types.LessonRun{
		RunID:         runID,
		Topic:         task.Topic,
		Title:         draft.Title,
		Status:        "running",
		DiagramCount:  diagrams,
		ImageCount:    imgs,
		ArtifactsRoot: outRoot,
	}
	created, err := s.runs.Create(ctx, nil, []*types.LessonRun{row})
	if err != nil {
		s.log.Warn("failed to record lesson run", "run_id", runID, "error", err)
		return nil
	}
	return created[0]
}

func (s *lessonPipelineService) recordRunEnd(ctx context.Context, row *types.LessonRun, segs []types.EnrichedSegment, runErr error) {
	if s.runs == nil || row == nil {
		return
	}
	diagramsDone, imagesDone := 0, 0
	for _, seg := range segs {
		if seg.DiagramPath != "" {
			diagramsDone++
		}
		if seg.ImagePath != "" {
			imagesDone++
		}
	}
	updates := map[string]interface{}{
		"status":        "succeeded",
		"diagrams_done": diagramsDone,
		"images_done":   imagesDone,
	}
	if runErr != nil {
		updates["status"] = "failed"
		updates["error"] = runErr.Error()
	}
	if err := s.runs.UpdateFields(ctx, nil, row.ID, updates); err != nil {
		s.log.Warn("failed to finalize lesson run", "run_id", row.RunID, "error", err)
	}
}

func buildQueries(task types.TaskSpec, chat string) []string {
	var queries []string
	if strings.TrimSpace(task.Topic) != "" {
		queries = append(queries, task.Topic)
	}
	keywords := task.Keywords
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	queries = append(queries, keywords...)
	if len(queries) == 0 {
		queries = []string{chat}
	}
	return queries
}
