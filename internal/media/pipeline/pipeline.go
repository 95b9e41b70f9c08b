package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/media/images"
	"github.com/ugta/ugta-backend/internal/media/mermaid"
	"github.com/ugta/ugta-backend/internal/types"
)

type Deps struct {
	Log      *logger.Logger
	Renderer mermaid.Renderer
	Images   *images.Generator
}

type Options struct {
	OutRoot          string
	ImageConcurrency int
	Topic            string
	ImageModel       string
	Theme            string
}

// RenderAssets turns a lesson draft into enriched segments: diagrams are
// rendered sequentially through mmdc, images concurrently through the job
// pool. Segments are sanitized first so counting and slot assignment only
// ever see real content. Rendering failures leave the path fields empty;
// they are never surfaced as errors from here.
func RenderAssets(ctx context.Context, deps Deps, draft types.LessonDraft, opts Options) []types.EnrichedSegment {
	segs := types.SanitizeSegments(draft.Segments)
	enriched := make([]types.EnrichedSegment, len(segs))

	var prompts []images.Prompt
	for i, seg := range segs {
		enriched[i] = types.EnrichedSegment{Segment: seg}

		if seg.HasMermaid() {
			outPath := DiagramPath(opts.OutRoot, i)
			if deps.Renderer.Render(ctx, *seg.Mermaid, outPath, opts.Theme) {
				enriched[i].DiagramPath = outPath
			}
		}
		if seg.HasImagePrompt() {
			prompts = append(prompts, images.Prompt{Index: i, Text: *seg.ImagePrompt})
		}
	}

	if len(prompts) > 0 {
		imgDir := filepath.Join(opts.OutRoot, "images")
		paths := deps.Images.GenerateImages(ctx, prompts, imgDir, opts.ImageConcurrency, opts.Topic, opts.ImageModel)
		for idx, path := range paths {
			if path != "" {
				enriched[idx].ImagePath = path
			}
		}
	}

	return enriched
}

// DiagramPath is the canonical on-disk location for segment i's diagram.
func DiagramPath(outRoot string, i int) string {
	return filepath.Join(outRoot, "diagrams", fmt.Sprintf("diagram_%d.png", i))
}

// StitchAssetURLs rewrites local artifact paths into externally resolvable
// URLs under the /artifacts route. fsRoot is the directory that route serves,
// so URLs stay valid no matter where the artifacts directory lives on disk.
// Pure function, no I/O.
func StitchAssetURLs(base string, fsRoot string, segs []types.EnrichedSegment) []types.EnrichedSegment {
	out := make([]types.EnrichedSegment, len(segs))
	for i, seg := range segs {
		if seg.DiagramPath != "" {
			seg.DiagramURL = JoinURL(base, routePath(fsRoot, seg.DiagramPath))
		}
		if seg.ImagePath != "" {
			seg.ImageURL = JoinURL(base, routePath(fsRoot, seg.ImagePath))
		}
		out[i] = seg
	}
	return out
}

// routePath maps an on-disk artifact path to its location under the static
// /artifacts route.
func routePath(fsRoot string, p string) string {
	rel, err := filepath.Rel(fsRoot, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = p
	}
	return "artifacts/" + strings.TrimLeft(filepath.ToSlash(rel), "/")
}

func JoinURL(base string, path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
