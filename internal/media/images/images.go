package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ugta/ugta-backend/internal/ctxutil"
	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/promptstyle"
)

const (
	minConcurrency = 1
	maxConcurrency = 32
)

// Oracle is the image-generation side of the LLM client.
type Oracle interface {
	GenerateImage(ctx context.Context, prompt string, model string) ([]byte, error)
}

// Prompt pairs an image prompt with the segment index it belongs to.
type Prompt struct {
	Index int
	Text  string
}

// Generator runs image-generation jobs against the oracle with bounded
// concurrency. Jobs are isolated: one failing never affects its siblings.
type Generator struct {
	log    *logger.Logger
	oracle Oracle
}

func NewGenerator(log *logger.Logger, oracle Oracle) *Generator {
	return &Generator{
		log:    log.With("service", "ImageGenerator"),
		oracle: oracle,
	}
}

// GenerateImages renders one image per prompt into outDir, at most
// clamp(concurrency, 1, 32) at a time. The result always holds exactly one
// entry per input index; a failed job maps to "". Completion order is
// unspecified and the mapping is assembled as jobs finish.
func (g *Generator) GenerateImages(ctx context.Context, prompts []Prompt, outDir string, concurrency int, topic string, model string) map[int]string {
	ctx = ctxutil.Default(ctx)
	saved := make(map[int]string, len(prompts))
	if len(prompts) == 0 {
		return saved
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		g.log.Error("mkdir image output dir failed", "dir", outDir, "error", err)
		for _, p := range prompts {
			saved[p.Index] = ""
		}
		return saved
	}

	limit := concurrency
	if limit < minConcurrency {
		limit = minConcurrency
	}
	if limit > maxConcurrency {
		limit = maxConcurrency
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, p := range prompts {
		p := p
		eg.Go(func() error {
			path := g.generateOne(egCtx, p, outDir, topic, model)
			mu.Lock()
			saved[p.Index] = path
			mu.Unlock()
			return nil
		})
	}
	// Jobs never return errors; Wait is only a completion barrier.
	_ = eg.Wait()
	return saved
}

func (g *Generator) generateOne(ctx context.Context, p Prompt, outDir string, topic string, model string) string {
	prompt := promptstyle.EnrichImagePrompt(p.Text, topic)

	data, err := g.oracle.GenerateImage(ctx, prompt, model)
	if err != nil {
		g.log.Warn("image generation failed", "idx", p.Index, "error", err)
		return ""
	}

	path := filepath.Join(outDir, fmt.Sprintf("img_%d.png", p.Index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		g.log.Warn("image write failed", "idx", p.Index, "path", path, "error", err)
		return ""
	}
	return path
}
