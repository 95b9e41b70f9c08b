package mermaid

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/ugta/ugta-backend/internal/ctxutil"
	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/utils"
)

// fallbackDiagram is a minimal diagram that is always syntactically valid, so
// a caller gets *some* image for the slot even when both the raw and the
// healed source fail to render.
const fallbackDiagram = "graph TD\nA[Start] --> B[Neighbor 1]\nA --> C[Neighbor 2]"

var headerRE = regexp.MustCompile(`^(graph|flowchart)\s`)

// Renderer converts one mermaid source string into a raster image through the
// mermaid-cli (mmdc) binary. Render never returns an error: all failures are
// logged and reported as false.
type Renderer interface {
	Render(ctx context.Context, source string, outPath string, theme string) bool
}

type renderer struct {
	log       *logger.Logger
	timeout   time.Duration
	resolvers []resolverFunc
}

func New(log *logger.Logger) Renderer {
	timeoutSec := utils.GetEnvAsInt("MERMAID_TIMEOUT_SECONDS", 60, log)
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &renderer{
		log:       log.With("service", "MermaidRenderer"),
		timeout:   time.Duration(timeoutSec) * time.Second,
		resolvers: defaultResolvers(),
	}
}

func (r *renderer) Render(ctx context.Context, source string, outPath string, theme string) bool {
	ctx = ctxutil.Default(ctx)
	if theme == "" {
		theme = "default"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		r.log.Error("mkdir for diagram output failed", "path", outPath, "error", err)
		return false
	}
	bin := r.resolveBinary()

	if r.tryRender(ctx, bin, source, outPath, theme) {
		return true
	}
	healed := HealSource(source)
	if healed != source && r.tryRender(ctx, bin, healed, outPath, theme) {
		return true
	}
	return r.tryRender(ctx, bin, fallbackDiagram, outPath, theme)
}

func (r *renderer) tryRender(ctx context.Context, bin string, source string, outPath string, theme string) bool {
	tmpDir, err := os.MkdirTemp("", "mmd_")
	if err != nil {
		r.log.Error("mermaid temp dir failed", "error", err)
		return false
	}
	defer os.RemoveAll(tmpDir)

	mmdPath := filepath.Join(tmpDir, "diagram.mmd")
	if err := os.WriteFile(mmdPath, []byte(source), 0o644); err != nil {
		r.log.Error("mermaid source write failed", "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "-i", mmdPath, "-o", outPath, "-t", theme, "-b", "transparent")
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.log.Warn("mmdc render failed", "bin", bin, "error", err, "out", string(out))
		return false
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		r.log.Warn("mmdc produced no output", "path", outPath, "out", string(out))
		return false
	}
	return true
}

// HealSource applies the two cheap fixes that rescue most broken model
// output: a missing graph/flowchart header and fragile "style" lines.
func HealSource(source string) string {
	c := strings.TrimSpace(source)
	if !headerRE.MatchString(c) {
		c = "graph TD\n" + c
	}
	lines := make([]string, 0, strings.Count(c, "\n")+1)
	for _, line := range strings.Split(c, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "style ") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ---------- binary resolution ----------

// resolverFunc returns a candidate mmdc invocation path, or "" to let the
// next strategy in the chain try.
type resolverFunc func() string

func defaultResolvers() []resolverFunc {
	return []resolverFunc{resolveFromEnv, resolveFromPath, resolveInstallGuess, resolveBareName}
}

func (r *renderer) resolveBinary() string {
	for _, resolve := range r.resolvers {
		if p := resolve(); p != "" {
			return p
		}
	}
	return "mmdc"
}

func resolveFromEnv() string {
	return strings.TrimSpace(os.Getenv("MERMAID_BIN"))
}

func resolveFromPath() string {
	candidates := []string{"mmdc"}
	if runtime.GOOS == "windows" {
		// The .cmd shim is the reliable entrypoint for npm installs.
		candidates = []string{"mmdc.cmd", "mmdc"}
	}
	for _, cand := range candidates {
		if p, err := exec.LookPath(cand); err == nil {
			return p
		}
	}
	return ""
}

func resolveInstallGuess() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	var guess string
	if runtime.GOOS == "windows" {
		guess = filepath.Join(home, "AppData", "Roaming", "npm", "mmdc.cmd")
	} else {
		guess = filepath.Join(home, ".npm-global", "bin", "mmdc")
	}
	if _, err := os.Stat(guess); err == nil {
		return guess
	}
	return ""
}

func resolveBareName() string {
	if runtime.GOOS == "windows" {
		return "mmdc.cmd"
	}
	return "mmdc"
}
