package retrieval

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ugta/ugta-backend/internal/clients/redis"
	"github.com/ugta/ugta-backend/internal/ctxutil"
	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/utils"
)

// NotesService produces the grounding bullet notes the lesson generator is
// prompted with. Retrieval itself lives in a separate service; this is just
// the client side. A nil/empty result is fine: lessons tolerate no notes.
type NotesService interface {
	HelpfulNotes(ctx context.Context, queries []string) ([]string, error)
}

type NotesRequest struct {
	Queries   []string `json:"queries"`
	MMRK      int      `json:"mmr_k"`
	LambdaMMR float64  `json:"lambda_mmr"`
	KFinal    int      `json:"kfinal"`
}

type NotesResponse struct {
	Notes  []string         `json:"notes"`
	Chunks []map[string]any `json:"chunks,omitempty"`
}

type httpNotesService struct {
	log     *logger.Logger
	baseURL string
	client  *http.Client
	cache   redis.NotesCache // nil when redis is not configured
}

// NewNotesService builds the retrieval client from RETRIEVAL_BASE_URL. When
// the variable is unset the returned service yields empty notes, which keeps
// the lesson endpoints usable without a retrieval deployment.
func NewNotesService(log *logger.Logger, cache redis.NotesCache) NotesService {
	baseURL := strings.TrimRight(strings.TrimSpace(utils.GetEnv("RETRIEVAL_BASE_URL", "", log)), "/")
	svcLog := log.With("service", "NotesService")
	if baseURL == "" {
		svcLog.Warn("RETRIEVAL_BASE_URL not set; helpful notes disabled")
		return &disabledNotesService{}
	}
	timeoutSec := utils.GetEnvAsInt("RETRIEVAL_TIMEOUT_SECONDS", 30, log)
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	return &httpNotesService{
		log:     svcLog,
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		cache:   cache,
	}
}

func (s *httpNotesService) HelpfulNotes(ctx context.Context, queries []string) ([]string, error) {
	ctx = ctxutil.Default(ctx)
	if len(queries) == 0 {
		return nil, nil
	}

	key := queriesKey(queries)
	if s.cache != nil {
		if notes, ok := s.cache.Get(ctx, key); ok {
			return notes, nil
		}
	}

	payload, err := json.Marshal(NotesRequest{
		Queries:   queries,
		MMRK:      20,
		LambdaMMR: 0.6,
		KFinal:    10,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/helpful-notes", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("retrieval request: status %d: %s", resp.StatusCode, string(body))
	}

	var out NotesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("retrieval response decode: %w", err)
	}

	if s.cache != nil && len(out.Notes) > 0 {
		s.cache.Set(ctx, key, out.Notes)
	}
	return out.Notes, nil
}

type disabledNotesService struct{}

func (*disabledNotesService) HelpfulNotes(context.Context, []string) ([]string, error) {
	return nil, nil
}

func queriesKey(queries []string) string {
	h := sha256.Sum256([]byte(strings.Join(queries, "\n")))
	return hex.EncodeToString(h[:])[:16]
}
