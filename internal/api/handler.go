package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog"

	"github.com/dshills/coderag/internal/searcher"
	"github.com/dshills/coderag/internal/service"
	"github.com/dshills/coderag/pkg/types"
)

type Handler struct {
	svc     *service.Service
	version string
	logger  zerolog.Logger
}

func NewHandler(svc *service.Service, version string, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, version: version, logger: logger}
}

// GET /health
func (h *Handler) Health(_ *restful.Request, resp *restful.Response) {
	_ = resp.WriteHeaderAndEntity(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// GET /config
func (h *Handler) Config(_ *restful.Request, resp *restful.Response) {
	_ = resp.WriteHeaderAndEntity(http.StatusOK, h.svc.Settings().Redacted())
}

// POST /index/build
func (h *Handler) Build(req *restful.Request, resp *restful.Response) {
	h.build(req, resp, false)
}

// POST /index/incremental
func (h *Handler) Incremental(req *restful.Request, resp *restful.Response) {
	h.build(req, resp, true)
}

func (h *Handler) build(req *restful.Request, resp *restful.Response, incremental bool) {
	body := IndexBuildRequest{Root: service.DefaultRoot, Patterns: []string{DefaultPattern}}
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	buildReq := service.BuildRequest{
		Root:     body.Root,
		Patterns: body.Patterns,
		Exclude:  body.Exclude,
		Clean:    body.Clean,
	}

	ctx := req.Request.Context()
	var (
		result *service.BuildResult
		err    error
	)
	if incremental {
		result, err = h.svc.Incremental(ctx, buildReq)
	} else {
		result, err = h.svc.Build(ctx, buildReq)
	}
	if err != nil {
		if errors.Is(err, service.ErrRootNotFound) {
			writeError(resp, http.StatusBadRequest, fmt.Sprintf("Root path does not exist: %s", body.Root))
			return
		}
		h.fail(resp, err, "Index build failed")
		return
	}

	_ = resp.WriteHeaderAndEntity(http.StatusOK, IndexBuildResponse{
		OK:           true,
		FilesIndexed: result.Stats.FilesIndexed,
		Chunks:       result.Stats.Chunks,
		DurationS:    result.Stats.DurationSeconds,
		FilesSkipped: result.FilesSkipped,
		FilesFailed:  result.FilesFailed,
		Documents:    result.Documents,
		UpToDate:     result.UpToDate,
		Errors:       result.Errors,
	})
}

// GET /index/stats
func (h *Handler) Stats(_ *restful.Request, resp *restful.Response) {
	stats, err := h.svc.Stats()
	if err != nil {
		h.fail(resp, err, "Failed to read stats")
		return
	}
	_ = resp.WriteHeaderAndEntity(http.StatusOK, IndexStatsResponse{
		Files:     stats.FilesIndexed,
		Chunks:    stats.Chunks,
		UpdatedAt: stats.UpdatedAt,
	})
}

// POST /query
func (h *Handler) Query(req *restful.Request, resp *restful.Response) {
	body := QueryRequest{TopK: DefaultTopK}
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if body.TopK < 1 || body.TopK > MaxTopK {
		writeError(resp, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", MaxTopK))
		return
	}

	h.logger.Info().Str("query", body.Q).Int("top_k", body.TopK).Msg("query received")

	result, err := h.svc.Query(req.Request.Context(), body.Q, body.TopK, body.Mode)
	if err != nil {
		h.fail(resp, err, "Query failed")
		return
	}
	_ = resp.WriteHeaderAndEntity(http.StatusOK, QueryResponse{Matches: nonNilMatches(result.Matches)})
}

// POST /answer
func (h *Handler) Answer(req *restful.Request, resp *restful.Response) {
	body := AnswerRequest{TopK: DefaultTopK, MaxTokens: DefaultMaxTokens}
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if body.TopK < 1 || body.TopK > MaxTopK {
		writeError(resp, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", MaxTopK))
		return
	}
	if body.MaxTokens < MinMaxTokens || body.MaxTokens > MaxMaxTokens {
		writeError(resp, http.StatusBadRequest, fmt.Sprintf("max_tokens must be between %d and %d", MinMaxTokens, MaxMaxTokens))
		return
	}

	h.logger.Info().Str("query", body.Q).Str("provider", h.svc.LLMProvider()).Msg("answer requested")

	result, err := h.svc.Answer(req.Request.Context(), body.Q, body.TopK, body.MaxTokens)
	if err != nil {
		h.fail(resp, err, "Answer generation failed")
		return
	}
	_ = resp.WriteHeaderAndEntity(http.StatusOK, AnswerResponse{
		Final:     result.Final,
		Citations: result.Citations,
		Matches:   nonNilMatches(result.Matches),
	})
}

func (h *Handler) fail(resp *restful.Response, err error, prefix string) {
	status, detail := statusFor(err, prefix)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg(prefix)
	}
	writeError(resp, status, detail)
}

// statusFor maps service errors to a status and detail. Unrecognized errors
// are 500s whose detail starts with prefix.
func statusFor(err error, prefix string) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoFilesIndexed):
		return http.StatusBadRequest, "No files were indexed"
	case errors.Is(err, service.ErrIndexNotFound):
		return http.StatusNotFound, "No index found"
	case errors.Is(err, service.ErrNoContext):
		return http.StatusNotFound, "No relevant context found"
	case errors.Is(err, service.ErrBuildInProgress):
		return http.StatusConflict, "Index build already in progress"
	case errors.Is(err, types.ErrEmptyQuery),
		errors.Is(err, searcher.ErrInvalidMode),
		errors.Is(err, searcher.ErrInvalidTopK):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, fmt.Sprintf("%s: %v", prefix, err)
	}
}

func nonNilMatches(m []types.Match) []types.Match {
	if m == nil {
		return []types.Match{}
	}
	return m
}
