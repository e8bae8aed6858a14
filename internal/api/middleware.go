package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog"
)

// APIKeyHeader carries the shared secret on guarded routes
const APIKeyHeader = "X-API-Key"

// requestLogger logs one line per request after it has been served
func requestLogger(logger zerolog.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		start := time.Now()
		chain.ProcessFilter(req, resp)

		logger.Info().
			Str("method", req.Request.Method).
			Str("path", req.Request.URL.Path).
			Int("status", resp.StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	}
}

// recoverPanic turns a handler panic into a 500
func recoverPanic(logger zerolog.Logger) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Interface("panic", r).
					Str("path", req.Request.URL.Path).
					Msg("unhandled panic")
				writeError(resp, http.StatusInternalServerError, "Internal server error")
			}
		}()
		chain.ProcessFilter(req, resp)
	}
}

// requireAPIKey rejects requests whose X-API-Key does not match key. An
// empty key disables the check.
func requireAPIKey(key string) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		if key != "" {
			got := req.HeaderParameter(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(resp, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		chain.ProcessFilter(req, resp)
	}
}

func writeError(resp *restful.Response, status int, detail string) {
	_ = resp.WriteHeaderAndEntity(status, ErrorResponse{Detail: detail})
}
