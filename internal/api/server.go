package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/dshills/coderag/internal/service"
)

// OpenAPIPath serves the generated API description
const OpenAPIPath = "/apidocs.json"

// MetricsPath serves Prometheus metrics
const MetricsPath = "/metrics"

const shutdownTimeout = 10 * time.Second

// Server is the REST surface of a Service
type Server struct {
	container *restful.Container
	handler   http.Handler
	logger    zerolog.Logger
}

// NewServer builds the container: filters, routes, OpenAPI, metrics and CORS
func NewServer(svc *service.Service, version string, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()

	container := restful.NewContainer()
	container.Filter(requestLogger(logger))
	container.Filter(recoverPanic(logger))

	RegisterRoutes(container, NewHandler(svc, version, logger), svc.Settings().APIKey)

	enrich := func(swo *spec.Swagger) { enrichSwaggerObject(swo, version) }
	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       OpenAPIPath,
		PostBuildSwaggerObjectHandler: enrich,
	}))
	container.Handle(MetricsPath, svc.Metrics().Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return &Server{
		container: container,
		handler:   corsHandler.Handler(container),
		logger:    logger,
	}
}

func enrichSwaggerObject(swo *spec.Swagger, version string) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "coderag",
			Description: "Hybrid retrieval over code and documentation",
			Version:     version,
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{Name: "admin", Description: "Health and configuration"}},
		{TagProps: spec.TagProps{Name: "index", Description: "Index management"}},
		{TagProps: spec.TagProps{Name: "query", Description: "Retrieval and answers"}},
	}
}

// Handler returns the CORS-wrapped container
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // index builds run inside the request
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", addr).Msg("starting server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
