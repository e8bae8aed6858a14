package api

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
)

// RegisterRoutes adds the public and the key-guarded web services
func RegisterRoutes(container *restful.Container, handler *Handler, apiKey string) {
	guard := requireAPIKey(apiKey)

	// guarded per route here, per service on /index
	root := new(restful.WebService)
	root.
		Path("/").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	root.
		Route(root.GET("health").
			To(handler.Health).
			Doc("Health check").
			Metadata(restfulspec.KeyOpenAPITags, []string{"admin"}).
			Writes(HealthResponse{}).
			Returns(200, "OK", HealthResponse{}))

	root.
		Route(root.GET("config").
			To(handler.Config).
			Doc("Current configuration with secrets redacted").
			Metadata(restfulspec.KeyOpenAPITags, []string{"admin"}).
			Writes(map[string]any{}).
			Returns(200, "OK", map[string]any{}))

	index := new(restful.WebService)
	index.
		Path("/index").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON).
		Filter(guard)

	index.
		Route(index.POST("/build").
			To(handler.Build).
			Doc("Build or rebuild the search indices").
			Metadata(restfulspec.KeyOpenAPITags, []string{"index"}).
			Param(index.HeaderParameter(APIKeyHeader, "Shared API key").DataType("string")).
			Reads(IndexBuildRequest{}).
			Writes(IndexBuildResponse{}).
			Returns(200, "OK", IndexBuildResponse{}).
			Returns(400, "Bad Request", ErrorResponse{}).
			Returns(401, "Unauthorized", ErrorResponse{}).
			Returns(409, "Build In Progress", ErrorResponse{}).
			Returns(500, "Internal Server Error", ErrorResponse{}))

	index.
		Route(index.POST("/incremental").
			To(handler.Incremental).
			Doc("Re-index changed files only").
			Metadata(restfulspec.KeyOpenAPITags, []string{"index"}).
			Param(index.HeaderParameter(APIKeyHeader, "Shared API key").DataType("string")).
			Reads(IndexBuildRequest{}).
			Writes(IndexBuildResponse{}).
			Returns(200, "OK", IndexBuildResponse{}).
			Returns(400, "Bad Request", ErrorResponse{}).
			Returns(401, "Unauthorized", ErrorResponse{}).
			Returns(409, "Build In Progress", ErrorResponse{}).
			Returns(500, "Internal Server Error", ErrorResponse{}))

	index.
		Route(index.GET("/stats").
			To(handler.Stats).
			Doc("Statistics of the last completed build").
			Metadata(restfulspec.KeyOpenAPITags, []string{"index"}).
			Param(index.HeaderParameter(APIKeyHeader, "Shared API key").DataType("string")).
			Writes(IndexStatsResponse{}).
			Returns(200, "OK", IndexStatsResponse{}).
			Returns(401, "Unauthorized", ErrorResponse{}).
			Returns(404, "No Index Found", ErrorResponse{}).
			Returns(500, "Internal Server Error", ErrorResponse{}))

	root.
		Route(root.POST("query").
			To(handler.Query).
			Filter(guard).
			Doc("Search for relevant code and docs").
			Metadata(restfulspec.KeyOpenAPITags, []string{"query"}).
			Param(root.HeaderParameter(APIKeyHeader, "Shared API key").DataType("string")).
			Reads(QueryRequest{}).
			Writes(QueryResponse{}).
			Returns(200, "OK", QueryResponse{}).
			Returns(400, "Bad Request", ErrorResponse{}).
			Returns(401, "Unauthorized", ErrorResponse{}).
			Returns(500, "Internal Server Error", ErrorResponse{}))

	root.
		Route(root.POST("answer").
			To(handler.Answer).
			Filter(guard).
			Doc("Answer a question from retrieved context").
			Metadata(restfulspec.KeyOpenAPITags, []string{"query"}).
			Param(root.HeaderParameter(APIKeyHeader, "Shared API key").DataType("string")).
			Reads(AnswerRequest{}).
			Writes(AnswerResponse{}).
			Returns(200, "OK", AnswerResponse{}).
			Returns(400, "Bad Request", ErrorResponse{}).
			Returns(401, "Unauthorized", ErrorResponse{}).
			Returns(404, "No Relevant Context", ErrorResponse{}).
			Returns(500, "Internal Server Error", ErrorResponse{}))

	container.Add(root)
	container.Add(index)
}
