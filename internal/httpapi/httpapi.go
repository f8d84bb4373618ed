// Package httpapi exposes the query pipeline over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/logger"
	"fin-query-agent/internal/types"
)

const (
	HeaderGroqKey = "X-Groq-Api-Key"
	HeaderSerpKey = "X-Serpapi-Key"

	// statusClientClosed is used when the caller went away mid-query.
	statusClientClosed = 499
)

type QueryRequest struct {
	Query      string `json:"query"`
	GroqAPIKey string `json:"groq_api_key"`
	SerpAPIKey string `json:"serpapi_key"`
}

type Handler struct {
	processor interfaces.QueryProcessor
	timeout   time.Duration
}

func NewHandler(p interfaces.QueryProcessor, timeout time.Duration) *Handler {
	return &Handler{processor: p, timeout: timeout}
}

// Router builds the gin engine with the query and health routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/query", h.Query)
	}
	return r
}

// Query runs one pipeline invocation bound to the request context, so a
// client disconnect cancels the in-flight external calls. Keys come from the
// body or the X-Groq-Api-Key / X-Serpapi-Key headers and are never stored.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	creds := types.Credentials{
		GroqAPIKey: firstNonEmpty(req.GroqAPIKey, c.GetHeader(HeaderGroqKey)),
		SerpAPIKey: firstNonEmpty(req.SerpAPIKey, c.GetHeader(HeaderSerpKey)),
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res := h.processor.ProcessQuery(ctx, req.Query, creds)
	if ctx.Err() != nil && c.Request.Context().Err() != nil {
		logger.Info(ctx, "Client went away before the answer was ready", "invocation_id", res.InvocationID)
	}
	c.JSON(StatusFor(res), res)
}

// StatusFor maps a result onto an HTTP status.
func StatusFor(res types.Result) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.Failure.Kind {
	case types.KindCredential:
		return http.StatusUnauthorized
	case types.KindInput:
		return http.StatusBadRequest
	case types.KindRetrieval, types.KindSynthesis:
		return http.StatusBadGateway
	case types.KindCanceled:
		return statusClientClosed
	default:
		return http.StatusInternalServerError
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
