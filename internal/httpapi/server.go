// Package httpapi exposes the blob service over HTTP using gin.
package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solacelabs/blobvault/internal/observability"
	"github.com/solacelabs/blobvault/internal/service"
)

// maxRequestBody caps the bytes read off the wire before the handler's own
// size check; base64-encoded uploads inflate by 4/3.
const maxRequestBody = 16 << 20

// NewRouter builds the gin engine serving the blob endpoint, health check,
// and metrics. All method and content-type dispatch, including the OPTIONS
// preflight, lives in the service handler so the contract is identical under
// any front end.
func NewRouter(h *service.Handler, metrics *observability.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	r.Any("/", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
		if err != nil {
			c.String(http.StatusBadRequest, "failed to read request body")
			return
		}

		resp := h.Handle(c.Request.Context(), service.Request{
			Method:      c.Request.Method,
			ContentType: c.GetHeader("Content-Type"),
			Body:        body,
			RequestID:   c.GetHeader("X-Request-Id"),
			SourceIP:    c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
		})

		for k, v := range resp.Headers {
			c.Header(k, v)
		}
		c.Data(resp.Status, resp.Headers["Content-Type"], resp.Body)
	})

	return r
}
