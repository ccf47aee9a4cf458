package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var untracedPrefixes = []string{"/health", "/metrics", "/swagger/"}

// GinMiddleware traces management API requests. Health, metrics and swagger
// requests are skipped. Spans are named after the route template, so all
// requests for /rules/routing/:id share one name.
func GinMiddleware(serviceName string, opts ...otelgin.Option) gin.HandlerFunc {
	opts = append([]otelgin.Option{
		otelgin.WithFilter(traced),
		otelgin.WithSpanNameFormatter(routeSpanName),
	}, opts...)
	return otelgin.Middleware(serviceName, opts...)
}

func traced(r *http.Request) bool {
	for _, prefix := range untracedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}

func routeSpanName(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	return c.Request.Method + " " + route
}
