package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	router := gin.New()
	router.Use(GinMiddleware("management-service", otelgin.WithTracerProvider(tp)))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/health", ok)
	router.GET("/metrics", ok)
	router.GET("/rules/routing/:id", ok)

	tests := []struct {
		path     string
		wantSpan string
	}{
		{path: "/health"},
		{path: "/metrics"},
		{path: "/swagger/index.html"},
		{path: "/rules/routing/rule-1", wantSpan: "GET /rules/routing/:id"},
		{path: "/rules/unknown", wantSpan: "GET unmatched"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			before := len(recorder.Ended())
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			ended := recorder.Ended()
			if tt.wantSpan == "" {
				assert.Len(t, ended, before)
				return
			}
			if assert.Len(t, ended, before+1) {
				assert.Equal(t, tt.wantSpan, ended[before].Name())
			}
		})
	}
}
