package httpmw

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/tracing"
)

// Transport values recorded on request spans.
const (
	transportHTTP      = "http"
	transportSSE       = "sse"
	transportWebSocket = "websocket"
)

// OtelTracing wraps each request in a server span named "<method> <route>".
// The span carries the request id set by RequestID and the transport the
// client asked for. Relay runs hang their own span off this one. A request
// whose client went away before the handler returned is flagged with
// client.disconnected. No-op when tracing is disabled.
func OtelTracing(serverName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx, span := tracing.Tracer(serverName).Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRouteKey.String(route),
			attribute.String("relay.transport", requestTransport(c)),
		)
		if id, ok := ctx.Value(logger.RequestIDKey).(string); ok {
			span.SetAttributes(attribute.String("request_id", id))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if size := c.Writer.Size(); size >= 0 {
			span.SetAttributes(attribute.Int("http.response.size", size))
		}
		if c.Request.Context().Err() != nil {
			span.SetAttributes(attribute.Bool("client.disconnected", true))
		}
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}

func requestTransport(c *gin.Context) string {
	switch {
	case c.IsWebsocket():
		return transportWebSocket
	case strings.Contains(c.GetHeader("Accept"), "text/event-stream"):
		return transportSSE
	default:
		return transportHTTP
	}
}
