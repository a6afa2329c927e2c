package middleware

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	LoggerKey    contextKey = "logger"

	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
)
