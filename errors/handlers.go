package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler recovers panics raised by next, logs them with the stack and
// answers with an InternalError.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := requestIDFrom(w, r)
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("request_id", requestID),
					)
					WriteError(w, NewInternalError(requestID, fmt.Errorf("panic: %v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs err with its context. APIErrors are logged field by field.
func LogError(logger *zap.Logger, err error, requestID string) {
	var apiErr *APIError
	if As(err, &apiErr) {
		logger.Error("request error",
			zap.String("error_type", string(apiErr.Type)),
			zap.String("message", apiErr.Message),
			zap.Int("code", apiErr.Code),
			zap.String("request_id", requestID),
			zap.Any("details", apiErr.Details),
			zap.NamedError("cause", apiErr.Unwrap()),
		)
		return
	}
	logger.Error("unexpected error",
		zap.Error(err),
		zap.String("request_id", requestID),
	)
}

func requestIDFrom(w http.ResponseWriter, r *http.Request) string {
	if id := w.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
