package httpkit

import (
	"time"

	"concierge_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// RequestID reuses a well-formed incoming X-Request-ID or mints one, echoes
// it on the response and stores it in the request context for the logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestLogger writes one line per request. Requests that recorded an error
// on the context are logged at error level with the last error.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		method, path, ip := c.Request.Method, c.Request.URL.Path, c.ClientIP()
		log := log.WithContext(c.Request.Context())
		if last := c.Errors.Last(); last != nil {
			log.HTTPError(method, path, c.Writer.Status(), last.Err, ip)
			return
		}
		log.HTTPRequest(method, path, c.Writer.Status(), float64(time.Since(start).Milliseconds()), ip)
	}
}

// SecurityHeaders sets the headers every API response carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if c.Request.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
