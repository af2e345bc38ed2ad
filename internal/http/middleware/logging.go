// Package middleware contains the Gin middleware that forms the request
// pipeline of the API group:
//
//	RequestLogging → DBSession → Auth → RateLimiter → handler
//
// This file provides the outermost stage. RequestLogging:
//
//   - creates the request context (a fresh correlation id) and a
//     request-scoped zerolog.Logger carrying it;
//   - echoes the id in the X-Request-ID response header;
//   - logs "start request" / "end request" with latency and status;
//   - recovers panics from every later stage and converts them, together
//     with errors nobody turned into a response, into a failure envelope.
//
// Nothing raised downstream ever reaches the HTTP server.
package middleware

import (
	"errors"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/http/response"
	"github.com/tbourn/go-service-shell/internal/reqctx"
)

const (
	// requestIDKey is the Gin context key under which the correlation id is stored.
	requestIDKey = "requestID"
	// loggerKey is the Gin context key of the request-scoped logger.
	loggerKey = "logger"
	// requestIDHeader is the HTTP header used to expose the correlation ID.
	requestIDHeader = "X-Request-ID"
	// Bytes of raw query string logged per request.
	maxQueryLogLength = 2048
)

// RequestLogging returns the outermost pipeline stage. opts adds headers to
// mask when request headers are logged at debug level.
//
// An inbound X-Request-ID is never reused as the correlation id; it is only
// logged as upstream_request_id.
func RequestLogging(opts ...RedactOptions) gin.HandlerFunc {
	var o RedactOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	red := newRedactor(o)

	return func(c *gin.Context) {
		start := time.Now()

		rc := reqctx.New()
		rid := rc.CorrelationID.String()

		path := c.FullPath()
		if path == "" {
			// Fallback when route not matched / 404.
			path = c.Request.URL.Path
		}

		lc := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", path)
		if up := c.GetHeader(requestIDHeader); up != "" {
			lc = lc.Str("upstream_request_id", truncate(up, 128))
		}
		l := lc.Logger()

		ctx := reqctx.WithContext(c.Request.Context(), rc)
		c.Request = c.Request.WithContext(l.WithContext(ctx))
		c.Set(loggerKey, &l)
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)

		l.Info().
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", red.scrub(truncate(c.Request.URL.RawQuery, maxQueryLogLength))).
			Msg("start request")
		if ev := l.Debug(); ev.Enabled() {
			ev.Interface("headers", red.headers(c.Request.Header)).Msg("request headers")
		}

		defer func() {
			if rec := recover(); rec != nil {
				l.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				writeFailure(c, apperr.SystemError())
			} else if len(c.Errors) > 0 {
				handleRecordedErrors(c, &l)
			}
			observeErrorCodes(c.Errors)

			status := c.Writer.Status()
			ev := l.Info()
			switch {
			case status >= 500:
				ev = l.Error()
			case status >= 400:
				ev = l.Warn()
			}
			ev.Int("status", status).
				Dur("latency", time.Since(start)).
				Int("bytes_out", c.Writer.Size()).
				Msg("end request")
		}()

		c.Next()
	}
}

// handleRecordedErrors answers a request that recorded errors but wrote
// nothing. A classified error is reported as itself; anything else is
// hidden behind SYSTEM_ERROR. Everything but application errors is logged
// in full.
func handleRecordedErrors(c *gin.Context, l *zerolog.Logger) {
	last := c.Errors.Last().Err
	var p response.Problem
	known := errors.As(last, &p)
	if !known || apperr.IsSystem(last) {
		l.Error().Err(last).Str("errors", c.Errors.String()).Msg("request failed")
	}
	if c.Writer.Written() {
		return
	}
	if known {
		writeFailure(c, p)
		return
	}
	writeFailure(c, apperr.SystemError())
}

// writeFailure writes a failure envelope unless a response is already out.
func writeFailure(c *gin.Context, problems ...response.Problem) {
	if c.Writer.Written() {
		return
	}
	status, env := response.Failure(problems...)
	c.AbortWithStatusJSON(status, env)
}

// LoggerFrom returns the request-scoped zerolog.Logger.
//
// If a logger was not previously attached by RequestLogging(), a fallback
// logger is returned (without request-scoped fields). Callers can safely use
// the result without nil checks.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// RequestID returns the correlation id of the current request, if any.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// truncate cuts s to n bytes plus an ellipsis; n <= 0 keeps s whole.
func truncate(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n] + "…"
	}
	return s
}
