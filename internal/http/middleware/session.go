package middleware

import (
	"bytes"
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/http/response"
	"github.com/tbourn/go-service-shell/internal/repo"
)

// sessionKey is the Gin context key of the request's repo.Session.
const sessionKey = "dbSession"

// SessionFactory opens one database session per request.
// repo.Sessions is the production implementation.
type SessionFactory interface {
	Begin(ctx context.Context) (repo.Session, error)
}

// DBSession opens a session for the request and decides its fate once the
// rest of the chain has run:
//
//   - no recorded error and no panic: commit, then send the response;
//   - a recorded database error, or a failed commit: roll back and answer
//     DB_OPERATIONAL instead of whatever the handler produced;
//   - any other recorded error: roll back and send the handler's response;
//   - panic: roll back, discard the response and re-panic for RequestLogging.
//
// The downstream response is buffered so that it reaches the client only
// after the commit succeeded. The session is closed on every path.
func DBSession(factory SessionFactory) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := LoggerFrom(c)
		lg.Debug().Msg("start db session")

		sess, err := factory.Begin(c.Request.Context())
		if err != nil {
			lg.Error().Err(err).Msg("open db session")
			sessionOutcomes.WithLabelValues("begin_failed").Inc()
			response.Abort(c, apperr.DBOperationalError(err))
			return
		}
		c.Set(sessionKey, sess)

		bw := &bufferedWriter{ResponseWriter: c.Writer, status: c.Writer.Status()}
		c.Writer = bw

		outcome := "rollback"
		defer func() {
			c.Writer = bw.ResponseWriter
			rec := recover()

			switch {
			case rec != nil:
				outcome = "panic"
				rollback(c, sess)
			case len(c.Errors) == 0:
				if err := sess.Commit(); err != nil {
					outcome = "commit_failed"
					lg.Error().Err(err).Msg("commit db session")
					response.Abort(c, apperr.DBOperationalError(err))
					break
				}
				outcome = "commit"
				flush(c, bw)
			default:
				rollback(c, sess)
				if dbErr := firstDatabaseError(c.Errors); dbErr != nil {
					lg.Error().Err(dbErr).Msg("database operation failed")
					response.Abort(c, apperr.DBOperationalError(dbErr))
					break
				}
				flush(c, bw)
			}

			if err := sess.Close(); err != nil {
				lg.Error().Err(err).Msg("close db session")
			}
			sessionOutcomes.WithLabelValues(outcome).Inc()
			lg.Debug().Str("outcome", outcome).Msg("end db session")

			if rec != nil {
				panic(rec)
			}
		}()

		c.Next()
	}
}

// DB returns the transaction of the current request. It panics when called
// outside DBSession, which is a wiring bug.
func DB(c *gin.Context) *gorm.DB {
	v, ok := c.Get(sessionKey)
	if !ok {
		panic("middleware: no db session in context")
	}
	return v.(repo.Session).DB().WithContext(c.Request.Context())
}

func rollback(c *gin.Context, sess repo.Session) {
	if err := sess.Rollback(); err != nil {
		LoggerFrom(c).Error().Err(err).Msg("rollback db session")
	}
}

func flush(c *gin.Context, bw *bufferedWriter) {
	if err := bw.flush(); err != nil {
		LoggerFrom(c).Warn().Err(err).Msg("write response")
	}
}

func firstDatabaseError(errs []*gin.Error) error {
	for _, e := range errs {
		if repo.IsDatabaseError(e.Err) {
			return e.Err
		}
	}
	return nil
}

// bufferedWriter holds the response in memory until flush.
type bufferedWriter struct {
	gin.ResponseWriter
	buf    bytes.Buffer
	status int
	wrote  bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.wrote {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() { w.wrote = true }

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.buf.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.wrote = true
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Written() bool { return w.wrote }
func (w *bufferedWriter) Status() int   { return w.status }

func (w *bufferedWriter) Size() int {
	if !w.wrote {
		return -1
	}
	return w.buf.Len()
}

// Flush is a no-op: nothing may reach the client before the commit.
func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) flush() error {
	w.ResponseWriter.WriteHeader(w.status)
	if w.buf.Len() == 0 {
		if w.wrote {
			w.ResponseWriter.WriteHeaderNow()
		}
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf.Bytes())
	return err
}
