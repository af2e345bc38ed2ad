// Health and error-check HTTP handlers.
//
// The health endpoints run through the full API pipeline, so a successful
// answer proves that logging, the database session and authentication work.
// The error-check endpoints deliberately fail in each of the ways the
// pipeline classifies, for smoke-testing deployments.
package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/http/middleware"
	"github.com/tbourn/go-service-shell/internal/repo"
)

// HealthMessage is the payload of a successful health check.
const HealthMessage = "Health check is OK!"

// HealthDetails describes the running service.
type HealthDetails struct {
	AppName     string    `json:"app_name"`
	APIVersion  string    `json:"api_version"`
	Environment string    `json:"environment"`
	Database    string    `json:"database"`
	Time        time.Time `json:"time"`
}

// HealthCheck godoc
// @ID          healthCheck
// @Summary     Health check
// @Tags        Health
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  response.Envelope
// @Router      /healthcheck/ [get]
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, HealthMessage)
}

// HealthDetails godoc
// @ID          healthDetails
// @Summary     Health check with service and database details
// @Tags        Health
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  response.Envelope
// @Router      /healthcheck/details [get]
func (h *Handlers) HealthDetails(c *gin.Context) {
	if err := middleware.DB(c).Exec("SELECT 1").Error; err != nil {
		fail(c, &repo.OpError{Op: "ping", Err: err})
		return
	}
	ok(c, HealthDetails{
		AppName:     h.cfg.AppName,
		APIVersion:  h.cfg.APIVersion,
		Environment: h.cfg.Environment,
		Database:    h.cfg.Database.Driver,
		Time:        time.Now().UTC(),
	})
}

// ConflictCheck godoc
// @ID          errorCheckConflict
// @Summary     Always answers CONCURRENCY_CONFLICT_ERROR
// @Tags        ErrorCheck
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  response.Envelope
// @Router      /errorcheck/conflict [get]
func (h *Handlers) ConflictCheck(c *gin.Context) {
	fail(c, apperr.ConflictError())
}

// SystemCheck godoc
// @ID          errorCheckSystem
// @Summary     Panics; the pipeline answers SYSTEM_ERROR
// @Tags        ErrorCheck
// @Produce     json
// @Security    BearerAuth
// @Failure     500  {object}  response.Envelope
// @Router      /errorcheck/system [get]
func (h *Handlers) SystemCheck(c *gin.Context) {
	panic("errorcheck: deliberate failure")
}

// DBCheck godoc
// @ID          errorCheckDB
// @Summary     Runs a failing statement; the pipeline answers DB_OPERATIONAL
// @Tags        ErrorCheck
// @Produce     json
// @Security    BearerAuth
// @Failure     500  {object}  response.Envelope
// @Router      /errorcheck/db [get]
func (h *Handlers) DBCheck(c *gin.Context) {
	err := middleware.DB(c).Exec("SELECT * FROM errorcheck_missing_table").Error
	if err == nil {
		err = errors.New("errorcheck: statement unexpectedly succeeded")
	}
	fail(c, &repo.OpError{Op: "errorcheck", Err: err})
}
