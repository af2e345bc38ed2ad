// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the helpers every handler uses to finish a request, so
// that success and failure always leave the same way:
//
//   - ok() wraps the result in a success envelope (HTTP 200);
//   - fail() turns an error into a failure envelope when it is classified
//     (apperr.Error, validation.Error), and otherwise records it on the gin
//     context for the pipeline: the session middleware answers database
//     errors with DB_OPERATIONAL and the logging middleware hides anything
//     else behind SYSTEM_ERROR.
//
// Example failure response:
//
//	HTTP/1.1 200 OK
//	{
//	  "success": false,
//	  "data": null,
//	  "errors": [{"code": "RESOURCE_NOT_FOUND", "message": "The requested resource was not found."}]
//	}
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-service-shell/internal/apperr"
	"github.com/tbourn/go-service-shell/internal/http/response"
	"github.com/tbourn/go-service-shell/internal/repo"
	"github.com/tbourn/go-service-shell/internal/validation"
)

// fail finishes the request with err and stops the chain.
func fail(c *gin.Context, err error) {
	var p response.Problem
	if !repo.IsDatabaseError(err) && errors.As(err, &p) {
		response.Abort(c, p)
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// invalid answers with every validation failure at once.
func invalid(c *gin.Context, errs []validation.Error) {
	problems := make([]response.Problem, len(errs))
	for i, e := range errs {
		problems[i] = e
	}
	response.Abort(c, problems...)
}

// ok writes a success envelope.
func ok(c *gin.Context, data any) {
	response.OK(c, data)
}

// NoRoute answers requests that match no route.
func NoRoute(c *gin.Context) {
	response.Abort(c, apperr.RouteNotFound())
}

// NoMethod answers requests whose path exists under another method.
func NoMethod(c *gin.Context) {
	response.Abort(c, apperr.MethodNotAllowed())
}
