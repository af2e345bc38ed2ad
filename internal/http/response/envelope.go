// Package response defines the uniform JSON envelope returned by every API
// endpoint, for both success and failure.
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "data": {"id": "…"}, "errors": [] }
//
// Example failure response:
//
//	HTTP/1.1 200 OK
//	{
//	  "success": false,
//	  "data": null,
//	  "errors": [{"code": "RESOURCE_NOT_FOUND", "message": "…"}]
//	}
//
// Exactly one of data/errors is populated. The HTTP status of a failure is
// the status of its first error (500 when the list is empty); clients must
// branch on the error code, which is the stable contract.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Problem is anything that can be rendered as an envelope error item.
// Implemented by *apperr.Error and validation.Error.
type Problem interface {
	ErrorCode() string
	ErrorMessage() string
	HTTPStatus() int
}

// Item is one error entry of a failure envelope.
type Item struct {
	Code    string `json:"code"    example:"RESOURCE_NOT_FOUND"`
	Message string `json:"message" example:"The requested resource was not found."`
}

// Envelope is the response body of every API endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Errors  []Item `json:"errors"`
}

// Success wraps data in a success envelope. The data is passed through
// Serialize so arbitrary result objects render consistently. Success(nil)
// yields "data": null; handlers always return a payload, even for deletes.
func Success(data any) Envelope {
	return Envelope{
		Success: true,
		Data:    Serialize(data),
		Errors:  []Item{},
	}
}

// Failure builds a failure envelope and the HTTP status to send with it.
func Failure(problems ...Problem) (int, Envelope) {
	items := make([]Item, 0, len(problems))
	status := http.StatusInternalServerError
	for i, p := range problems {
		if i == 0 {
			status = p.HTTPStatus()
		}
		items = append(items, Item{Code: p.ErrorCode(), Message: p.ErrorMessage()})
	}
	return status, Envelope{Success: false, Data: nil, Errors: items}
}

// OK writes a success envelope with HTTP 200.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Success(data))
}

// Abort writes a failure envelope, records each problem on the gin context
// (so the session middleware knows the request failed) and stops the chain.
func Abort(c *gin.Context, problems ...Problem) {
	for _, p := range problems {
		if err, ok := p.(error); ok {
			_ = c.Error(err).SetType(gin.ErrorTypePublic)
		} else {
			_ = c.Error(problemError{p}).SetType(gin.ErrorTypePublic)
		}
	}
	status, env := Failure(problems...)
	c.AbortWithStatusJSON(status, env)
}

// problemError adapts a Problem that is not itself an error.
type problemError struct{ Problem }

func (p problemError) Error() string { return p.ErrorCode() + ": " + p.ErrorMessage() }
