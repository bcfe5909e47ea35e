package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RespondSuccess writes a 200 response with the payload under "data".
func RespondSuccess(c *gin.Context, data interface{}, meta interface{}) {
	respond(c, http.StatusOK, data, meta)
}

// RespondCreated writes a 201 response with the payload under "data".
func RespondCreated(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, data, nil)
}

func respond(c *gin.Context, status int, data interface{}, meta interface{}) {
	body := gin.H{"data": data}
	if meta != nil {
		body["meta"] = meta
	}
	c.JSON(status, body)
}

// RespondError maps err onto the error taxonomy and aborts the request.
// Anything that is not a *Error is reported as a server error and logged.
func RespondError(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err, "unhandled")
	}
	if e.Kind == KindServer {
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).WithError(err).Error("request failed")
	}
	body := gin.H{"error": e.Message, "kind": e.Kind}
	if e.Field != "" {
		body["field"] = e.Field
	}
	c.AbortWithStatusJSON(e.Status(), body)
}
