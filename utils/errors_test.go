package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatus(t *testing.T) {
	cases := map[*Error]int{
		Validation("name", "required"): http.StatusBadRequest,
		Unauthorized("no"):              http.StatusUnauthorized,
		Forbidden("no"):                 http.StatusForbidden,
		NotFound("gone"):                http.StatusNotFound,
		Conflict("taken"):               http.StatusConflict,
		Internal(errors.New("db"), "x"): http.StatusInternalServerError,
	}
	for e, status := range cases {
		assert.Equal(t, status, e.Status(), string(e.Kind))
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(errors.Wrap(NotFound("x"), "context")))
	assert.Equal(t, KindServer, KindOf(errors.New("plain")))

	cause := errors.New("connection refused")
	err := Internal(cause, "load user")
	assert.Equal(t, cause, errors.Cause(err))
	assert.Equal(t, "internal server error", err.Message)
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/x", nil)
	RespondError(c, Validation("attachments[1].type", "invalid attachment type"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, c.IsAborted())
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation", body["kind"])
	assert.Equal(t, "attachments[1].type", body["field"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/y", nil)
	RespondError(c, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
	assert.NotContains(t, w.Body.String(), "boom")
}
