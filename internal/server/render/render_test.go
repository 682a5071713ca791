package render

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"username": "alice"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"username":"alice"}`, rec.Body.String())
}

func TestJSON_NilIsEmptyObject(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, nil)

	assert.Equal(t, "{}", rec.Body.String())
}

func TestJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, make(chan int))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, `{"message":"Unknown server error.","code":2000}`, rec.Body.String())
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusPreconditionFailed, CodeInvalidAccept, MsgInvalidAccept)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, `{"message":"Invalid Accept header format.","code":101}`, rec.Body.String())
}
