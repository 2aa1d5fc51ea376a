package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspeed-stack/query-gateway/pkg/auth"
	"github.com/lightspeed-stack/query-gateway/pkg/gatewayerr"
)

func init() { gin.SetMode(gin.TestMode) }

type failingAuth struct{}

func (failingAuth) Authenticate(*http.Request) (auth.Tuple, error) {
	return auth.Tuple{}, errors.New("bad token")
}

func TestAuthMiddlewareRejectsFailedAuthentication(t *testing.T) {
	r := gin.New()
	r.GET("/x", authMiddleware(failingAuth{}), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareStashesTupleForHandlers(t *testing.T) {
	r := gin.New()
	r.GET("/x", authMiddleware(auth.Noop{}), func(c *gin.Context) {
		tuple := requestTuple(c)
		c.JSON(http.StatusOK, gin.H{"user_id": tuple.UserID})
	})

	req := httptest.NewRequest(http.MethodGet, "/x?user_id=u-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u-1", body["user_id"])
}

func TestWriteErrRendersGatewayErrorWithItsOwnStatus(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		writeErr(c, gatewayerr.New(gatewayerr.KindQuotaExceeded, "too many tokens"))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "too many tokens", body["detail"])
}

func TestWriteErrRendersUnknownErrorAsInternalServerError(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		writeErr(c, errors.New("boom"))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
