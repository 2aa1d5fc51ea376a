package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lightspeed-stack/query-gateway/pkg/auth"
	"github.com/lightspeed-stack/query-gateway/pkg/authz"
	"github.com/lightspeed-stack/query-gateway/pkg/gatewayerr"
)

const tupleRequestKey = "api.tuple"

// authMiddleware runs module.Authenticate and stashes the resulting Tuple
// on both gin's context (for handlers) and pkg/authz's context key (for
// the authorization middleware that runs after it).
func authMiddleware(module auth.Module) gin.HandlerFunc {
	return func(c *gin.Context) {
		tuple, err := module.Authenticate(c.Request)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMalformedToken):
				writeErr(c, gatewayerr.Wrap(gatewayerr.KindMalformedRequest, "malformed bearer token", err.Error()))
			case errors.Is(err, auth.ErrForbidden):
				writeErr(c, gatewayerr.Wrap(gatewayerr.KindForbidden, "authorization failed", err.Error()))
			default:
				writeErr(c, gatewayerr.Wrap(gatewayerr.KindUnauthenticated, "authentication failed", err.Error()))
			}
			c.Abort()
			return
		}
		c.Set(tupleRequestKey, tuple)
		authz.StashTuple(c, tuple)
		c.Next()
	}
}

// requestTuple retrieves the Tuple stashed by authMiddleware.
func requestTuple(c *gin.Context) auth.Tuple {
	v, _ := c.Get(tupleRequestKey)
	t, _ := v.(auth.Tuple)
	return t
}

// writeErr maps err to its HTTP response, the gin rendering of tarsy's
// mapServiceError translator: every gatewayerr.Error carries its own
// status; anything else is an unexpected internal failure.
func writeErr(c *gin.Context, err error) {
	var gwErr *gatewayerr.Error
	if errors.As(err, &gwErr) {
		body := gin.H{"detail": gwErr.Response}
		if gwErr.Cause != "" {
			body["cause"] = gwErr.Cause
		}
		c.JSON(gwErr.Status(), body)
		return
	}
	slog.Error("api: unexpected handler error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}
