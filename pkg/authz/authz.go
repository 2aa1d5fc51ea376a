// Package authz implements role resolution and action-based access control.
// Middleware pulls the auth.Tuple stashed by the preceding auth middleware,
// resolves roles, checks the requested action, and stores the caller's full
// authorized-action set on the gin context for handlers to consult.
package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lightspeed-stack/query-gateway/pkg/auth"
)

// Action is a closed set of RBAC operation names.
type Action string

const (
	ActionQuery                    Action = "QUERY"
	ActionStreamingQuery           Action = "STREAMING_QUERY"
	ActionFeedback                 Action = "FEEDBACK"
	ActionGetConversation          Action = "GET_CONVERSATION"
	ActionListConversations        Action = "LIST_CONVERSATIONS"
	ActionDeleteConversation       Action = "DELETE_CONVERSATION"
	ActionUpdateConversation       Action = "UPDATE_CONVERSATION"
	ActionQueryOthersConversations Action = "QUERY_OTHERS_CONVERSATIONS"
	ActionAdmin                    Action = "ADMIN"
	ActionGetMetrics               Action = "GET_METRICS"
)

// Role is a string tag. Every principal implicitly holds the wildcard role "*".
type Role string

// WildcardRole is held implicitly by every principal.
const WildcardRole Role = "*"

// AccessRule grants a role a set of actions.
type AccessRule struct {
	Role    Role
	Actions map[Action]struct{}
}

// NewAccessRule builds an AccessRule from a role and a variadic action list.
func NewAccessRule(role Role, actions ...Action) AccessRule {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return AccessRule{Role: role, Actions: set}
}

// RoleResolver extracts the roles held by an authenticated principal.
type RoleResolver interface {
	Roles(tuple auth.Tuple) []Role
}

// AccessResolver checks whether a set of roles grants an action, and can
// enumerate the full action set those roles are granted.
type AccessResolver interface {
	Check(action Action, roles []Role) bool
	ActionsFor(roles []Role) map[Action]struct{}
}

const tupleContextKey = "authz.tuple"
const actionsContextKey = "authz.authorized_actions"

// ErrNoTuple is returned (as a 500) when Middleware runs without an
// auth.Tuple already stashed on the context — a programming error, since
// the auth middleware must always run first.
var ErrNoTuple = gin.H{"detail": "internal error: no authenticated principal on request"}

// Middleware returns gin middleware gating action on the resolved roles of
// the request's auth.Tuple (stashed under tupleContextKey by the auth
// middleware that must run before this one).
func Middleware(action Action, roleResolver RoleResolver, accessResolver AccessResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(tupleContextKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrNoTuple)
			return
		}
		tuple := v.(auth.Tuple)

		roles := append([]Role{WildcardRole}, roleResolver.Roles(tuple)...)
		if !accessResolver.Check(action, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "forbidden"})
			return
		}

		c.Set(actionsContextKey, accessResolver.ActionsFor(roles))
		c.Next()
	}
}

// StashTuple stores the authenticated tuple on the gin context. Called by
// the auth middleware once per request, before Middleware runs.
func StashTuple(c *gin.Context, tuple auth.Tuple) {
	c.Set(tupleContextKey, tuple)
}

// Tuple retrieves the tuple stashed by StashTuple, if any.
func Tuple(c *gin.Context) (auth.Tuple, bool) {
	v, ok := c.Get(tupleContextKey)
	if !ok {
		return auth.Tuple{}, false
	}
	t, ok := v.(auth.Tuple)
	return t, ok
}

// AuthorizedActions retrieves the action set stashed by Middleware, if any.
func AuthorizedActions(c *gin.Context) map[Action]struct{} {
	v, ok := c.Get(actionsContextKey)
	if !ok {
		return nil
	}
	set, _ := v.(map[Action]struct{})
	return set
}

// Has reports whether the given action set (as returned by AuthorizedActions)
// contains action.
func Has(actions map[Action]struct{}, action Action) bool {
	_, ok := actions[action]
	return ok
}
