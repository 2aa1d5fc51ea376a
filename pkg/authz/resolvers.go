package authz

import "github.com/lightspeed-stack/query-gateway/pkg/auth"

// allActions is the universe of every declared Action.
var allActions = map[Action]struct{}{
	ActionQuery:                    {},
	ActionStreamingQuery:           {},
	ActionFeedback:                 {},
	ActionGetConversation:          {},
	ActionListConversations:        {},
	ActionDeleteConversation:       {},
	ActionUpdateConversation:       {},
	ActionQueryOthersConversations: {},
	ActionAdmin:                    {},
	ActionGetMetrics:               {},
}

// NoopRoleResolver resolves every principal to no roles beyond the implicit
// wildcard; paired with NoopAccessResolver it grants every action to
// everyone, for deployments with no JWT claim rules configured.
type NoopRoleResolver struct{}

// Roles implements RoleResolver.
func (NoopRoleResolver) Roles(auth.Tuple) []Role { return nil }

// NoopAccessResolver grants the full action universe to every role.
type NoopAccessResolver struct{}

// Check implements AccessResolver.
func (NoopAccessResolver) Check(Action, []Role) bool { return true }

// ActionsFor implements AccessResolver.
func (NoopAccessResolver) ActionsFor([]Role) map[Action]struct{} { return allActions }

// JwtRoleClaimRule maps a JWT claim name/value pair to a role.
type JwtRoleClaimRule struct {
	Claim string
	Value string
	Role  Role
}

// JwtRoleResolver resolves roles by matching configured claim rules against
// the raw claims embedded in the request's bearer token. It only has
// anything to resolve when the auth module that produced the Tuple also
// decoded the JWT (jwk-token); other modules yield no extra roles.
type JwtRoleResolver struct {
	Rules  []JwtRoleClaimRule
	Claims func(token string) (map[string]any, error)
}

// Roles implements RoleResolver.
func (r JwtRoleResolver) Roles(tuple auth.Tuple) []Role {
	if tuple.Token == "" || r.Claims == nil {
		return nil
	}
	claims, err := r.Claims(tuple.Token)
	if err != nil {
		return nil
	}

	var roles []Role
	for _, rule := range r.Rules {
		v, ok := claims[rule.Claim]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s == rule.Value {
			roles = append(roles, rule.Role)
		}
	}
	return roles
}

// GenericAccessResolver evaluates a fixed list of (role, action-set) rules:
// an action is granted when any held role appears in a rule granting it.
type GenericAccessResolver struct {
	Rules []AccessRule
}

// Check implements AccessResolver.
func (g GenericAccessResolver) Check(action Action, roles []Role) bool {
	for _, rule := range g.Rules {
		if !hasRole(roles, rule.Role) {
			continue
		}
		if _, ok := rule.Actions[action]; ok {
			return true
		}
	}
	return false
}

// ActionsFor implements AccessResolver.
func (g GenericAccessResolver) ActionsFor(roles []Role) map[Action]struct{} {
	out := make(map[Action]struct{})
	for _, rule := range g.Rules {
		if !hasRole(roles, rule.Role) {
			continue
		}
		for a := range rule.Actions {
			out[a] = struct{}{}
		}
	}
	return out
}

func hasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
