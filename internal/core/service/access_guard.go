package service

import (
	"github.com/marketplace/storefront/internal/core/domain"
)

// accessCheck inspects one condition. It returns done=true when the
// evaluation must stop with the returned decision.
type accessCheck func(snap domain.SessionSnapshot, policy domain.AccessPolicy, requestedPath string) (d domain.Decision, done bool)

// accessChecks run in this exact order. Status is checked before role so a
// suspended admin never reaches admin content, and session presence is
// checked before status because there is no status without a user.
var accessChecks = []accessCheck{
	checkResolved,
	checkSession,
	checkStatus,
	checkRole,
}

// EvaluateAccess decides whether a protected region may be rendered for the
// given session snapshot. It never fails: every denial is a navigation.
func EvaluateAccess(snap domain.SessionSnapshot, policy domain.AccessPolicy, requestedPath string) domain.Decision {
	for _, check := range accessChecks {
		if d, done := check(snap, policy, requestedPath); done {
			return d
		}
	}
	return domain.Decision{Outcome: domain.OutcomeAllow, Session: snap.Session}
}

func checkResolved(snap domain.SessionSnapshot, _ domain.AccessPolicy, _ string) (domain.Decision, bool) {
	if snap.Loading() {
		return domain.Decision{Outcome: domain.OutcomeLoading}, true
	}
	return domain.Decision{}, false
}

func checkSession(snap domain.SessionSnapshot, policy domain.AccessPolicy, requestedPath string) (domain.Decision, bool) {
	if snap.Authenticated() {
		return domain.Decision{}, false
	}
	return domain.Decision{
		Outcome:  domain.OutcomeRedirect,
		Reason:   domain.DenyNoSession,
		Location: domain.SignInURL(policy.SignInPath(), requestedPath, ""),
	}, true
}

func checkStatus(snap domain.SessionSnapshot, policy domain.AccessPolicy, _ string) (domain.Decision, bool) {
	status := snap.Session.User.Status
	if status == domain.StatusActive {
		return domain.Decision{}, false
	}
	return domain.Decision{
		Outcome:  domain.OutcomeRedirect,
		Reason:   domain.DenyInactive,
		Location: domain.SignInURL(policy.SignInPath(), "", domain.StatusReason(status)),
	}, true
}

func checkRole(snap domain.SessionSnapshot, policy domain.AccessPolicy, _ string) (domain.Decision, bool) {
	role := snap.Session.User.Role
	if policy.RequiredRole == "" || policy.RequiredRole == role {
		return domain.Decision{}, false
	}
	return domain.Decision{
		Outcome:  domain.OutcomeRedirect,
		Reason:   domain.DenyRoleMismatch,
		Location: domain.RoleHome(role),
	}, true
}
