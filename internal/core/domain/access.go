package domain

import (
	"net/url"
	"strings"
)

// Sign-in entry points.
const (
	LoginPath      = "/login"
	AdminLoginPath = "/admin/login"
)

// Reason codes passed to the sign-in entry point in the "error" query parameter.
const (
	ReasonAccountSuspended = "account_suspended"
	ReasonAccountBanned    = "account_banned"
)

// roleHomes is the fixed role-to-home mapping.
var roleHomes = map[Role]string{
	RoleClient: "/client/dashboard",
	RoleExpert: "/expert/dashboard",
	RoleAdmin:  "/admin/dashboard",
}

// RoleHome returns the default landing route for a role.
func RoleHome(r Role) string {
	if home, ok := roleHomes[r]; ok {
		return home
	}
	return "/"
}

// StatusReason returns the reason code for a non-active status.
func StatusReason(s Status) string {
	if s == StatusBanned {
		return ReasonAccountBanned
	}
	return ReasonAccountSuspended
}

// AccessPolicy describes a protected region. An empty RequiredRole admits any
// authenticated user; an empty LoginPath means LoginPath.
type AccessPolicy struct {
	RequiredRole Role
	LoginPath    string
}

// SignInPath returns the sign-in entry point for the region.
func (p AccessPolicy) SignInPath() string {
	if p.LoginPath == "" {
		return LoginPath
	}
	return p.LoginPath
}

// Outcome is what the access guard decided for a protected region.
type Outcome int

const (
	// OutcomeLoading renders a neutral loading state; no redirect yet.
	OutcomeLoading Outcome = iota
	OutcomeAllow
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeAllow:
		return "allow"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// DenyReason names the check that produced a redirect.
type DenyReason string

const (
	DenyNone         DenyReason = ""
	DenyNoSession    DenyReason = "no_session"
	DenyInactive     DenyReason = "inactive"
	DenyRoleMismatch DenyReason = "role_mismatch"
)

// Decision is the result of one access evaluation. Session is the session the
// decision was made for; it is set only when the outcome is OutcomeAllow.
type Decision struct {
	Outcome  Outcome
	Reason   DenyReason
	Location string
	Session  Session
}

// Allowed reports whether protected content may be rendered.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

// SignInURL builds a sign-in entry point URL with an optional return path
// and reason code.
func SignInURL(loginPath, returnTo, reason string) string {
	var params []string
	if returnTo != "" {
		params = append(params, "redirect="+escapeParam(returnTo))
	}
	if reason != "" {
		params = append(params, "error="+escapeParam(reason))
	}
	if len(params) == 0 {
		return loginPath
	}
	return loginPath + "?" + strings.Join(params, "&")
}

// escapeParam query-escapes v but keeps path separators readable.
func escapeParam(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "%2F", "/")
}
