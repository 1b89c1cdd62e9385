package api

import (
	"net/http"
	"strings"

	"github.com/ongoingai/tracelens/internal/auth"
	"github.com/ongoingai/tracelens/internal/spanstore"
)

func applySpanScope(r *http.Request, filter *spanstore.SpanFilter) {
	if filter == nil || r == nil {
		return
	}
	if workspaceID, scoped := requestWorkspaceScope(r); scoped {
		filter.WorkspaceID = workspaceID
	}
}

func applyAnalyticsScope(r *http.Request, filter *spanstore.AnalyticsFilter) {
	if filter == nil || r == nil {
		return
	}
	if workspaceID, scoped := requestWorkspaceScope(r); scoped {
		filter.WorkspaceID = workspaceID
	}
}

// requestWorkspaceScope returns the workspace of the authenticated key. Admin
// keys are not scoped.
func requestWorkspaceScope(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil {
		return "", false
	}
	if identity.KeyID == "" || strings.EqualFold(identity.Role, "admin") || strings.EqualFold(identity.Role, "owner") {
		return "", false
	}
	return nonEmptyWorkspace(identity.WorkspaceID), true
}

func spanVisibleInScope(r *http.Request, item *spanstore.Span) bool {
	if item == nil {
		return false
	}
	workspaceID, scoped := requestWorkspaceScope(r)
	if !scoped {
		return true
	}
	return nonEmptyWorkspace(item.WorkspaceID) == workspaceID
}

func nonEmptyWorkspace(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "default"
	}
	return value
}
