package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/ongoingai/tracelens/internal/pathutil"
)

type Permission string

const (
	PermissionSpansWrite Permission = "spans:write"
	PermissionSpansRead  Permission = "spans:read"
)

const defaultHeaderName = "X-Tracelens-Key"

var ErrMissingKey = errors.New("missing ingest key")
var ErrInvalidKey = errors.New("invalid ingest key")

// KeyConfig is one configured API key. Either Token or its sha256 TokenHash
// must be set.
type KeyConfig struct {
	ID            string
	Name          string
	Token         string
	TokenHash     string
	WorkspaceID   string
	WorkspaceName string
	Role          string
	Permissions   []string
}

type Options struct {
	Enabled bool
	Header  string
	Keys    []KeyConfig
}

// Identity is the API key and workspace a request acts for.
type Identity struct {
	KeyID         string
	KeyName       string
	WorkspaceID   string
	WorkspaceName string
	Role          string

	permissions map[Permission]struct{}
}

// Anonymous is the identity used when auth is disabled.
func Anonymous() *Identity {
	return &Identity{
		WorkspaceID: "default",
		permissions: defaultRolePermissions("admin"),
	}
}

func (i *Identity) HasPermission(permission Permission) bool {
	if i == nil {
		return false
	}
	_, ok := i.permissions[permission]
	return ok
}

type Authorizer struct {
	enabled bool
	header  string
	keys    map[string]*Identity
}

func NewAuthorizer(options Options) (*Authorizer, error) {
	header := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(options.Header))
	if header == "" {
		header = defaultHeaderName
	}

	authorizer := &Authorizer{
		enabled: options.Enabled,
		header:  header,
		keys:    map[string]*Identity{},
	}
	if !options.Enabled {
		return authorizer, nil
	}
	if len(options.Keys) == 0 {
		return nil, errors.New("auth is enabled but no api keys are configured")
	}

	for idx, key := range options.Keys {
		tokenHash := strings.ToLower(strings.TrimSpace(key.TokenHash))
		if tokenHash == "" {
			token := strings.TrimSpace(key.Token)
			if token == "" {
				return nil, fmt.Errorf("auth.keys[%d]: token or token_hash is required", idx)
			}
			tokenHash = HashToken(token)
		}
		if _, exists := authorizer.keys[tokenHash]; exists {
			return nil, fmt.Errorf("auth.keys[%d]: duplicate api key token", idx)
		}

		role := strings.ToLower(strings.TrimSpace(key.Role))
		permissions := defaultRolePermissions(role)
		for _, raw := range key.Permissions {
			if permission := Permission(strings.ToLower(strings.TrimSpace(raw))); permission != "" {
				permissions[permission] = struct{}{}
			}
		}

		authorizer.keys[tokenHash] = &Identity{
			KeyID:         strings.TrimSpace(key.ID),
			KeyName:       strings.TrimSpace(key.Name),
			WorkspaceID:   nonEmpty(key.WorkspaceID, "default"),
			WorkspaceName: strings.TrimSpace(key.WorkspaceName),
			Role:          role,
			permissions:   permissions,
		}
	}
	return authorizer, nil
}

func (a *Authorizer) Enabled() bool {
	return a != nil && a.enabled
}

func (a *Authorizer) HeaderName() string {
	if a == nil || a.header == "" {
		return defaultHeaderName
	}
	return a.header
}

// Authenticate resolves the key from the configured header or from an
// Authorization bearer token. It returns the anonymous identity when auth is
// disabled.
func (a *Authorizer) Authenticate(r *http.Request) (*Identity, error) {
	if !a.Enabled() {
		return Anonymous(), nil
	}

	token := strings.TrimSpace(r.Header.Get(a.HeaderName()))
	if token == "" {
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			token = strings.TrimSpace(bearer)
		}
	}
	if token == "" {
		return nil, ErrMissingKey
	}

	identity, ok := a.keys[HashToken(token)]
	if !ok {
		return nil, ErrInvalidKey
	}
	return identity.clone(), nil
}

// Middleware authenticates API requests and enforces the permission each
// route requires. Health checks and preflight requests pass through.
func Middleware(authorizer *Authorizer, apiPrefix string, next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	apiPrefix = normalizePrefix(apiPrefix)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		permission, public := requiredPermission(r.Method, r.URL.Path, apiPrefix)
		if public {
			next.ServeHTTP(w, r)
			return
		}
		if permission == "" {
			writeAuthError(w, http.StatusForbidden, "request is not allowed")
			return
		}

		identity, err := authorizer.Authenticate(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		if !identity.HasPermission(permission) {
			writeAuthError(w, http.StatusForbidden, "api key does not have required permission")
			return
		}

		request := r.WithContext(WithIdentity(r.Context(), identity))
		if authorizer.Enabled() {
			request.Header = r.Header.Clone()
			request.Header.Del(authorizer.HeaderName())
		}
		next.ServeHTTP(w, request)
	})
}

// requiredPermission maps a route to its permission. An empty permission on a
// non-public route denies it.
func requiredPermission(method, path, apiPrefix string) (Permission, bool) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !pathutil.HasPathPrefix(path, apiPrefix) {
		return "", true
	}
	if method == http.MethodOptions {
		return "", true
	}

	route := strings.TrimPrefix(path, apiPrefix)
	read := method == http.MethodGet || method == http.MethodHead
	switch {
	case route == "/health" && read:
		return "", true
	case route == "/spans" && method == http.MethodPost:
		return PermissionSpansWrite, false
	case route == "/pricing/estimate" && method == http.MethodPost:
		return PermissionSpansRead, false
	case read && (route == "/spans" || isSingleSegment(route, "/spans")):
		return PermissionSpansRead, false
	case read && (route == "/analytics/usage" || route == "/analytics/cost" || route == "/analytics/models"):
		return PermissionSpansRead, false
	case read && (isSingleSegment(route, "/pricing") || route == "/diagnostics/span-pipeline"):
		return PermissionSpansRead, false
	}
	return "", false
}

func defaultRolePermissions(role string) map[Permission]struct{} {
	permissions := map[Permission]struct{}{}
	for _, permission := range permissionsForRole(role) {
		permissions[permission] = struct{}{}
	}
	return permissions
}

func permissionsForRole(role string) []Permission {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "owner", "admin":
		return []Permission{PermissionSpansWrite, PermissionSpansRead}
	case "", "ingest":
		return []Permission{PermissionSpansWrite}
	case "viewer":
		return []Permission{PermissionSpansRead}
	default:
		// Unknown roles get only explicitly listed permissions.
		return nil
	}
}

func isSingleSegment(route, prefix string) bool {
	_, ok := pathutil.SingleSegment(route, prefix)
	return ok
}

// normalizePrefix falls back to /api for an empty or root prefix.
func normalizePrefix(prefix string) string {
	if normalized := pathutil.NormalizePrefix(prefix); normalized != "/" {
		return normalized
	}
	return "/api"
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func nonEmpty(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

// HashToken returns the hex sha256 of token, the form stored as token_hash.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.permissions = make(map[Permission]struct{}, len(i.permissions))
	for permission := range i.permissions {
		out.permissions[permission] = struct{}{}
	}
	return &out
}

type contextIdentityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, contextIdentityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(contextIdentityKey{}).(*Identity)
	return identity, ok && identity != nil
}
