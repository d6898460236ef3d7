package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gridspace/server/internal/auth"
	"gridspace/server/internal/store"
)

// API serves the /api/v1 REST surface: accounts, avatars, element types,
// maps, and spaces.
type API struct {
	store  *store.Store
	auth   *auth.Service
	logger *zap.SugaredLogger
}

// New builds the REST API over the given store and auth service.
func New(st *store.Store, authSvc *auth.Service, logger *zap.SugaredLogger) *API {
	return &API{store: st, auth: authSvc, logger: logger.With("component", "httpapi")}
}

// Routes assembles the /api/v1 router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/user/signup", a.handleSignup)
	r.Post("/user/signin", a.handleSignin)
	r.Get("/avatars", a.handleListAvatars)
	r.Get("/user/metadata/bulk", a.handleBulkMetadata)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Post("/user/metadata", a.handleSetMetadata)

		r.Post("/space", a.handleCreateSpace)
		r.Get("/space/all", a.handleListSpaces)
		r.Get("/space/{spaceID}", a.handleGetSpace)
		r.Delete("/space/{spaceID}", a.handleDeleteSpace)
		r.Post("/space/element", a.handleAddSpaceElement)
		r.Delete("/space/element", a.handleRemoveSpaceElement)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAdmin)
			r.Post("/admin/avatar", a.handleCreateAvatar)
			r.Post("/admin/element", a.handleCreateElement)
			r.Put("/admin/element/{elementID}", a.handleUpdateElement)
			r.Post("/admin/map", a.handleCreateMap)
		})
	})

	return r
}

type contextKey string

const identityKey contextKey = "identity"

// requireAuth resolves the Bearer token into an identity and stashes it in
// the request context. Missing or invalid credentials answer 403, matching
// the contract clients expect.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			writeError(w, http.StatusForbidden, "missing bearer token")
			return
		}
		identity, err := a.auth.ValidateToken(token)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates a subtree to admin identities.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFrom(r.Context())
		if !ok || !identity.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeStoreError maps store error classes onto the HTTP taxonomy: bad
// references and duplicates are client errors, ownership violations are
// forbidden, anything else is a server fault.
func (a *API) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Errorw("store operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
