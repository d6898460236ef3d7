package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gridspace/server/internal/auth"
	"gridspace/server/internal/store"
)

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Type     string `json:"type"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	role := auth.RoleUser
	if body.Type == auth.RoleAdmin {
		role = auth.RoleAdmin
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		a.logger.Errorw("password hashing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user, err := a.store.CreateUser(body.Username, hash, role)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": user.ID})
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	user, err := a.store.UserByUsername(body.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, body.Password) {
		writeError(w, http.StatusForbidden, "invalid credentials")
		return
	}
	token, err := a.auth.IssueToken(user.ID, user.Role)
	if err != nil {
		a.logger.Errorw("token issuance failed", "user", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *API) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	var body struct {
		AvatarID string `json:"avatarId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := a.store.SetUserAvatar(identity.UserID, body.AvatarID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleBulkMetadata resolves avatar images for ids passed as
// ?ids=[id1,id2,...], the bracketed list format the original clients send.
func (a *API) handleBulkMetadata(w http.ResponseWriter, r *http.Request) {
	raw := strings.Trim(r.URL.Query().Get("ids"), "[]")
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatars": a.store.UsersAvatarInfo(ids)})
}

func (a *API) handleListAvatars(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"avatars": a.store.Avatars()})
}

func (a *API) handleCreateAvatar(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		ImageURL string `json:"imageUrl"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	avatar, err := a.store.CreateAvatar(body.Name, body.ImageURL)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatarId": avatar.ID})
}

func (a *API) handleCreateElement(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImageURL string `json:"imageUrl"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Static   bool   `json:"static"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	element, err := a.store.CreateElement(body.ImageURL, body.Width, body.Height, body.Static)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": element.ID})
}

func (a *API) handleUpdateElement(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := a.store.UpdateElement(chi.URLParam(r, "elementID"), body.ImageURL); err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Thumbnail       string                      `json:"thumbnail"`
		Dimensions      string                      `json:"dimensions"`
		DefaultElements []store.MapElementPlacement `json:"defaultElements"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	m, err := a.store.CreateMap(body.Thumbnail, body.Dimensions, body.DefaultElements)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": m.ID})
}

func (a *API) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	var body struct {
		Name       string `json:"name"`
		Dimensions string `json:"dimensions"`
		MapID      string `json:"mapId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	space, err := a.store.CreateSpace(identity.UserID, body.Name, body.Dimensions, body.MapID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"spaceId": space.ID})
}

func (a *API) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	owned := a.store.SpacesByOwner(identity.UserID)
	spaces := make([]map[string]string, 0, len(owned))
	for _, space := range owned {
		spaces = append(spaces, map[string]string{
			"id":         space.ID,
			"name":       space.Name,
			"dimensions": space.Dimensions,
			"thumbnail":  space.Thumbnail,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

func (a *API) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	space, err := a.store.Space(chi.URLParam(r, "spaceID"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	type placedElement struct {
		ID      string         `json:"id"`
		Element *store.Element `json:"element,omitempty"`
		X       int            `json:"x"`
		Y       int            `json:"y"`
	}
	elements := make([]placedElement, 0, len(space.Elements))
	for _, el := range space.Elements {
		placed := placedElement{ID: el.ID, X: el.X, Y: el.Y}
		if elementType, err := a.store.ElementType(el.ElementID); err == nil {
			placed.Element = elementType
		}
		elements = append(elements, placed)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dimensions": space.Dimensions,
		"elements":   elements,
	})
}

func (a *API) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFrom(r.Context())
	if err := a.store.DeleteSpace(chi.URLParam(r, "spaceID"), identity.UserID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleAddSpaceElement(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SpaceID   string `json:"spaceId"`
		ElementID string `json:"elementId"`
		X         int    `json:"x"`
		Y         int    `json:"y"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	placed, err := a.store.AddSpaceElement(body.SpaceID, body.ElementID, body.X, body.Y)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": placed.ID})
}

func (a *API) handleRemoveSpaceElement(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SpaceID   string `json:"spaceId"`
		ElementID string `json:"elementId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := a.store.RemoveSpaceElement(body.SpaceID, body.ElementID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
