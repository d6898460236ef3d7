package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"gridspace/server/internal/arena"
)

var (
	// ErrNotFound reports a lookup against an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a uniqueness violation, e.g. a taken username.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalid reports a structurally invalid request body or reference.
	ErrInvalid = errors.New("invalid")
	// ErrForbidden reports an operation on an entity the caller does not own.
	ErrForbidden = errors.New("forbidden")
)

// User is an account record. PasswordHash is a bcrypt digest, never the
// plaintext.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	AvatarID     string
}

// Avatar is an admin-authored appearance users can pick for themselves.
type Avatar struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// Element is an admin-authored element type placeable on maps and spaces.
// Static elements block movement.
type Element struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Static   bool   `json:"static"`
}

// SpaceElement is one element instance placed at a cell of a map or space.
type SpaceElement struct {
	ID        string `json:"id"`
	ElementID string `json:"elementId"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

// MapTemplate is an admin-authored layout spaces can be created from.
type MapTemplate struct {
	ID         string
	Thumbnail  string
	Width      int
	Height     int
	Dimensions string
	Elements   []SpaceElement
}

// Space is a user-owned instance of a bounded grid with placed elements.
type Space struct {
	ID         string
	Name       string
	OwnerID    string
	Width      int
	Height     int
	Dimensions string
	Thumbnail  string
	Elements   []SpaceElement
}

// Store is the in-memory content collaborator: accounts, avatars, element
// types, maps, and spaces. Guarded by one RWMutex; every method copies what
// it returns so callers never alias internal state.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*User
	byName   map[string]*User
	avatars  map[string]*Avatar
	elements map[string]*Element
	maps     map[string]*MapTemplate
	spaces   map[string]*Space
}

// New builds an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]*User),
		byName:   make(map[string]*User),
		avatars:  make(map[string]*Avatar),
		elements: make(map[string]*Element),
		maps:     make(map[string]*MapTemplate),
		spaces:   make(map[string]*Space),
	}
}

// ParseDimensions splits a "WxH" string into positive width and height.
func ParseDimensions(dimensions string) (int, int, error) {
	parts := strings.Split(dimensions, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: dimensions %q", ErrInvalid, dimensions)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("%w: width %q", ErrInvalid, parts[0])
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("%w: height %q", ErrInvalid, parts[1])
	}
	return width, height, nil
}

// CreateUser registers an account. The username must be unused.
func (s *Store) CreateUser(username, passwordHash, role string) (*User, error) {
	if username == "" || passwordHash == "" {
		return nil, fmt.Errorf("%w: username and password required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return nil, fmt.Errorf("%w: username %q", ErrDuplicate, username)
	}
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
	}
	s.users[user.ID] = user
	s.byName[username] = user
	copied := *user
	return &copied, nil
}

// UserByUsername fetches an account for credential checks.
func (s *Store) UserByUsername(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byName[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	copied := *user
	return &copied, nil
}

// SetUserAvatar updates the avatar a user presents. The avatar must exist.
func (s *Store) SetUserAvatar(userID, avatarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if _, ok := s.avatars[avatarID]; !ok {
		return fmt.Errorf("%w: avatar %q", ErrInvalid, avatarID)
	}
	user.AvatarID = avatarID
	return nil
}

// UserAvatarInfo pairs a user with their chosen avatar's image, for the bulk
// metadata endpoint.
type UserAvatarInfo struct {
	UserID   string `json:"userId"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// UsersAvatarInfo resolves avatar images for the given user ids. Unknown ids
// are skipped.
func (s *Store) UsersAvatarInfo(userIDs []string) []UserAvatarInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]UserAvatarInfo, 0, len(userIDs))
	for _, id := range userIDs {
		user, ok := s.users[id]
		if !ok {
			continue
		}
		info := UserAvatarInfo{UserID: id}
		if avatar, ok := s.avatars[user.AvatarID]; ok {
			info.ImageURL = avatar.ImageURL
		}
		infos = append(infos, info)
	}
	return infos
}

// CreateAvatar registers an admin-authored avatar.
func (s *Store) CreateAvatar(name, imageURL string) (*Avatar, error) {
	if name == "" || imageURL == "" {
		return nil, fmt.Errorf("%w: name and imageUrl required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	avatar := &Avatar{ID: uuid.NewString(), Name: name, ImageURL: imageURL}
	s.avatars[avatar.ID] = avatar
	copied := *avatar
	return &copied, nil
}

// Avatars lists every registered avatar.
func (s *Store) Avatars() []Avatar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	avatars := make([]Avatar, 0, len(s.avatars))
	for _, avatar := range s.avatars {
		avatars = append(avatars, *avatar)
	}
	return avatars
}

// CreateElement registers an element type.
func (s *Store) CreateElement(imageURL string, width, height int, static bool) (*Element, error) {
	if imageURL == "" || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: imageUrl and positive dimensions required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	element := &Element{
		ID:       uuid.NewString(),
		ImageURL: imageURL,
		Width:    width,
		Height:   height,
		Static:   static,
	}
	s.elements[element.ID] = element
	copied := *element
	return &copied, nil
}

// UpdateElement replaces an element type's image.
func (s *Store) UpdateElement(elementID, imageURL string) error {
	if imageURL == "" {
		return fmt.Errorf("%w: imageUrl required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	element, ok := s.elements[elementID]
	if !ok {
		return fmt.Errorf("%w: element %s", ErrNotFound, elementID)
	}
	element.ImageURL = imageURL
	return nil
}

// MapElementPlacement positions an element type on a map being created.
type MapElementPlacement struct {
	ElementID string `json:"elementId"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

// CreateMap registers a map template. Every placed element must reference a
// known element type and lie within the map's dimensions.
func (s *Store) CreateMap(thumbnail, dimensions string, placements []MapElementPlacement) (*MapTemplate, error) {
	width, height, err := ParseDimensions(dimensions)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	elements := make([]SpaceElement, 0, len(placements))
	for _, p := range placements {
		if _, ok := s.elements[p.ElementID]; !ok {
			return nil, fmt.Errorf("%w: element %q", ErrInvalid, p.ElementID)
		}
		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			return nil, fmt.Errorf("%w: placement (%d,%d) outside %s", ErrInvalid, p.X, p.Y, dimensions)
		}
		elements = append(elements, SpaceElement{
			ID:        uuid.NewString(),
			ElementID: p.ElementID,
			X:         p.X,
			Y:         p.Y,
		})
	}
	m := &MapTemplate{
		ID:         uuid.NewString(),
		Thumbnail:  thumbnail,
		Width:      width,
		Height:     height,
		Dimensions: dimensions,
		Elements:   elements,
	}
	s.maps[m.ID] = m
	copied := *m
	copied.Elements = append([]SpaceElement(nil), m.Elements...)
	return &copied, nil
}

// CreateSpace instantiates a space for ownerID, either from a map template
// (inheriting its dimensions and default elements) or from bare dimensions.
func (s *Store) CreateSpace(ownerID, name, dimensions, mapID string) (*Space, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	space := &Space{ID: uuid.NewString(), Name: name, OwnerID: ownerID}
	switch {
	case mapID != "":
		template, ok := s.maps[mapID]
		if !ok {
			return nil, fmt.Errorf("%w: map %q", ErrInvalid, mapID)
		}
		space.Width = template.Width
		space.Height = template.Height
		space.Dimensions = template.Dimensions
		space.Thumbnail = template.Thumbnail
		elements := make([]SpaceElement, len(template.Elements))
		for i, el := range template.Elements {
			el.ID = uuid.NewString()
			elements[i] = el
		}
		space.Elements = elements
	case dimensions != "":
		width, height, err := ParseDimensions(dimensions)
		if err != nil {
			return nil, err
		}
		space.Width = width
		space.Height = height
		space.Dimensions = dimensions
		space.Elements = []SpaceElement{}
	default:
		return nil, fmt.Errorf("%w: dimensions or mapId required", ErrInvalid)
	}

	s.spaces[space.ID] = space
	copied := *space
	copied.Elements = append([]SpaceElement(nil), space.Elements...)
	return &copied, nil
}

// Space fetches one space by id.
func (s *Store) Space(spaceID string) (*Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	space, ok := s.spaces[spaceID]
	if !ok {
		return nil, fmt.Errorf("%w: space %s", ErrNotFound, spaceID)
	}
	copied := *space
	copied.Elements = append([]SpaceElement(nil), space.Elements...)
	return &copied, nil
}

// SpacesByOwner lists the spaces a user owns.
func (s *Store) SpacesByOwner(ownerID string) []Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spaces := make([]Space, 0)
	for _, space := range s.spaces {
		if space.OwnerID != ownerID {
			continue
		}
		copied := *space
		copied.Elements = append([]SpaceElement(nil), space.Elements...)
		spaces = append(spaces, copied)
	}
	return spaces
}

// DeleteSpace removes a space. Only its owner may delete it.
func (s *Store) DeleteSpace(spaceID, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok {
		return fmt.Errorf("%w: space %s", ErrNotFound, spaceID)
	}
	if space.OwnerID != callerID {
		return fmt.Errorf("%w: space %s", ErrForbidden, spaceID)
	}
	delete(s.spaces, spaceID)
	return nil
}

// AddSpaceElement places an element type at a cell of an existing space. The
// cell must lie within the space's dimensions.
func (s *Store) AddSpaceElement(spaceID, elementID string, x, y int) (*SpaceElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok {
		return nil, fmt.Errorf("%w: space %s", ErrNotFound, spaceID)
	}
	if _, ok := s.elements[elementID]; !ok {
		return nil, fmt.Errorf("%w: element %q", ErrInvalid, elementID)
	}
	if x < 0 || x >= space.Width || y < 0 || y >= space.Height {
		return nil, fmt.Errorf("%w: cell (%d,%d) outside %s", ErrInvalid, x, y, space.Dimensions)
	}
	placed := SpaceElement{ID: uuid.NewString(), ElementID: elementID, X: x, Y: y}
	space.Elements = append(space.Elements, placed)
	return &placed, nil
}

// RemoveSpaceElement deletes one placed element instance from a space.
func (s *Store) RemoveSpaceElement(spaceID, placedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.spaces[spaceID]
	if !ok {
		return fmt.Errorf("%w: space %s", ErrNotFound, spaceID)
	}
	for i, el := range space.Elements {
		if el.ID == placedID {
			space.Elements = append(space.Elements[:i], space.Elements[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: placed element %s", ErrNotFound, placedID)
}

// ElementType fetches one element type by id.
func (s *Store) ElementType(elementID string) (*Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	element, ok := s.elements[elementID]
	if !ok {
		return nil, fmt.Errorf("%w: element %s", ErrNotFound, elementID)
	}
	copied := *element
	return &copied, nil
}

// GetSpaceDescriptor implements arena.DescriptorProvider: the session layer's
// read-only view of a space, with the static flag resolved from each placed
// element's type.
func (s *Store) GetSpaceDescriptor(_ context.Context, spaceID string) (*arena.SpaceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	space, ok := s.spaces[spaceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", arena.ErrSpaceNotFound, spaceID)
	}
	desc := &arena.SpaceDescriptor{
		ID:       space.ID,
		Width:    space.Width,
		Height:   space.Height,
		Elements: make([]arena.PlacedElement, 0, len(space.Elements)),
	}
	for _, el := range space.Elements {
		placed := arena.PlacedElement{ElementID: el.ElementID, X: el.X, Y: el.Y}
		if elementType, ok := s.elements[el.ElementID]; ok {
			placed.Static = elementType.Static
		}
		desc.Elements = append(desc.Elements, placed)
	}
	return desc, nil
}
