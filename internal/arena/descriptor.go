package arena

import "context"

// Position is a cell coordinate on a space's grid.
type Position struct {
	X int
	Y int
}

// PlacedElement is a map-defined element occupying a cell of the space.
// Static elements block movement; decorative ones do not.
type PlacedElement struct {
	ElementID string
	X         int
	Y         int
	Static    bool
}

// SpaceDescriptor is the read-only shape of a space: its grid bounds and the
// elements placed on it. Loaded once per session and never mutated by the
// session afterwards.
type SpaceDescriptor struct {
	ID       string
	Width    int
	Height   int
	Elements []PlacedElement
}

// BlockedCells returns the set of cells occupied by static elements.
func (d *SpaceDescriptor) BlockedCells() map[Position]struct{} {
	blocked := make(map[Position]struct{}, len(d.Elements))
	for _, el := range d.Elements {
		if el.Static {
			blocked[Position{X: el.X, Y: el.Y}] = struct{}{}
		}
	}
	return blocked
}

// DescriptorProvider resolves a space id to its descriptor. Implemented by
// the content store; the session layer never touches storage directly.
type DescriptorProvider interface {
	GetSpaceDescriptor(ctx context.Context, spaceID string) (*SpaceDescriptor, error)
}
