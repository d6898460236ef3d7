package arena

import "errors"

// Movement rejection causes. Rejections are a normal branch of operation,
// never surfaced to the user as a failure.
var (
	ErrOutOfBounds = errors.New("target outside space bounds")
	ErrIllegalStep = errors.New("movement exceeds one orthogonal step")
	ErrCellBlocked = errors.New("target cell blocked by static element")
)

// ValidateMove decides whether a participant at cur may move to target on a
// width×height grid with the given statically blocked cells. Pure function:
// the outcome depends only on the arguments.
//
// A move is legal iff the target lies in [0,width)×[0,height), is exactly one
// orthogonal step away (Manhattan distance 1, so no diagonals, no multi-cell
// jumps), and is not occupied by a static blocking element.
func ValidateMove(cur, target Position, width, height int, blocked map[Position]struct{}) error {
	if target.X < 0 || target.X >= width || target.Y < 0 || target.Y >= height {
		return ErrOutOfBounds
	}
	if manhattan(cur, target) != 1 {
		return ErrIllegalStep
	}
	if _, ok := blocked[target]; ok {
		return ErrCellBlocked
	}
	return nil
}

func manhattan(a, b Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
