package arena

import (
	"errors"
	"testing"
)

func TestValidateMove(t *testing.T) {
	blocked := map[Position]struct{}{
		{X: 4, Y: 5}: {},
	}

	cases := []struct {
		name    string
		cur     Position
		target  Position
		wantErr error
	}{
		{name: "orthogonal step right", cur: Position{5, 5}, target: Position{6, 5}, wantErr: nil},
		{name: "orthogonal step up", cur: Position{5, 5}, target: Position{5, 4}, wantErr: nil},
		{name: "teleport", cur: Position{5, 5}, target: Position{1000005, 105}, wantErr: ErrOutOfBounds},
		{name: "two cells", cur: Position{5, 5}, target: Position{7, 5}, wantErr: ErrIllegalStep},
		{name: "diagonal", cur: Position{5, 5}, target: Position{6, 6}, wantErr: ErrIllegalStep},
		{name: "stand still", cur: Position{5, 5}, target: Position{5, 5}, wantErr: ErrIllegalStep},
		{name: "into blocking element", cur: Position{5, 5}, target: Position{4, 5}, wantErr: ErrCellBlocked},
		{name: "off west edge", cur: Position{0, 3}, target: Position{-1, 3}, wantErr: ErrOutOfBounds},
		{name: "off south edge", cur: Position{3, 19}, target: Position{3, 20}, wantErr: ErrOutOfBounds},
		{name: "onto east edge", cur: Position{18, 3}, target: Position{19, 3}, wantErr: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMove(tc.cur, tc.target, 20, 20, blocked)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ValidateMove(%v -> %v) = %v, want %v", tc.cur, tc.target, err, tc.wantErr)
			}
		})
	}
}

func TestValidateMoveIsPure(t *testing.T) {
	blocked := map[Position]struct{}{{X: 1, Y: 0}: {}}
	for i := 0; i < 3; i++ {
		if err := ValidateMove(Position{0, 0}, Position{0, 1}, 5, 5, blocked); err != nil {
			t.Fatalf("run %d: unexpected rejection: %v", i, err)
		}
		if err := ValidateMove(Position{0, 0}, Position{1, 0}, 5, 5, blocked); !errors.Is(err, ErrCellBlocked) {
			t.Fatalf("run %d: expected blocked cell rejection, got %v", i, err)
		}
	}
	if len(blocked) != 1 {
		t.Fatalf("validator mutated its inputs: %v", blocked)
	}
}
