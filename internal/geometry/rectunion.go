// Package geometry provides the rectangle-union containment test used by
// the paint-order occlusion filter.
package geometry

// Rect is an axis-aligned rectangle in CSS pixel space.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

func (r Rect) right() float64  { return r.X + r.W }
func (r Rect) bottom() float64 { return r.Y + r.H }

// intersects reports whether r and o share any area.
func (r Rect) intersects(o Rect) bool {
	return r.X < o.right() && o.X < r.right() && r.Y < o.bottom() && o.Y < r.bottom()
}

// covers reports whether r fully contains o.
func (r Rect) covers(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.right() <= r.right() && o.bottom() <= r.bottom()
}

// Union is a running union of non-overlapping rectangle pieces.
//
// Add is a no-op when the rect is already fully covered, which makes the
// structure order-sensitive: callers must add rects in descending paint
// order so that a lower rect hidden behind earlier ones contributes nothing.
type Union struct {
	pieces []Rect
}

// Add inserts a rect into the union. Fully covered rects are dropped.
func (u *Union) Add(r Rect) {
	if r.Empty() || u.Contains(r) {
		return
	}
	u.pieces = append(u.pieces, r)
}

// Contains reports whether the target is fully covered by the union.
//
// The target is split against each piece: a fully covered remainder is
// discarded, partial overlap is subtracted into up to four residual slices
// (bottom, top, left, right of the target relative to the piece), and a
// non-overlapping remainder passes through untouched. The target is
// contained iff no remainder survives all pieces.
func (u *Union) Contains(target Rect) bool {
	if target.Empty() {
		return true
	}

	remainders := []Rect{target}
	for _, piece := range u.pieces {
		if len(remainders) == 0 {
			return true
		}

		var next []Rect
		for _, rem := range remainders {
			if piece.covers(rem) {
				continue
			}
			if !piece.intersects(rem) {
				next = append(next, rem)
				continue
			}
			next = append(next, subtract(rem, piece)...)
		}
		remainders = next
	}

	return len(remainders) == 0
}

// Len returns the number of stored pieces.
func (u *Union) Len() int { return len(u.pieces) }

// subtract returns the parts of rem not covered by piece. piece is known to
// partially intersect rem.
func subtract(rem, piece Rect) []Rect {
	out := make([]Rect, 0, 4)

	// Slice below the piece.
	if rem.bottom() > piece.bottom() {
		top := max(rem.Y, piece.bottom())
		out = append(out, Rect{X: rem.X, Y: top, W: rem.W, H: rem.bottom() - top})
	}
	// Slice above the piece.
	if rem.Y < piece.Y {
		bottom := min(rem.bottom(), piece.Y)
		out = append(out, Rect{X: rem.X, Y: rem.Y, W: rem.W, H: bottom - rem.Y})
	}

	// Left and right slices cover only the vertical band shared with the piece.
	bandTop := max(rem.Y, piece.Y)
	bandBottom := min(rem.bottom(), piece.bottom())
	if bandBottom > bandTop {
		if rem.X < piece.X {
			out = append(out, Rect{X: rem.X, Y: bandTop, W: piece.X - rem.X, H: bandBottom - bandTop})
		}
		if rem.right() > piece.right() {
			out = append(out, Rect{X: piece.right(), Y: bandTop, W: rem.right() - piece.right(), H: bandBottom - bandTop})
		}
	}

	kept := out[:0]
	for _, r := range out {
		if !r.Empty() {
			kept = append(kept, r)
		}
	}
	return kept
}
