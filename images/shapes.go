// Package images - Image geometry shared by the decoding and suppression stages.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Rect is an axis-aligned bounding box in absolute pixel coordinates of the
// source image. The origin is the top-left corner.
type Rect struct {
	X      float32 `json:"x" yaml:"x"`
	Y      float32 `json:"y" yaml:"y"`
	Width  float32 `json:"width" yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// RectFromCenter builds a Rect from its center point and size.
//
// Arguments:
//   - cx, cy: The center of the box.
//   - w, h: The width and height of the box.
//
// Returns:
//   - Rect: The box with its top-left corner at (cx - w/2, cy - h/2).
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X:      cx - w/2,
		Y:      cy - h/2,
		Width:  w,
		Height: h,
	}
}

// X2 returns the right edge of the box.
func (r Rect) X2() float32 {
	return r.X + r.Width
}

// Y2 returns the bottom edge of the box.
func (r Rect) Y2() float32 {
	return r.Y + r.Height
}

// Empty reports whether the box covers no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns the covered area, zero for degenerate boxes.
func (r Rect) Area() float32 {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Intersect returns the overlapping region of r and o. The result is the zero
// Rect when either box is degenerate or they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	if r.Empty() || o.Empty() {
		return Rect{}
	}
	x1 := math32.Max(r.X, o.X)
	y1 := math32.Max(r.Y, o.Y)
	x2 := math32.Min(r.X2(), o.X2())
	y2 := math32.Min(r.Y2(), o.Y2())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// ToRect converts the box to an image.Rectangle, truncating fractional pixels.
func (r Rect) ToRect() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X2()), int(r.Y2())).Canon()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f) %.2fx%.2f", r.X, r.Y, r.Width, r.Height)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// Boxes with zero or negative width or height contribute no overlap, so any
// pair involving one yields 0.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: A value in [0, 1].
//
// Example Usage:
// ```go
//
//	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
//	b := Rect{X: 5, Y: 5, Width: 10, Height: 10}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	inter := r.Intersect(o).Area()
	if inter <= 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
