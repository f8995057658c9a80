package whiteboard

import (
	"time"

	"github.com/collabkit/meet/internal/domain"
)

const (
	minStrokeSize = 1
	maxStrokeSize = 10
)

// Capturer accumulates pointer samples into one stroke. Pointer-down starts
// a capture, pointer-move appends while active, pointer-up finalizes.
// Leaving the surface cancels the capture.
type Capturer struct {
	userID string
	color  string
	size   int

	active bool
	points []domain.Point
}

// NewCapturer creates a capturer drawing on behalf of userID.
func NewCapturer(userID string) *Capturer {
	return &Capturer{userID: userID, color: "#1677ff", size: 3}
}

// SetStyle updates pen color and size. Size is clamped to [1, 10].
func (c *Capturer) SetStyle(color string, size int) {
	if color != "" {
		c.color = color
	}
	if size < minStrokeSize {
		size = minStrokeSize
	}
	if size > maxStrokeSize {
		size = maxStrokeSize
	}
	c.size = size
}

// PointerDown starts a new point accumulator.
func (c *Capturer) PointerDown(p domain.Point) {
	c.active = true
	c.points = []domain.Point{p}
}

// PointerMove appends a point while a capture is active.
func (c *Capturer) PointerMove(p domain.Point) {
	if !c.active {
		return
	}
	c.points = append(c.points, p)
}

// PointerUp finalizes the capture. A capture with fewer than two points is
// discarded: a tap is not a stroke.
func (c *Capturer) PointerUp() (domain.Stroke, bool) {
	points := c.points
	c.active = false
	c.points = nil
	if len(points) < 2 {
		return domain.Stroke{}, false
	}
	return domain.Stroke{
		ID:        domain.NewID(),
		UserID:    c.userID,
		Color:     c.color,
		Size:      c.size,
		Points:    points,
		CreatedAt: time.Now().UnixMilli(),
	}, true
}

// Leave cancels the capture without producing a stroke.
func (c *Capturer) Leave() {
	c.active = false
	c.points = nil
}

// Current returns the provisional in-progress stroke for replay overlays.
func (c *Capturer) Current() (domain.Stroke, bool) {
	if !c.active || len(c.points) < 2 {
		return domain.Stroke{}, false
	}
	return domain.Stroke{
		UserID: c.userID,
		Color:  c.color,
		Size:   c.size,
		Points: append([]domain.Point(nil), c.points...),
	}, true
}
