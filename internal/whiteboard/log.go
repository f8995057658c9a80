// Package whiteboard keeps the shared drawing surface as an append-only
// ordered log of strokes. The surface is reconstructed by full replay
// rather than incremental merge, so the log is not reduced through the
// generic state store.
package whiteboard

import (
	"github.com/collabkit/meet/internal/domain"
)

// Surface is the drawing target replay renders onto.
type Surface interface {
	Clear()
	DrawStroke(domain.Stroke)
}

// Log is the ordered stroke sequence. Replay order equals append order.
type Log struct {
	strokes []domain.Stroke
	ids     map[string]struct{}
	onEmit  func(domain.Stroke)
}

// NewLog creates an empty log. onEmit is invoked for every locally
// appended stroke so the caller can put it on the wire; it may be nil.
func NewLog(onEmit func(domain.Stroke)) *Log {
	return &Log{ids: map[string]struct{}{}, onEmit: onEmit}
}

// Append adds one locally drawn stroke and emits it outbound.
func (l *Log) Append(s domain.Stroke) {
	l.add(s)
	if l.onEmit != nil {
		l.onEmit(s)
	}
}

// Apply adds one remotely received stroke. Strokes whose id is already in
// the log are dropped, so a relay echoing the sender's own stroke does not
// double-draw it.
func (l *Log) Apply(s domain.Stroke) {
	if l.Contains(s.ID) {
		return
	}
	l.add(s)
}

func (l *Log) add(s domain.Stroke) {
	l.strokes = append(l.strokes, s)
	if s.ID != "" {
		l.ids[s.ID] = struct{}{}
	}
}

// Contains reports whether a stroke with the given id is in the log.
func (l *Log) Contains(id string) bool {
	_, ok := l.ids[id]
	return ok
}

// Len returns the number of appended strokes.
func (l *Log) Len() int { return len(l.strokes) }

// Strokes returns a copy of the log in append order.
func (l *Log) Strokes() []domain.Stroke {
	return append([]domain.Stroke(nil), l.strokes...)
}

// Replay clears the surface and redraws every stroke in append order, then
// the optional in-progress stroke on top. Replay is idempotent: running it
// twice renders the same result.
func (l *Log) Replay(surface Surface, inProgress *domain.Stroke) {
	surface.Clear()
	for _, s := range l.strokes {
		surface.DrawStroke(s)
	}
	if inProgress != nil && len(inProgress.Points) >= 2 {
		surface.DrawStroke(*inProgress)
	}
}
