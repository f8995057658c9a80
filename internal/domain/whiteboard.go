package domain

// Point is one sampled pointer position on the drawing surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one finalized freehand gesture. Strokes are atomic and never
// mutated after creation, only appended to the log.
type Stroke struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Color     string  `json:"color"`
	Size      int     `json:"size"`
	Points    []Point `json:"points"`
	CreatedAt int64   `json:"createdAt"`
}
