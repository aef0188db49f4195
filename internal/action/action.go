package action

import (
	"errors"
	"fmt"
)

// Kind discriminates the action variants on the wire.
type Kind string

const (
	KindStroke Kind = "stroke"
	KindShape  Kind = "shape"
	KindText   Kind = "text"
	KindClear  Kind = "clear"
)

// ShapeKind is the vocabulary of shape tools the toolbar can produce.
type ShapeKind string

const (
	ShapeLine    ShapeKind = "line"
	ShapeRect    ShapeKind = "rect"
	ShapeCircle  ShapeKind = "circle"
	ShapeArrow   ShapeKind = "arrow"
	ShapeStar    ShapeKind = "star"
	ShapeHeart   ShapeKind = "heart"
	ShapePolygon ShapeKind = "polygon"
)

// Point is a canvas-local coordinate. Coordinates are not normalized against
// viewport size, so clients with different window dimensions render the same
// point at different apparent positions. Known limitation of the model.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Action is one unit of synchronized canvas state. Exactly one of the
// variant fields is set, selected by Type.
type Action struct {
	Type   Kind    `json:"type"`
	Stroke *Stroke `json:"stroke,omitempty"`
	Shape  *Shape  `json:"shape,omitempty"`
	Text   *Text   `json:"text,omitempty"`
}

// Stroke is a freehand pen segment between two sampled points.
type Stroke struct {
	From  Point   `json:"from"`
	To    Point   `json:"to"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// Shape is a toolbar shape. Which Params fields are meaningful depends on
// Kind: line/arrow use From/To, rect uses X/Y/W/H, circle/star/heart use
// CX/CY/R, polygon uses Points.
type Shape struct {
	Kind   ShapeKind   `json:"kind"`
	Params ShapeParams `json:"params"`
	Color  string      `json:"color"`
	Width  float64     `json:"width"`
}

type ShapeParams struct {
	From   *Point  `json:"from,omitempty"`
	To     *Point  `json:"to,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	W      float64 `json:"w,omitempty"`
	H      float64 `json:"h,omitempty"`
	CX     float64 `json:"cx,omitempty"`
	CY     float64 `json:"cy,omitempty"`
	R      float64 `json:"r,omitempty"`
	Points []Point `json:"points,omitempty"`
}

// Text is a text annotation placed on the canvas.
type Text struct {
	Position Point   `json:"position"`
	Content  string  `json:"content"`
	Color    string  `json:"color"`
	FontSize float64 `json:"fontSize"`
	Bold     bool    `json:"bold,omitempty"`
	Italic   bool    `json:"italic,omitempty"`
}

// ClearMarker is the sentinel recorded when a room is cleared. History
// before it is void.
func ClearMarker() Action {
	return Action{Type: KindClear}
}

var (
	ErrUnknownKind = errors.New("unknown action type")
	ErrBadColor    = errors.New("color must be #RRGGBB")
	ErrBadWidth    = errors.New("width must be positive")
)

// Validate checks an inbound action before it is accepted into a room's
// history. Rejected actions are never relayed.
func (a Action) Validate() error {
	switch a.Type {
	case KindStroke:
		if a.Stroke == nil {
			return fmt.Errorf("stroke action without stroke payload")
		}
		return a.Stroke.validate()
	case KindShape:
		if a.Shape == nil {
			return fmt.Errorf("shape action without shape payload")
		}
		return a.Shape.validate()
	case KindText:
		if a.Text == nil {
			return fmt.Errorf("text action without text payload")
		}
		return a.Text.validate()
	case KindClear:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Type)
	}
}

func (s *Stroke) validate() error {
	if err := validColor(s.Color); err != nil {
		return err
	}
	if s.Width <= 0 {
		return ErrBadWidth
	}
	if err := validPoint(s.From); err != nil {
		return err
	}
	return validPoint(s.To)
}

func (s *Shape) validate() error {
	if err := validColor(s.Color); err != nil {
		return err
	}
	if s.Width <= 0 {
		return ErrBadWidth
	}
	switch s.Kind {
	case ShapeLine, ShapeArrow:
		if s.Params.From == nil || s.Params.To == nil {
			return fmt.Errorf("%s requires from and to points", s.Kind)
		}
	case ShapeRect:
		if s.Params.W <= 0 || s.Params.H <= 0 {
			return fmt.Errorf("rect requires positive w and h")
		}
	case ShapeCircle, ShapeStar, ShapeHeart:
		if s.Params.R <= 0 {
			return fmt.Errorf("%s requires positive radius", s.Kind)
		}
	case ShapePolygon:
		if len(s.Params.Points) < 3 {
			return fmt.Errorf("polygon requires at least 3 points")
		}
	default:
		return fmt.Errorf("unknown shape kind: %q", s.Kind)
	}
	return nil
}

func (t *Text) validate() error {
	if t.Content == "" {
		return fmt.Errorf("text content is empty")
	}
	if err := validColor(t.Color); err != nil {
		return err
	}
	if t.FontSize <= 0 {
		return fmt.Errorf("fontSize must be positive")
	}
	return validPoint(t.Position)
}

func validPoint(p Point) error {
	if p.X < 0 || p.Y < 0 {
		return fmt.Errorf("point (%v, %v) outside canvas", p.X, p.Y)
	}
	return nil
}

func validColor(c string) error {
	if len(c) != 7 || c[0] != '#' {
		return ErrBadColor
	}
	for _, r := range c[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return ErrBadColor
		}
	}
	return nil
}

// Compact drops everything before the last clear marker, which is how a
// replayed history must be interpreted. The marker itself is dropped too:
// replaying the result onto a blank canvas yields the current state.
func Compact(history []Action) []Action {
	last := -1
	for i, a := range history {
		if a.Type == KindClear {
			last = i
		}
	}
	if last < 0 {
		return history
	}
	return history[last+1:]
}
