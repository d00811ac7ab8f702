// Package core provides the shared model types for adbauto: screen geometry,
// lookup outcomes, structured errors and step/flow results.
package core

import "fmt"

// Point is a screen coordinate in device pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String returns "x,y".
func (p Point) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TopLeft returns the top-left corner.
func (b Bounds) TopLeft() Point {
	return Point{X: b.X, Y: b.Y}
}

// Center returns the center point of the bounds
func (b Bounds) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.X && p.X < b.X+b.Width && p.Y >= b.Y && p.Y < b.Y+b.Height
}

// ElementInfo describes a UI element a step interacted with.
type ElementInfo struct {
	ResourceID string `json:"resourceId,omitempty"`
	Text       string `json:"text,omitempty"`
	Class      string `json:"class,omitempty"`
	Point      Point  `json:"point"`
}
