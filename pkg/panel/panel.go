// Package panel holds the physical sizes of the book-cover faces CoverSnap
// photographs.
package panel

import (
	"fmt"
	"strings"
)

// Name identifies one face of a book cover.
type Name string

// The three recognized panels, in left-to-right order on an unfolded cover.
const (
	Front Name = "front"
	Spine Name = "spine"
	Back  Name = "back"
)

// String implements fmt.Stringer.
func (n Name) String() string {
	return string(n)
}

// Spec is the physical size of a panel in centimeters.
type Spec struct {
	Name     Name    `json:"name"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

// UnknownPanelError is returned for a name outside the catalog.
type UnknownPanelError struct {
	Name string
}

func (e *UnknownPanelError) Error() string {
	return fmt.Sprintf("unknown panel %q (want one of front, spine, back)", e.Name)
}

var specs = [...]Spec{
	{Name: Front, WidthCm: 1.6, HeightCm: 2.1},
	{Name: Spine, WidthCm: 0.3, HeightCm: 2.1},
	{Name: Back, WidthCm: 1.6, HeightCm: 2.1},
}

// SizeOf returns the spec for a panel name.
func SizeOf(name Name) (Spec, error) {
	for _, s := range specs {
		if s.Name == name {
			return s, nil
		}
	}
	return Spec{}, &UnknownPanelError{Name: string(name)}
}

// ParseName normalizes user input ("Front ", "SPINE") into a Name.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, err := SizeOf(n); err != nil {
		return "", err
	}
	return n, nil
}

// Names returns the panel names in cover order: front, spine, back.
func Names() []Name {
	names := make([]Name, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// All returns a copy of the catalog in cover order.
func All() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs[:])
	return out
}
