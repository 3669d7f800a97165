package sim

import (
	"fmt"
	"math"
)

// SpaceKind tags the variant held by a Space.
type SpaceKind string

const (
	// KindDiscrete is a finite set of integer values {0, ..., N-1}.
	KindDiscrete SpaceKind = "discrete"
	// KindBox is an n-dimensional array with per-space bounds.
	KindBox SpaceKind = "box"
)

// DType names the element type of a Box space.
type DType string

const (
	DTypeUint8   DType = "uint8"
	DTypeInt64   DType = "int64"
	DTypeFloat32 DType = "float32"
)

// validDTypes maps accepted element type names.
var validDTypes = map[DType]bool{
	DTypeUint8:   true,
	DTypeInt64:   true,
	DTypeFloat32: true,
}

// Space describes an observation or action space.
// Exactly one variant is meaningful, selected by Kind:
//   - KindDiscrete: N
//   - KindBox: Low, High, Shape, DType
type Space struct {
	Kind  SpaceKind
	N     int
	Low   float64
	High  float64
	Shape []int
	DType DType
}

// Discrete returns a discrete space of n values.
func Discrete(n int) Space {
	return Space{Kind: KindDiscrete, N: n}
}

// Box returns a bounded array space. The shape slice is copied.
func Box(low, high float64, shape []int, dtype DType) Space {
	return Space{
		Kind:  KindBox,
		Low:   low,
		High:  high,
		Shape: append([]int(nil), shape...),
		DType: dtype,
	}
}

// Validate reports malformed space metadata.
func (s Space) Validate() error {
	switch s.Kind {
	case KindDiscrete:
		if s.N < 1 {
			return fmt.Errorf("discrete space must have at least 1 value, got %d", s.N)
		}
	case KindBox:
		if len(s.Shape) == 0 {
			return fmt.Errorf("box space must have a non-empty shape")
		}
		for i, d := range s.Shape {
			if d < 1 {
				return fmt.Errorf("box space dimension %d must be positive, got %d", i, d)
			}
		}
		if !validDTypes[s.DType] {
			return fmt.Errorf("unknown box dtype %q", s.DType)
		}
		if math.IsNaN(s.Low) || math.IsNaN(s.High) || s.Low > s.High {
			return fmt.Errorf("box bounds must satisfy low <= high, got [%v, %v]", s.Low, s.High)
		}
	default:
		return fmt.Errorf("unknown space kind %q", s.Kind)
	}
	return nil
}

// Size returns the number of elements in a Box space, or 1 for a Discrete space.
func (s Space) Size() int {
	if s.Kind != KindBox {
		return 1
	}
	size := 1
	for _, d := range s.Shape {
		size *= d
	}
	return size
}

// Equal reports whether two spaces describe the same values.
func (s Space) Equal(o Space) bool {
	if s.Kind != o.Kind || s.N != o.N || s.Low != o.Low || s.High != o.High || s.DType != o.DType {
		return false
	}
	if len(s.Shape) != len(o.Shape) {
		return false
	}
	for i := range s.Shape {
		if s.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// String renders the space the way gymnasium prints it.
func (s Space) String() string {
	if s.Kind == KindDiscrete {
		return fmt.Sprintf("Discrete(%d)", s.N)
	}
	return fmt.Sprintf("Box(%v, %v, %v, %s)", s.Low, s.High, s.Shape, s.DType)
}

// BatchSpace derives the space of n stacked instances of single.
//
// A Box gains a leading dimension of n with the same bounds and dtype.
// A Discrete(k) becomes an int64 Box of shape (n) with bounds [0, k-1],
// one action index per instance.
func BatchSpace(single Space, n int) (Space, error) {
	if n < 1 {
		return Space{}, fmt.Errorf("batch size must be >= 1, got %d", n)
	}
	if err := single.Validate(); err != nil {
		return Space{}, fmt.Errorf("single-instance space: %w", err)
	}
	switch single.Kind {
	case KindDiscrete:
		return Box(0, float64(single.N-1), []int{n}, DTypeInt64), nil
	default:
		shape := make([]int, 0, len(single.Shape)+1)
		shape = append(shape, n)
		shape = append(shape, single.Shape...)
		return Box(single.Low, single.High, shape, single.DType), nil
	}
}
