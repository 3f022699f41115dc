package load

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Volume is the repetition count of a set. It is either an exact count or an open-ended range such as "12+"
// meaning twelve or more repetitions.
type Volume struct {
	reps int
	open bool
}

// Exact returns a volume of exactly reps repetitions.
func Exact(reps int) Volume {
	return Volume{reps: reps, open: false}
}

// AtLeast returns an open-ended volume of minReps or more repetitions.
func AtLeast(minReps int) Volume {
	return Volume{reps: minReps, open: true}
}

// Reps returns the exact count, or the lower bound of an open-ended volume.
func (v Volume) Reps() int {
	return v.reps
}

// IsOpen reports whether v is an open-ended range.
func (v Volume) IsOpen() bool {
	return v.open
}

// IsZero reports whether v is the zero value.
func (v Volume) IsZero() bool {
	return v.reps == 0 && !v.open
}

// WithReps returns a volume of the same kind with reps repetitions.
func (v Volume) WithReps(reps int) Volume {
	return Volume{reps: reps, open: v.open}
}

// Equal reports whether v and o are the same kind with the same repetition count.
func (v Volume) Equal(o Volume) bool {
	return v == o
}

func (v Volume) String() string {
	if v.open {
		return strconv.Itoa(v.reps) + "+"
	}
	return strconv.Itoa(v.reps)
}

// ParseVolume parses "8" as an exact count and "12+" as an open-ended range.
func ParseVolume(s string) (Volume, error) {
	s = strings.TrimSpace(s)
	open := strings.HasSuffix(s, "+")
	n, err := strconv.Atoi(strings.TrimSuffix(s, "+"))
	if err != nil {
		return Volume{}, fmt.Errorf("parse volume %q: %w", s, err)
	}
	return Volume{reps: n, open: open}, nil
}

// UnmarshalYAML accepts both plain integers and "N+" strings.
func (v *Volume) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: volume must be a scalar", node.Line)
	}
	parsed, err := ParseVolume(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

// MarshalYAML renders exact counts as integers and open-ended ranges as "N+".
func (v Volume) MarshalYAML() (any, error) {
	if v.open {
		return v.String(), nil
	}
	return v.reps, nil
}
