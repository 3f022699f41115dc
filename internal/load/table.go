// Package load relates intensity, effort and volume of a set and converts recorded performances into one-rep-maxes
// and working weights.
package load

import (
	_ "embed"
	"fmt"
	"math"
	"slices"

	"github.com/myrjola/periodize/internal/errors"
	"gopkg.in/yaml.v3"
)

//go:embed table.yaml
var defaultTable []byte

var ErrInvalidTable = errors.NewSentinel("invalid load table")

const (
	minIntensityKey = 40
	maxIntensityKey = 100
	minEffortKey    = 1
	maxEffortKey    = 10
	// MaxEffort is the effort assumed for a recorded performance without an effort rating.
	MaxEffort = 10
)

// BucketPolicy decides how a continuous intensity is mapped onto the table's intensity buckets.
type BucketPolicy string

const (
	// BucketNearest picks the closest bucket.
	BucketNearest BucketPolicy = "nearest"
	// BucketFloor picks the largest bucket not above the intensity.
	BucketFloor BucketPolicy = "floor"
)

// ParseBucketPolicy validates s as a BucketPolicy.
func ParseBucketPolicy(s string) (BucketPolicy, error) {
	switch p := BucketPolicy(s); p {
	case BucketNearest, BucketFloor:
		return p, nil
	default:
		return "", fmt.Errorf("unknown bucket policy %q", s)
	}
}

// Load is a set's load expressed as any subset of intensity (percent of one-rep-max), effort and volume.
type Load struct {
	Intensity *float64
	Effort    *float64
	Volume    *Volume
}

// Known returns how many of the three load fields are set.
func (l Load) Known() int {
	n := 0
	if l.Intensity != nil {
		n++
	}
	if l.Effort != nil {
		n++
	}
	if l.Volume != nil {
		n++
	}
	return n
}

// Table is an immutable lookup table keyed by intensity bucket and effort. It is safe for concurrent use.
type Table struct {
	rows map[float64]map[float64]Volume
	// intensities sorted from heaviest to lightest.
	intensities []float64
	policy      BucketPolicy
}

type tableDocument struct {
	Rows map[float64]map[float64]Volume `yaml:"rows"`
}

// Default parses the table shipped with the binary.
func Default(policy BucketPolicy) (*Table, error) {
	return Parse(defaultTable, policy)
}

// Parse decodes and validates a YAML table document.
func Parse(data []byte, policy BucketPolicy) (*Table, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrInvalidTable, fmt.Errorf("decode table: %w", err))
	}
	return New(doc.Rows, policy)
}

// New validates rows and builds a Table. Intensity keys must lie in [40, 100], effort keys in [1, 10] in half
// steps and every volume must be a positive count.
func New(rows map[float64]map[float64]Volume, policy BucketPolicy) (*Table, error) {
	if _, err := ParseBucketPolicy(string(policy)); err != nil {
		return nil, errors.Join(ErrInvalidTable, err)
	}
	if len(rows) == 0 {
		return nil, errors.Join(ErrInvalidTable, errors.NewSentinel("table has no rows"))
	}

	var errs []error
	t := &Table{
		rows:        make(map[float64]map[float64]Volume, len(rows)),
		intensities: make([]float64, 0, len(rows)),
		policy:      policy,
	}
	for intensity, row := range rows {
		if intensity < minIntensityKey || intensity > maxIntensityKey {
			errs = append(errs, fmt.Errorf("intensity key %v outside [%d, %d]", intensity, minIntensityKey, maxIntensityKey))
		}
		copied := make(map[float64]Volume, len(row))
		for effort, volume := range row {
			if effort < minEffortKey || effort > maxEffortKey || math.Mod(effort*2, 1) != 0 {
				errs = append(errs, fmt.Errorf("effort key %v at intensity %v outside [%d, %d] half steps",
					effort, intensity, minEffortKey, maxEffortKey))
			}
			if volume.Reps() <= 0 {
				errs = append(errs, fmt.Errorf("volume %s at intensity %v effort %v is not positive",
					volume, intensity, effort))
			}
			copied[effort] = volume
		}
		t.rows[intensity] = copied
		t.intensities = append(t.intensities, intensity)
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrInvalidTable}, errs...)...)
	}
	slices.Sort(t.intensities)
	slices.Reverse(t.intensities)
	return t, nil
}

// Policy returns the bucket policy the table was built with.
func (t *Table) Policy() BucketPolicy {
	return t.policy
}

// Resolve fills in the missing third load field when exactly two are known. Lookups without a matching cell leave
// the field nil.
func (t *Table) Resolve(known Load) Load {
	resolved := known
	switch {
	case known.Known() != 2: //nolint:mnd // two fields determine the third.
	case known.Volume == nil:
		if v, ok := t.Volume(*known.Intensity, *known.Effort); ok {
			resolved.Volume = &v
		}
	case known.Intensity == nil:
		if i, ok := t.Intensity(*known.Volume, *known.Effort); ok {
			resolved.Intensity = &i
		}
	case known.Effort == nil:
		if e, ok := t.Effort(*known.Intensity, *known.Volume); ok {
			resolved.Effort = &e
		}
	}
	return resolved
}

// Volume looks up the volume for intensity and effort.
func (t *Table) Volume(intensity, effort float64) (Volume, bool) {
	bucket, ok := t.bucket(intensity)
	if !ok {
		return Volume{}, false
	}
	v, ok := t.rows[bucket][math.Floor(effort)]
	return v, ok
}

// Intensity returns the heaviest intensity bucket whose row holds exactly volume at exactly effort. Unlike
// [Table.Volume] the effort is not floored, so half-step rows are reachable.
func (t *Table) Intensity(volume Volume, effort float64) (float64, bool) {
	for _, intensity := range t.intensities {
		if v, ok := t.rows[intensity][effort]; ok && v.Equal(volume) {
			return intensity, true
		}
	}
	return 0, false
}

// Effort returns the lowest effort in the intensity bucket's row that holds exactly volume.
func (t *Table) Effort(intensity float64, volume Volume) (float64, bool) {
	bucket, ok := t.bucket(intensity)
	if !ok {
		return 0, false
	}
	row := t.rows[bucket]
	efforts := make([]float64, 0, len(row))
	for effort := range row {
		efforts = append(efforts, effort)
	}
	slices.Sort(efforts)
	for _, effort := range efforts {
		if row[effort].Equal(volume) {
			return effort, true
		}
	}
	return 0, false
}

// bucket maps a continuous intensity onto a table row according to the table's policy. Intensities further than
// half a bucket outside the table have no bucket.
func (t *Table) bucket(intensity float64) (float64, bool) {
	heaviest, lightest := t.intensities[0], t.intensities[len(t.intensities)-1]
	half := t.halfStep()
	if intensity < lightest-half || intensity > heaviest+half {
		return 0, false
	}

	if t.policy == BucketFloor {
		for _, bucket := range t.intensities {
			if bucket <= intensity {
				return bucket, true
			}
		}
		return 0, false
	}

	best, bestDiff := heaviest, math.Inf(1)
	for _, bucket := range t.intensities {
		// Ties go to the heavier bucket because intensities are visited heaviest first.
		if diff := math.Abs(bucket - intensity); diff < bestDiff {
			best, bestDiff = bucket, diff
		}
	}
	return best, true
}

func (t *Table) halfStep() float64 {
	if len(t.intensities) < 2 { //nolint:mnd // need two buckets for a spacing.
		return 0
	}
	step := math.Inf(1)
	for i := 1; i < len(t.intensities); i++ {
		step = min(step, t.intensities[i-1]-t.intensities[i])
	}
	return step / 2 //nolint:mnd // half.
}
