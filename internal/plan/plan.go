// Package plan models periodized training plans and materializes them into dated, weight-resolved schedules.
//
// A plan is stored as flat collections keyed by parent id and order index instead of nested structs. Traversal
// sorts each level and iterates, so reordering never rewrites parent or child links.
package plan

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
)

var ErrInvalidPlan = errors.NewSentinel("invalid plan")

// NormalizationUnit is the unit of a Normalization value.
type NormalizationUnit string

const (
	// UnitPercentage scales maxes by 1 + value/100.
	UnitPercentage NormalizationUnit = "percentage"
	// UnitAbsolute adds value kilograms to maxes.
	UnitAbsolute NormalizationUnit = "absolute"
)

// Normalization is a scheduled adjustment of every working max.
type Normalization struct {
	Value float64           `yaml:"value"`
	Unit  NormalizationUnit `yaml:"unit"`
}

// Apply returns oneRepMax adjusted by n, never below zero.
func (n Normalization) Apply(oneRepMaxKg float64) float64 {
	var adjusted float64
	switch n.Unit {
	case UnitAbsolute:
		adjusted = oneRepMaxKg + n.Value
	case UnitPercentage:
		adjusted = oneRepMaxKg * (1 + n.Value/100) //nolint:mnd // percent.
	default:
		adjusted = oneRepMaxKg
	}
	return max(adjusted, 0)
}

// Plan is the root of the hierarchy Block → SubBlock → DaySchedule → ExercisePrescription → SetPrescription.
type Plan struct {
	Name          string
	DurationWeeks int
	Blocks        []Block
	SubBlocks     []SubBlock
	Days          []DaySchedule
	Exercises     []ExercisePrescription
	Sets          []SetPrescription
}

type Block struct {
	ID            int
	OrderIndex    int
	Name          string
	Weeks         int
	Normalization *Normalization
}

type SubBlock struct {
	ID         int
	BlockID    int
	OrderIndex int
	Name       string
	// DayCount is the calendar span of the sub-block. Without it the sub-block spans one day per DaySchedule.
	DayCount      *int
	Normalization *Normalization
}

// DaySchedule is one training day. Days of a sub-block are visited by Key and then by insertion order.
type DaySchedule struct {
	ID         int
	SubBlockID int
	Key        int
	Label      string
}

type ExercisePrescription struct {
	ID         int
	DayID      int
	OrderIndex int
	ExerciseID int
}

// SetPrescription prescribes any subset of intensity, effort and volume and optionally a fixed weight.
type SetPrescription struct {
	ID                     int
	ExercisePrescriptionID int
	OrderIndex             int
	Load                   load.Load
	WeightKg               *float64
}

// ExerciseIDs returns every exercise referenced by the plan, sorted.
func (p Plan) ExerciseIDs() []int {
	var ids []int
	for _, ex := range p.Exercises {
		ids = append(ids, ex.ExerciseID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Validate checks that ids are unique and every child points at an existing parent.
func (p Plan) Validate() error {
	var errs []error
	blockIDs, err := uniqueIDs("block", p.Blocks, func(b Block) int { return b.ID })
	errs = append(errs, err)
	subBlockIDs, err := uniqueIDs("sub-block", p.SubBlocks, func(s SubBlock) int { return s.ID })
	errs = append(errs, err)
	dayIDs, err := uniqueIDs("day", p.Days, func(d DaySchedule) int { return d.ID })
	errs = append(errs, err)
	exerciseIDs, err := uniqueIDs("exercise prescription", p.Exercises, func(e ExercisePrescription) int { return e.ID })
	errs = append(errs, err)
	_, err = uniqueIDs("set prescription", p.Sets, func(s SetPrescription) int { return s.ID })
	errs = append(errs, err)

	daysPerSubBlock := make(map[int]int, len(p.SubBlocks))
	for _, d := range p.Days {
		daysPerSubBlock[d.SubBlockID]++
	}
	for _, sb := range p.SubBlocks {
		if _, ok := blockIDs[sb.BlockID]; !ok {
			errs = append(errs, fmt.Errorf("sub-block %d references unknown block %d", sb.ID, sb.BlockID))
		}
		if sb.DayCount != nil && *sb.DayCount < max(1, daysPerSubBlock[sb.ID]) {
			errs = append(errs, fmt.Errorf("sub-block %d has day count %d for %d days",
				sb.ID, *sb.DayCount, daysPerSubBlock[sb.ID]))
		}
	}
	for _, d := range p.Days {
		if _, ok := subBlockIDs[d.SubBlockID]; !ok {
			errs = append(errs, fmt.Errorf("day %d references unknown sub-block %d", d.ID, d.SubBlockID))
		}
	}
	for _, e := range p.Exercises {
		if _, ok := dayIDs[e.DayID]; !ok {
			errs = append(errs, fmt.Errorf("exercise prescription %d references unknown day %d", e.ID, e.DayID))
		}
	}
	for _, s := range p.Sets {
		if _, ok := exerciseIDs[s.ExercisePrescriptionID]; !ok {
			errs = append(errs, fmt.Errorf("set prescription %d references unknown exercise prescription %d",
				s.ID, s.ExercisePrescriptionID))
		}
	}
	for _, n := range p.normalizations() {
		if n.Unit != UnitPercentage && n.Unit != UnitAbsolute {
			errs = append(errs, fmt.Errorf("unknown normalization unit %q", n.Unit))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return errors.Join(ErrInvalidPlan, err)
	}
	return nil
}

func (p Plan) normalizations() []Normalization {
	var ns []Normalization
	for _, b := range p.Blocks {
		if b.Normalization != nil {
			ns = append(ns, *b.Normalization)
		}
	}
	for _, sb := range p.SubBlocks {
		if sb.Normalization != nil {
			ns = append(ns, *sb.Normalization)
		}
	}
	return ns
}

func uniqueIDs[T any](kind string, items []T, id func(T) int) (map[int]struct{}, error) {
	seen := make(map[int]struct{}, len(items))
	var errs []error
	for _, item := range items {
		if _, ok := seen[id(item)]; ok {
			errs = append(errs, fmt.Errorf("duplicate %s id %d", kind, id(item)))
		}
		seen[id(item)] = struct{}{}
	}
	return seen, errors.Join(errs...)
}

// tree indexes the flat collections by parent id, each child list sorted for traversal.
type tree struct {
	blocks    []Block
	subBlocks map[int][]SubBlock
	days      map[int][]DaySchedule
	exercises map[int][]ExercisePrescription
	sets      map[int][]SetPrescription
}

func index(p Plan) tree {
	t := tree{
		blocks:    slices.Clone(p.Blocks),
		subBlocks: groupBy(p.SubBlocks, func(s SubBlock) int { return s.BlockID }),
		days:      groupBy(p.Days, func(d DaySchedule) int { return d.SubBlockID }),
		exercises: groupBy(p.Exercises, func(e ExercisePrescription) int { return e.DayID }),
		sets:      groupBy(p.Sets, func(s SetPrescription) int { return s.ExercisePrescriptionID }),
	}
	slices.SortStableFunc(t.blocks, func(a, b Block) int { return cmp.Compare(a.OrderIndex, b.OrderIndex) })
	for _, children := range t.subBlocks {
		slices.SortStableFunc(children, func(a, b SubBlock) int { return cmp.Compare(a.OrderIndex, b.OrderIndex) })
	}
	for _, children := range t.days {
		slices.SortStableFunc(children, func(a, b DaySchedule) int { return cmp.Compare(a.Key, b.Key) })
	}
	for _, children := range t.exercises {
		slices.SortStableFunc(children, func(a, b ExercisePrescription) int {
			return cmp.Compare(a.OrderIndex, b.OrderIndex)
		})
	}
	for _, children := range t.sets {
		slices.SortStableFunc(children, func(a, b SetPrescription) int { return cmp.Compare(a.OrderIndex, b.OrderIndex) })
	}
	return t
}

func groupBy[T any](items []T, parent func(T) int) map[int][]T {
	grouped := make(map[int][]T)
	for _, item := range items {
		grouped[parent(item)] = append(grouped[parent(item)], item)
	}
	return grouped
}
