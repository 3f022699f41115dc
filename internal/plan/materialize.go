package plan

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
)

// CoverageError reports exercises referenced by a plan without a training max. It is fatal for materialization.
type CoverageError struct {
	Missing []int
}

var _ error = (*CoverageError)(nil)

func (e *CoverageError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = strconv.Itoa(id)
	}
	return "no training max for exercises " + strings.Join(ids, ", ")
}

// Load field names reported in a ResolutionGap.
const (
	FieldIntensity = "intensity"
	FieldEffort    = "effort"
	FieldVolume    = "volume"
	FieldWeight    = "weight"
)

// ResolutionGap records a set whose load fields could not all be resolved. Gaps never fail materialization.
type ResolutionGap struct {
	OrderIndex int
	ExerciseID int
	SetIndex   int
	Missing    []string
}

// Options configures a materialization pass.
type Options struct {
	StartDate      time.Time
	Rounding       load.Rounding
	ComputeWeights bool
}

// Schedule is the calculated output of a materialization pass.
type Schedule struct {
	Days []ScheduledDay
	Gaps []ResolutionGap
	// SeedMaxes holds the one-rep-max per exercise before any normalization.
	SeedMaxes map[int]float64
}

type ScheduledDay struct {
	OrderIndex int
	Date       time.Time
	BlockID    int
	SubBlockID int
	DayID      int
	Label      string
	Exercises  []ScheduledExercise
}

type ScheduledExercise struct {
	ExerciseID int
	// EffectiveMaxKg is the normalized one-rep-max the weights were resolved against.
	EffectiveMaxKg float64
	Sets           []ScheduledSet
}

type ScheduledSet struct {
	Load     load.Load
	WeightKg *float64
}

// effectiveMax is the running one-rep-max per exercise for a single materialization pass. It is created per call
// and passed down the traversal so concurrent passes never share it.
type effectiveMax struct {
	byExercise map[int]float64
}

func (m *effectiveMax) normalize(n *Normalization) {
	if n == nil {
		return
	}
	for id, oneRepMax := range m.byExercise {
		m.byExercise[id] = n.Apply(oneRepMax)
	}
}

// seedEffectiveMax builds the starting maxes from the latest training max of every exercise the plan references.
func seedEffectiveMax(p Plan, maxes []load.TrainingMax, table *load.Table) (*effectiveMax, error) {
	latest := make(map[int]load.TrainingMax, len(maxes))
	for _, tm := range maxes {
		current, ok := latest[tm.ExerciseID]
		if !ok || tm.RecordedOn.After(current.RecordedOn) ||
			(tm.RecordedOn.Equal(current.RecordedOn) && tm.ID > current.ID) {
			latest[tm.ExerciseID] = tm
		}
	}

	em := &effectiveMax{byExercise: make(map[int]float64)}
	var missing []int
	for _, id := range p.ExerciseIDs() {
		tm, ok := latest[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		em.byExercise[id] = tm.OneRepMax(table)
	}
	if len(missing) > 0 {
		return nil, &CoverageError{Missing: missing}
	}
	return em, nil
}

// Materialize walks the plan in block, sub-block and day order and emits one ScheduledDay per DaySchedule.
//
// Block normalizations apply before the block's sub-blocks are visited; sub-block normalizations apply after the
// sub-block's days so they only affect what follows. A plan exercise without a training max fails the whole call
// with a *CoverageError.
func Materialize(p Plan, maxes []load.TrainingMax, table *load.Table, opts Options) (Schedule, error) {
	if err := p.Validate(); err != nil {
		return Schedule{}, err
	}
	em, err := seedEffectiveMax(p, maxes, table)
	if err != nil {
		return Schedule{}, err
	}

	m := materializer{
		table:   table,
		opts:    opts,
		start:   dateOnly(opts.StartDate),
		tree:    index(p),
		nextIdx: 0,
		offset:  0,
	}
	schedule := Schedule{
		Days:      nil,
		Gaps:      nil,
		SeedMaxes: maps.Clone(em.byExercise),
	}
	for _, block := range m.tree.blocks {
		m.block(block, em, &schedule)
	}
	return schedule, nil
}

type materializer struct {
	table *load.Table
	opts  Options
	start time.Time
	tree  tree
	// nextIdx is the plan-wide order index handed to the next day.
	nextIdx int
	// offset is the day offset from the start date where the next sub-block begins.
	offset int
}

func (m *materializer) block(b Block, em *effectiveMax, out *Schedule) {
	em.normalize(b.Normalization)
	for _, sb := range m.tree.subBlocks[b.ID] {
		m.subBlock(b, sb, em, out)
	}
}

func (m *materializer) subBlock(b Block, sb SubBlock, em *effectiveMax, out *Schedule) {
	days := m.tree.days[sb.ID]
	n := len(days)
	// Validate guarantees an explicit day count covers every day.
	span := n
	if sb.DayCount != nil {
		span = *sb.DayCount
	}

	for i, day := range days {
		dayOffset := i
		if sb.DayCount != nil {
			dayOffset = i * span / n
		}
		out.Days = append(out.Days, m.day(b, sb, day, m.offset+dayOffset, em, out))
	}
	m.offset += span

	em.normalize(sb.Normalization)
}

func (m *materializer) day(b Block, sb SubBlock, d DaySchedule, offset int, em *effectiveMax, out *Schedule) ScheduledDay {
	scheduled := ScheduledDay{
		OrderIndex: m.nextIdx,
		Date:       m.start.AddDate(0, 0, offset),
		BlockID:    b.ID,
		SubBlockID: sb.ID,
		DayID:      d.ID,
		Label:      d.Label,
		Exercises:  nil,
	}
	m.nextIdx++

	for _, ex := range m.tree.exercises[d.ID] {
		oneRepMax := em.byExercise[ex.ExerciseID]
		se := ScheduledExercise{ExerciseID: ex.ExerciseID, EffectiveMaxKg: oneRepMax, Sets: nil}
		for setIdx, sp := range m.tree.sets[ex.ID] {
			set := m.set(sp, oneRepMax)
			if missing := missingFields(set, m.opts.ComputeWeights); len(missing) > 0 {
				out.Gaps = append(out.Gaps, ResolutionGap{
					OrderIndex: scheduled.OrderIndex,
					ExerciseID: ex.ExerciseID,
					SetIndex:   setIdx,
					Missing:    missing,
				})
			}
			se.Sets = append(se.Sets, set)
		}
		scheduled.Exercises = append(scheduled.Exercises, se)
	}
	return scheduled
}

func (m *materializer) set(sp SetPrescription, oneRepMaxKg float64) ScheduledSet {
	resolved := m.table.Resolve(sp.Load)
	set := ScheduledSet{Load: resolved, WeightKg: sp.WeightKg}
	if set.WeightKg == nil && m.opts.ComputeWeights && resolved.Intensity != nil {
		w := load.ResolveWeight(oneRepMaxKg, *resolved.Intensity, m.opts.Rounding)
		set.WeightKg = &w
	}
	return set
}

func missingFields(set ScheduledSet, wantWeight bool) []string {
	var missing []string
	if set.Load.Intensity == nil {
		missing = append(missing, FieldIntensity)
	}
	if set.Load.Effort == nil {
		missing = append(missing, FieldEffort)
	}
	if set.Load.Volume == nil {
		missing = append(missing, FieldVolume)
	}
	if wantWeight && set.WeightKg == nil {
		missing = append(missing, FieldWeight)
	}
	return missing
}

func dateOnly(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// String summarizes the gap for logs.
func (g ResolutionGap) String() string {
	return fmt.Sprintf("day %d exercise %d set %d missing %s",
		g.OrderIndex, g.ExerciseID, g.SetIndex, strings.Join(g.Missing, ","))
}

// IsCoverageError reports whether err is or wraps a *CoverageError.
func IsCoverageError(err error) bool {
	var ce *CoverageError
	return errors.As(err, &ce)
}
