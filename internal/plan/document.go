package plan

import (
	"fmt"

	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/ptr"
	"gopkg.in/yaml.v3"
)

// Document is the nested YAML form of a plan as authored by a coach. Flatten converts it to the arena form.
type Document struct {
	Name          string          `yaml:"name"`
	DurationWeeks int             `yaml:"duration_weeks"`
	Blocks        []BlockDocument `yaml:"blocks"`
}

type BlockDocument struct {
	Name          string             `yaml:"name"`
	Weeks         int                `yaml:"weeks"`
	Normalization *Normalization     `yaml:"normalization"`
	SubBlocks     []SubBlockDocument `yaml:"sub_blocks"`
}

type SubBlockDocument struct {
	Name          string         `yaml:"name"`
	DayCount      *int           `yaml:"day_count"`
	Normalization *Normalization `yaml:"normalization"`
	Days          []DayDocument  `yaml:"days"`
}

type DayDocument struct {
	// Key orders the day within its sub-block. Defaults to the day's position.
	Key       *int               `yaml:"key"`
	Label     string             `yaml:"label"`
	Exercises []ExerciseDocument `yaml:"exercises"`
}

type ExerciseDocument struct {
	ExerciseID int           `yaml:"exercise_id"`
	Sets       []SetDocument `yaml:"sets"`
}

// SetDocument prescribes Repeat identical sets. Repeat defaults to one.
type SetDocument struct {
	Intensity *float64     `yaml:"intensity"`
	Effort    *float64     `yaml:"effort"`
	Volume    *load.Volume `yaml:"volume"`
	WeightKg  *float64     `yaml:"weight_kg"`
	Repeat    int          `yaml:"repeat"`
}

// ParseDocument decodes a YAML plan document and flattens it.
func ParseDocument(data []byte) (Plan, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Plan{}, errors.Join(ErrInvalidPlan, fmt.Errorf("decode plan document: %w", err))
	}
	p, err := doc.Flatten()
	if err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Flatten assigns ids in document order and returns the arena form of the plan.
func (d Document) Flatten() (Plan, error) {
	p := Plan{
		Name:          d.Name,
		DurationWeeks: d.DurationWeeks,
		Blocks:        nil,
		SubBlocks:     nil,
		Days:          nil,
		Exercises:     nil,
		Sets:          nil,
	}
	for bi, bd := range d.Blocks {
		block := Block{
			ID:            len(p.Blocks) + 1,
			OrderIndex:    bi,
			Name:          bd.Name,
			Weeks:         bd.Weeks,
			Normalization: bd.Normalization,
		}
		p.Blocks = append(p.Blocks, block)

		for si, sd := range bd.SubBlocks {
			subBlock := SubBlock{
				ID:            len(p.SubBlocks) + 1,
				BlockID:       block.ID,
				OrderIndex:    si,
				Name:          sd.Name,
				DayCount:      sd.DayCount,
				Normalization: sd.Normalization,
			}
			p.SubBlocks = append(p.SubBlocks, subBlock)

			for di, dd := range sd.Days {
				day := DaySchedule{
					ID:         len(p.Days) + 1,
					SubBlockID: subBlock.ID,
					Key:        ptr.Deref(dd.Key, di),
					Label:      dd.Label,
				}
				p.Days = append(p.Days, day)

				for ei, ed := range dd.Exercises {
					if ed.ExerciseID <= 0 {
						return Plan{}, errors.Join(ErrInvalidPlan,
							fmt.Errorf("day %q exercise %d: missing exercise_id", dd.Label, ei+1))
					}
					ex := ExercisePrescription{
						ID:         len(p.Exercises) + 1,
						DayID:      day.ID,
						OrderIndex: ei,
						ExerciseID: ed.ExerciseID,
					}
					p.Exercises = append(p.Exercises, ex)
					p.Sets = appendSets(p.Sets, ex.ID, ed.Sets)
				}
			}
		}
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func appendSets(sets []SetPrescription, exerciseID int, docs []SetDocument) []SetPrescription {
	order := 0
	for _, sd := range docs {
		for range max(sd.Repeat, 1) {
			sets = append(sets, SetPrescription{
				ID:                     len(sets) + 1,
				ExercisePrescriptionID: exerciseID,
				OrderIndex:             order,
				Load:                   load.Load{Intensity: sd.Intensity, Effort: sd.Effort, Volume: sd.Volume},
				WeightKg:               sd.WeightKg,
			})
			order++
		}
	}
	return sets
}
