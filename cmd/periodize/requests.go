package main

import (
	"fmt"
	"os"
	"time"

	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/schedule"
	"gopkg.in/yaml.v3"
)

// selectionDocument is the YAML form of schedule.Selection shared by shift and bulk edit requests.
type selectionDocument struct {
	OrderFrom    *int              `yaml:"order_from"`
	OrderTo      *int              `yaml:"order_to"`
	OrderIndices []int             `yaml:"order_indices"`
	DateFrom     *time.Time        `yaml:"date_from"`
	DateTo       *time.Time        `yaml:"date_to"`
	Statuses     []schedule.Status `yaml:"statuses"`
	OnlyFuture   bool              `yaml:"only_future"`
}

func (d selectionDocument) selection() schedule.Selection {
	return schedule.Selection{
		OrderFrom:    d.OrderFrom,
		OrderTo:      d.OrderTo,
		OrderIndices: d.OrderIndices,
		DateFrom:     d.DateFrom,
		DateTo:       d.DateTo,
		Statuses:     d.Statuses,
		OnlyFuture:   d.OnlyFuture,
	}
}

type shiftDocument struct {
	Select      selectionDocument `yaml:"select"`
	DayDelta    int               `yaml:"day_delta"`
	IndexDelta  int               `yaml:"index_delta"`
	Restructure *struct {
		RestDays  *int  `yaml:"rest_days"`
		ExtraDays int   `yaml:"extra_days"`
		Every     int   `yaml:"every"`
		After     []int `yaml:"after"`
	} `yaml:"restructure"`
}

func (d shiftDocument) request() schedule.ShiftRequest {
	req := schedule.ShiftRequest{
		Selection:  d.Select.selection(),
		DayDelta:   d.DayDelta,
		IndexDelta: d.IndexDelta,
	}
	if r := d.Restructure; r != nil {
		req.Restructure = &schedule.Restructure{RestDays: r.RestDays, ExtraDays: r.ExtraDays, Every: r.Every, After: r.After}
	}
	return req
}

type rangeDocument struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

func (d *rangeDocument) toRange() *schedule.Range {
	if d == nil {
		return nil
	}
	return &schedule.Range{Min: d.Min, Max: d.Max}
}

type actionDocument struct {
	SetTo    *float64 `yaml:"set_to"`
	Increase *float64 `yaml:"increase"`
	Decrease *float64 `yaml:"decrease"`
}

func (d *actionDocument) action() *schedule.FieldAction {
	if d == nil {
		return nil
	}
	return &schedule.FieldAction{SetTo: d.SetTo, Increase: d.Increase, Decrease: d.Decrease}
}

// setDocument is one set of an explicit addition and the YAML output form of a set.
type setDocument struct {
	Intensity *float64     `yaml:"intensity,omitempty"`
	Effort    *float64     `yaml:"effort,omitempty"`
	Volume    *load.Volume `yaml:"volume,omitempty"`
	WeightKg  *float64     `yaml:"weight_kg,omitempty"`
}

func (d setDocument) values() schedule.SetValues {
	return schedule.SetValues{Intensity: d.Intensity, Effort: d.Effort, Volume: d.Volume, WeightKg: d.WeightKg}
}

func setDocumentOf(v schedule.SetValues) setDocument {
	return setDocument{Intensity: v.Intensity, Effort: v.Effort, Volume: v.Volume, WeightKg: v.WeightKg}
}

type bulkEditDocument struct {
	Select      selectionDocument `yaml:"select"`
	ExerciseIDs []int             `yaml:"exercise_ids"`
	Filters     struct {
		Intensity *rangeDocument `yaml:"intensity"`
		Effort    *rangeDocument `yaml:"effort"`
		Volume    *rangeDocument `yaml:"volume"`
		WeightKg  *rangeDocument `yaml:"weight_kg"`
	} `yaml:"filters"`
	Actions struct {
		Intensity        *actionDocument `yaml:"intensity"`
		Effort           *actionDocument `yaml:"effort"`
		Volume           *actionDocument `yaml:"volume"`
		WeightKg         *actionDocument `yaml:"weight_kg"`
		ClampNonNegative bool            `yaml:"clamp_non_negative"`
	} `yaml:"actions"`
	ReplaceExerciseID *int `yaml:"replace_exercise_id"`
	Add               []struct {
		ExerciseID int           `yaml:"exercise_id"`
		Sets       []setDocument `yaml:"sets"`
	} `yaml:"add"`
}

func (d bulkEditDocument) request() schedule.BulkEditRequest {
	req := schedule.BulkEditRequest{
		Selection:   d.Select.selection(),
		ExerciseIDs: d.ExerciseIDs,
		SetFilters: schedule.SetFilters{
			Intensity: d.Filters.Intensity.toRange(),
			Effort:    d.Filters.Effort.toRange(),
			Volume:    d.Filters.Volume.toRange(),
			Weight:    d.Filters.WeightKg.toRange(),
		},
		SetActions: schedule.SetActions{
			Intensity:        d.Actions.Intensity.action(),
			Effort:           d.Actions.Effort.action(),
			Volume:           d.Actions.Volume.action(),
			Weight:           d.Actions.WeightKg.action(),
			ClampNonNegative: d.Actions.ClampNonNegative,
		},
		ReplaceExerciseID: d.ReplaceExerciseID,
	}
	for _, add := range d.Add {
		addition := schedule.Addition{ExerciseID: add.ExerciseID, Sets: nil}
		for _, s := range add.Sets {
			addition.Sets = append(addition.Sets, s.values())
		}
		req.Additions = append(req.Additions, addition)
	}
	return req
}

// decodeFile strictly decodes the YAML file at path into v.
func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
