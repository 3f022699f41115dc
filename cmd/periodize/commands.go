package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/plan"
	"github.com/myrjola/periodize/internal/schedule"
	"gopkg.in/yaml.v3"
)

var errUnknownCommand = errors.NewSentinel("unknown command")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *application, args []string) error
}

//nolint:gochecknoglobals // command table.
var commands = map[string]command{
	"exercises":  {name: "exercises", summary: "list the exercise catalog or add an exercise", run: exercisesCommand},
	"record-max": {name: "record-max", summary: "record a training max", run: recordMaxCommand},
	"apply":      {name: "apply", summary: "materialize a YAML plan from a start date", run: applyCommand},
	"workouts":   {name: "workouts", summary: "list the workouts of a plan application", run: workoutsCommand},
	"next":       {name: "next", summary: "show the next workout that is not completed", run: nextCommand},
	"start":      {name: "start", summary: "mark a workout as in progress", run: statusCommand(statusStart)},
	"complete":   {name: "complete", summary: "mark a workout as completed", run: statusCommand(statusComplete)},
	"skip":       {name: "skip", summary: "mark a workout as skipped", run: statusCommand(statusSkip)},
	"shift":      {name: "shift", summary: "move selected workouts in time and order", run: shiftCommand},
	"bulk-edit":  {name: "bulk-edit", summary: "edit the sets and exercises of selected workouts", run: bulkEditCommand},
	"delete":     {name: "delete", summary: "delete a plan application with all its workouts", run: deleteCommand},
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	_, _ = fmt.Fprintln(w, "usage: periodize <command> [flags]")
	_, _ = fmt.Fprintln(w, "\ncommands:")
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

// print writes v as a YAML document.
func (app *application) print(v any) error {
	enc := yaml.NewEncoder(app.out)
	enc.SetIndent(2) //nolint:mnd // spaces.
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

func parseApplicationID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, errors.New("missing -app")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse -app: %w", err)
	}
	return id, nil
}

func parseIDs(s string) ([]int, error) {
	var ids []int
	for field := range strings.SplitSeq(s, ",") {
		if field = strings.TrimSpace(field); field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type exerciseView struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

func exercisesCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("exercises")
	add := fs.String("add", "", "name of an exercise to add")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if *add != "" {
		if _, err := app.service.CreateExercise(ctx, *add); err != nil {
			return err //nolint:wrapcheck // annotated by the service.
		}
	}
	exercises, err := app.service.ListExercises(ctx)
	if err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}
	views := make([]exerciseView, 0, len(exercises))
	for _, ex := range exercises {
		views = append(views, exerciseView(ex))
	}
	return app.print(views)
}

type trainingMaxView struct {
	ID           int     `yaml:"id"`
	ExerciseID   int     `yaml:"exercise_id"`
	OneRepMaxKg  float64 `yaml:"one_rep_max_kg"`
	RecordedOn   string  `yaml:"recorded_on"`
	FromVerified bool    `yaml:"verified"`
}

func recordMaxCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("record-max")
	exerciseID := fs.Int("exercise", 0, "exercise id")
	weight := fs.Float64("weight", 0, "lifted weight in kg")
	reps := fs.Int("reps", 1, "repetitions performed")
	effort := fs.Float64("effort", 0, "effort (RPE) of the set, 0 for unknown")
	verified := fs.Float64("verified", 0, "tested one-rep max in kg, 0 for none")
	date := fs.String("date", time.Now().Format(time.DateOnly), "date of the performance")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	recordedOn, err := parseDate(*date)
	if err != nil {
		return err
	}
	tm := load.TrainingMax{
		ID:                  0,
		ExerciseID:          *exerciseID,
		WeightKg:            *weight,
		Reps:                *reps,
		Effort:              nil,
		VerifiedOneRepMaxKg: nil,
		RecordedOn:          recordedOn,
	}
	if *effort > 0 {
		tm.Effort = effort
	}
	if *verified > 0 {
		tm.VerifiedOneRepMaxKg = verified
	}
	if tm, err = app.service.RecordTrainingMax(ctx, tm); err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}
	return app.print(trainingMaxView{
		ID:           tm.ID,
		ExerciseID:   tm.ExerciseID,
		OneRepMaxKg:  tm.OneRepMax(app.service.Table()),
		RecordedOn:   tm.RecordedOn.Format(time.DateOnly),
		FromVerified: tm.VerifiedOneRepMaxKg != nil,
	})
}

type scheduledExerciseView struct {
	ExerciseID     int           `yaml:"exercise_id"`
	EffectiveMaxKg float64       `yaml:"effective_max_kg"`
	Sets           []setDocument `yaml:"sets"`
}

type scheduledDayView struct {
	OrderIndex int                     `yaml:"order_index"`
	Date       string                  `yaml:"date"`
	Label      string                  `yaml:"label,omitempty"`
	Exercises  []scheduledExerciseView `yaml:"exercises"`
}

type applyView struct {
	ApplicationID string             `yaml:"application_id,omitempty"`
	Days          []scheduledDayView `yaml:"days"`
	Gaps          []string           `yaml:"gaps,omitempty"`
	Next          *summaryView       `yaml:"next,omitempty"`
}

type summaryView struct {
	WorkoutID  int    `yaml:"workout_id,omitempty"`
	OrderIndex int    `yaml:"order_index"`
	Date       string `yaml:"date"`
	Label      string `yaml:"label,omitempty"`
	Status     string `yaml:"status"`
}

func summaryOf(s *schedule.WorkoutSummary) *summaryView {
	if s == nil {
		return nil
	}
	return &summaryView{
		WorkoutID:  s.ID,
		OrderIndex: s.OrderIndex,
		Date:       s.Date.Format(time.DateOnly),
		Label:      s.Label,
		Status:     string(s.Status),
	}
}

func applyCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("apply")
	planPath := fs.String("plan", "", "path to the YAML plan document")
	start := fs.String("start", time.Now().Format(time.DateOnly), "date of the first workout")
	maxes := fs.String("maxes", "", "comma separated training max ids, defaults to the latest per exercise")
	dryRun := fs.Bool("dry-run", false, "print the schedule without generating workouts")
	noWeights := fs.Bool("no-weights", false, "leave weights unresolved")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	data, err := os.ReadFile(*planPath)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	p, err := plan.ParseDocument(data)
	if err != nil {
		return errors.Wrap(err, "parse plan", slog.String("path", *planPath))
	}
	startDate, err := parseDate(*start)
	if err != nil {
		return err
	}
	ids, err := parseIDs(*maxes)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if ids, err = app.service.LatestTrainingMaxIDs(ctx, startDate); err != nil {
			return err //nolint:wrapcheck // annotated by the service.
		}
	}

	res, err := app.service.Apply(ctx, schedule.ApplyRequest{
		Plan:             p,
		StartDate:        startDate,
		TrainingMaxIDs:   ids,
		Rounding:         app.rounding,
		ComputeWeights:   !*noWeights,
		GenerateWorkouts: !*dryRun,
	})
	if err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}

	view := applyView{ApplicationID: "", Days: nil, Gaps: nil, Next: summaryOf(res.Next)}
	if res.ApplicationID != uuid.Nil {
		view.ApplicationID = res.ApplicationID.String()
	}
	for _, day := range res.Schedule.Days {
		dv := scheduledDayView{OrderIndex: day.OrderIndex, Date: day.Date.Format(time.DateOnly), Label: day.Label}
		for _, ex := range day.Exercises {
			ev := scheduledExerciseView{ExerciseID: ex.ExerciseID, EffectiveMaxKg: ex.EffectiveMaxKg}
			for _, set := range ex.Sets {
				ev.Sets = append(ev.Sets, setDocument{
					Intensity: set.Load.Intensity,
					Effort:    set.Load.Effort,
					Volume:    set.Load.Volume,
					WeightKg:  set.WeightKg,
				})
			}
			dv.Exercises = append(dv.Exercises, ev)
		}
		view.Days = append(view.Days, dv)
	}
	for _, gap := range res.Schedule.Gaps {
		view.Gaps = append(view.Gaps, gap.String())
	}
	return app.print(view)
}

type instanceView struct {
	ExerciseID int           `yaml:"exercise_id"`
	Sets       []setDocument `yaml:"sets"`
}

type workoutView struct {
	summaryView `yaml:",inline"`
	Exercises   []instanceView `yaml:"exercises"`
}

func workoutsCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("workouts")
	appID := fs.String("app", "", "plan application id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	id, err := parseApplicationID(*appID)
	if err != nil {
		return err
	}
	workouts, err := app.service.ListWorkouts(ctx, id)
	if err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}
	views := make([]workoutView, 0, len(workouts))
	for _, w := range workouts {
		summary := schedule.WorkoutSummary{ID: w.ID, OrderIndex: w.OrderIndex, Date: w.Date, Label: w.Label, Status: w.Status}
		view := workoutView{summaryView: *summaryOf(&summary), Exercises: nil}
		for _, inst := range w.Exercises {
			iv := instanceView{ExerciseID: inst.ExerciseID, Sets: nil}
			for _, set := range inst.Sets {
				iv.Sets = append(iv.Sets, setDocumentOf(set.Values))
			}
			view.Exercises = append(view.Exercises, iv)
		}
		views = append(views, view)
	}
	return app.print(views)
}

func nextCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("next")
	appID := fs.String("app", "", "plan application id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	id, err := parseApplicationID(*appID)
	if err != nil {
		return err
	}
	next, err := app.service.NextWorkout(ctx, id)
	if err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}
	if next == nil {
		_, err = fmt.Fprintln(app.out, "every workout is completed")
		return err //nolint:wrapcheck // stdout.
	}
	return app.print(summaryOf(next))
}

type statusChange int

const (
	statusStart statusChange = iota
	statusComplete
	statusSkip
)

func statusCommand(change statusChange) func(context.Context, *application, []string) error {
	return func(ctx context.Context, app *application, args []string) error {
		fs := newFlagSet("status")
		workoutID := fs.Int("workout", 0, "workout id")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("parse flags: %w", err)
		}
		switch change {
		case statusStart:
			return app.service.StartWorkout(ctx, *workoutID) //nolint:wrapcheck // annotated by the service.
		case statusComplete:
			return app.service.CompleteWorkout(ctx, *workoutID) //nolint:wrapcheck // annotated by the service.
		default:
			return app.service.SkipWorkout(ctx, *workoutID) //nolint:wrapcheck // annotated by the service.
		}
	}
}

func modeFlag(fs *flag.FlagSet) *bool {
	return fs.Bool("apply", false, "persist the change instead of previewing it")
}

func modeOf(apply bool) schedule.Mode {
	if apply {
		return schedule.ModeApply
	}
	return schedule.ModePreview
}

type changeView struct {
	WorkoutID     int    `yaml:"workout_id"`
	OldOrderIndex int    `yaml:"old_order_index"`
	NewOrderIndex int    `yaml:"new_order_index"`
	OldDate       string `yaml:"old_date"`
	NewDate       string `yaml:"new_date"`
}

type shiftView struct {
	Mode     string       `yaml:"mode"`
	Affected int          `yaml:"affected"`
	Changes  []changeView `yaml:"changes,omitempty"`
}

func shiftCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("shift")
	appID := fs.String("app", "", "plan application id")
	requestPath := fs.String("request", "", "path to the YAML shift request")
	apply := modeFlag(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	id, err := parseApplicationID(*appID)
	if err != nil {
		return err
	}
	var doc shiftDocument
	if err = decodeFile(*requestPath, &doc); err != nil {
		return err
	}
	req := doc.request()
	req.ApplicationID = id
	req.Mode = modeOf(*apply)

	res, err := app.service.Shift(ctx, req)
	if err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}
	view := shiftView{Mode: string(req.Mode), Affected: res.Affected, Changes: nil}
	for _, c := range res.Changes {
		view.Changes = append(view.Changes, changeView{
			WorkoutID:     c.WorkoutID,
			OldOrderIndex: c.OldOrderIndex,
			NewOrderIndex: c.NewOrderIndex,
			OldDate:       c.OldDate.Format(time.DateOnly),
			NewDate:       c.NewDate.Format(time.DateOnly),
		})
	}
	return app.print(view)
}

type setChangeView struct {
	SetID  int         `yaml:"set_id"`
	Before setDocument `yaml:"before"`
	After  setDocument `yaml:"after"`
}

type addedView struct {
	ExerciseID int           `yaml:"exercise_id"`
	Position   int           `yaml:"position"`
	Source     string        `yaml:"source"`
	Sets       []setDocument `yaml:"sets"`
}

type workoutEditView struct {
	WorkoutID  int              `yaml:"workout_id"`
	OrderIndex int              `yaml:"order_index"`
	Date       string           `yaml:"date"`
	SetChanges []setChangeView  `yaml:"set_changes,omitempty"`
	Replaced   []map[string]int `yaml:"replaced,omitempty"`
	Added      []addedView      `yaml:"added,omitempty"`
}

type bulkEditView struct {
	Mode              string            `yaml:"mode"`
	MatchedWorkouts   int               `yaml:"matched_workouts"`
	MatchedInstances  int               `yaml:"matched_instances"`
	MatchedSets       int               `yaml:"matched_sets"`
	UpdatedSets       int               `yaml:"updated_sets"`
	ReplacedInstances int               `yaml:"replaced_instances"`
	AddedInstances    int               `yaml:"added_instances"`
	AddedSets         int               `yaml:"added_sets"`
	Details           []workoutEditView `yaml:"details,omitempty"`
}

func bulkEditCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("bulk-edit")
	appID := fs.String("app", "", "plan application id")
	requestPath := fs.String("request", "", "path to the YAML bulk edit request")
	apply := modeFlag(fs)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	id, err := parseApplicationID(*appID)
	if err != nil {
		return err
	}
	var doc bulkEditDocument
	if err = decodeFile(*requestPath, &doc); err != nil {
		return err
	}
	req := doc.request()
	req.ApplicationID = id
	req.Mode = modeOf(*apply)

	res, err := app.service.BulkEdit(ctx, req)
	if err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}
	view := bulkEditView{
		Mode:              string(req.Mode),
		MatchedWorkouts:   res.MatchedWorkouts,
		MatchedInstances:  res.MatchedInstances,
		MatchedSets:       res.MatchedSets,
		UpdatedSets:       res.UpdatedSets,
		ReplacedInstances: res.ReplacedInstances,
		AddedInstances:    res.AddedInstances,
		AddedSets:         res.AddedSets,
		Details:           nil,
	}
	for _, d := range res.Details {
		dv := workoutEditView{WorkoutID: d.WorkoutID, OrderIndex: d.OrderIndex, Date: d.Date.Format(time.DateOnly)}
		for _, c := range d.SetChanges {
			dv.SetChanges = append(dv.SetChanges, setChangeView{
				SetID:  c.SetID,
				Before: setDocumentOf(c.Before),
				After:  setDocumentOf(c.After),
			})
		}
		for _, r := range d.Replaced {
			dv.Replaced = append(dv.Replaced, map[string]int{
				"instance_id": r.InstanceID,
				"from":        r.OldExerciseID,
				"to":          r.NewExerciseID,
			})
		}
		for _, a := range d.Added {
			av := addedView{ExerciseID: a.ExerciseID, Position: a.Position, Source: a.Source, Sets: nil}
			for _, s := range a.Sets {
				av.Sets = append(av.Sets, setDocumentOf(s))
			}
			dv.Added = append(dv.Added, av)
		}
		view.Details = append(view.Details, dv)
	}
	return app.print(view)
}

func deleteCommand(ctx context.Context, app *application, args []string) error {
	fs := newFlagSet("delete")
	appID := fs.String("app", "", "plan application id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	id, err := parseApplicationID(*appID)
	if err != nil {
		return err
	}
	if err = app.service.DeleteApplication(ctx, id); err != nil {
		return err //nolint:wrapcheck // annotated by the service.
	}
	app.logger.LogAttrs(ctx, slog.LevelInfo, "deleted plan application", slog.String("plan_application_id", id.String()))
	return nil
}

