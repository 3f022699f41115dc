package envstruct_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/periodize/internal/envstruct"
)

type settings struct {
	SqliteURL    string        `env:"SQLITE_URL" envDefault:"./periodize.sqlite3"`
	RoundingStep float64       `env:"ROUNDING_STEP" envDefault:"2.5"`
	Attempts     int           `env:"ATTEMPTS" envDefault:"3"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"2s"`
	DryRun       bool          `env:"DRY_RUN" envDefault:"false"`
	Untagged     string
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestPopulate(t *testing.T) {
	defaults := settings{
		SqliteURL:    "./periodize.sqlite3",
		RoundingStep: 2.5,
		Attempts:     3,
		Timeout:      2 * time.Second,
		DryRun:       false,
		Untagged:     "",
	}
	tests := []struct {
		name    string
		vars    map[string]string
		want    settings
		wantErr error
	}{
		{name: "defaults", vars: nil, want: defaults, wantErr: nil},
		{
			name: "overrides",
			vars: map[string]string{
				"SQLITE_URL":    ":memory:",
				"ROUNDING_STEP": "1.25",
				"ATTEMPTS":      "5",
				"TIMEOUT":       "150ms",
				"DRY_RUN":       "true",
				"Untagged":      "ignored",
			},
			want: settings{
				SqliteURL:    ":memory:",
				RoundingStep: 1.25,
				Attempts:     5,
				Timeout:      150 * time.Millisecond,
				DryRun:       true,
				Untagged:     "",
			},
			wantErr: nil,
		},
		{name: "bad int", vars: map[string]string{"ATTEMPTS": "three"}, wantErr: envstruct.ErrParse},
		{name: "bad duration", vars: map[string]string{"TIMEOUT": "2 seconds"}, wantErr: envstruct.ErrParse},
		{name: "bad float", vars: map[string]string{"ROUNDING_STEP": "2,5"}, wantErr: envstruct.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got settings
			err := envstruct.Populate(&got, env(tt.vars))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Populate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Populate() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Populate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPopulate_Invalid(t *testing.T) {
	var required struct {
		Table string `env:"LOAD_TABLE"`
	}
	var unsupported struct {
		IDs []int `env:"IDS" envDefault:"1,2"`
	}
	tests := []struct {
		name    string
		v       any
		wantErr error
	}{
		{name: "nil", v: nil, wantErr: envstruct.ErrInvalidValue},
		{name: "not a pointer", v: settings{}, wantErr: envstruct.ErrInvalidValue},
		{name: "pointer to non-struct", v: new(int), wantErr: envstruct.ErrInvalidValue},
		{name: "missing without default", v: &required, wantErr: envstruct.ErrEnvNotSet},
		{name: "unsupported type", v: &unsupported, wantErr: envstruct.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := envstruct.Populate(tt.v, env(nil)); !errors.Is(err, tt.wantErr) {
				t.Errorf("Populate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
