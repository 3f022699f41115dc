// Package envstruct fills configuration structs from environment variables.
package envstruct

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var (
	ErrEnvNotSet    = errors.New("environment variable not set")
	ErrInvalidValue = errors.New("v must be a pointer to a struct")
	ErrParse        = errors.New("parse environment variable")
)

// Populate sets every field of the struct pointed to by v that carries an `env:"NAME"` tag.
//
// lookupEnv has the signature of [os.LookupEnv]. When NAME is not set the `envDefault:"value"` tag is used, and
// without a default ErrEnvNotSet is reported. Supported field types are string, bool, int, float64 and
// [time.Duration]. All failing fields are reported together.
func Populate(v any, lookupEnv func(string) (string, bool)) error {
	ptr := reflect.ValueOf(v)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		return fmt.Errorf("%w: got %T", ErrInvalidValue, v)
	}
	target := ptr.Elem()
	if target.Kind() != reflect.Struct {
		return fmt.Errorf("%w: got %T", ErrInvalidValue, v)
	}

	var errs []error
	for _, field := range reflect.VisibleFields(target.Type()) {
		name, tagged := field.Tag.Lookup("env")
		if !tagged || len(field.Index) > 1 {
			continue
		}
		value := target.Field(field.Index[0])
		if !value.CanSet() {
			errs = append(errs, fmt.Errorf("%w: field %s is not settable", ErrInvalidValue, field.Name))
			continue
		}
		raw, ok := lookupEnv(name)
		if !ok {
			if raw, ok = field.Tag.Lookup("envDefault"); !ok {
				errs = append(errs, fmt.Errorf("%w: %s", ErrEnvNotSet, name))
				continue
			}
		}
		if err := set(value, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", name, field.Name, err))
		}
	}
	return errors.Join(errs...)
}

func set(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeFor[time.Duration]() {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return errors.Join(ErrParse, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	var err error
	switch field.Kind() { //nolint:exhaustive // everything else is unsupported.
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		var b bool
		if b, err = strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		var n int
		if n, err = strconv.Atoi(raw); err == nil {
			field.SetInt(int64(n))
		}
	case reflect.Float64:
		var f float64
		if f, err = strconv.ParseFloat(raw, 64); err == nil {
			field.SetFloat(f)
		}
	default:
		return fmt.Errorf("%w: unsupported field type %s", ErrInvalidValue, field.Type())
	}
	if err != nil {
		return errors.Join(ErrParse, err)
	}
	return nil
}
