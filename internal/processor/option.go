package processor

import (
	"fmt"
	"strconv"
	"strings"
)

// OptionType is the data type of a configuration option.
type OptionType uint8

const (
	// OptionString represents a string value.
	OptionString OptionType = iota
	// OptionInt represents an integer value.
	OptionInt
	// OptionFloat represents a floating-point value.
	OptionFloat
	// OptionBool represents a boolean value.
	OptionBool
)

// String returns the string representation of the option type.
func (t OptionType) String() string {
	switch t {
	case OptionString:
		return "string"
	case OptionInt:
		return "int"
	case OptionFloat:
		return "float"
	case OptionBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseOptionType parses a manifest type name into an OptionType.
// Accepts the common aliases used by plugin manifests.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str":
		return OptionString, nil
	case "int", "integer":
		return OptionInt, nil
	case "float", "number":
		return OptionFloat, nil
	case "bool", "boolean":
		return OptionBool, nil
	default:
		return OptionString, fmt.Errorf("unknown option type %q", s)
	}
}

// Option declares a single configuration option a processor accepts.
// Options are exposed as --<namespace>-<name> flags and
// IMGC_<NAMESPACE>_<NAME> environment variables.
type Option struct {
	// Name is the option name within its namespace (e.g. "jpeg_quality").
	Name string

	// Type is the value's data type.
	Type OptionType

	// Default is used when no flag, environment variable, or config file
	// entry provides a value, and as the fallback when a provided value
	// fails coercion or validation.
	Default any

	// Description is human-readable documentation, shown in flag help.
	Description string

	// Enum lists allowed values (optional).
	Enum []any

	// Minimum for numeric types (nil means no minimum).
	Minimum *float64

	// Maximum for numeric types (nil means no maximum).
	Maximum *float64
}

// Coerce parses a raw string (from a flag or environment variable) into the
// option's declared type.
func (o Option) Coerce(raw string) (any, error) {
	switch o.Type {
	case OptionString:
		return raw, nil
	case OptionInt:
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return v, nil
	case OptionFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return v, nil
	case OptionBool:
		return parseBoolWord(raw)
	default:
		return nil, fmt.Errorf("unknown option type %d", o.Type)
	}
}

// Validate checks a typed value against the option's constraints.
func (o Option) Validate(value any) error {
	if err := o.validateType(value); err != nil {
		return err
	}

	if len(o.Enum) > 0 {
		found := false
		for _, allowed := range o.Enum {
			if allowed == value {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("value must be one of: %v", o.Enum)
		}
	}

	if o.Type == OptionInt || o.Type == OptionFloat {
		return o.validateRange(value)
	}
	return nil
}

func (o Option) validateType(value any) error {
	switch o.Type {
	case OptionString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case OptionInt:
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			// Valid
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case OptionFloat:
		switch value.(type) {
		case float32, float64, int, int64:
			// Valid (integers are acceptable for float)
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case OptionBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	}
	return nil
}

func (o Option) validateRange(value any) error {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil
	}

	if o.Minimum != nil && f < *o.Minimum {
		return fmt.Errorf("value %v is less than minimum %v", value, *o.Minimum)
	}
	if o.Maximum != nil && f > *o.Maximum {
		return fmt.Errorf("value %v is greater than maximum %v", value, *o.Maximum)
	}
	return nil
}

// parseBoolWord accepts the usual spellings of boolean values.
func parseBoolWord(raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return nil, fmt.Errorf("%q is not a boolean", raw)
	}
}
