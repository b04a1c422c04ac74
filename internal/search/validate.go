package search

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// QueryOperators are the comparison operators accepted in a query filter.
var QueryOperators = map[string]bool{
	"eq":         true,
	"ne":         true,
	"lt":         true,
	"lte":        true,
	"gt":         true,
	"gte":        true,
	"startsWith": true,
	"endsWith":   true,
	"contains":   true,
	"in":         true,
}

var geometryTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError renders every field error into one ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return stacerr.Wrap(stacerr.Validation, err, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return stacerr.Wrap(stacerr.Validation, err, "Invalid parameters: "+strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "len=4|len=6":
		return field + " must have 4 or 6 values"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func checkBBox(b model.BBox) error {
	if b.South() < -90 || b.North() > 90 {
		return stacerr.Validationf("Invalid bbox %s: latitude must be within [-90, 90]", b)
	}
	if b.South() > b.North() {
		return stacerr.Validationf("Invalid bbox %s: south is greater than north", b)
	}
	if b.West() < -180 || b.West() > 180 || b.East() < -180 || b.East() > 180 {
		return stacerr.Validationf("Invalid bbox %s: longitude must be within [-180, 180]", b)
	}
	if b.Is3D() && b[2] > b[5] {
		return stacerr.Validationf("Invalid bbox %s: minimum elevation is greater than maximum", b)
	}
	return nil
}

// checkDatetime accepts an instant or an interval with at most one open end.
func checkDatetime(s string) error {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		if _, err := parseInstant(parts[0]); err != nil {
			return stacerr.Validationf("Invalid datetime %q: %v", s, err)
		}
		return nil
	case 2:
	default:
		return stacerr.Validationf("Invalid datetime %q: expected an instant or an interval", s)
	}

	start, end := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	openStart, openEnd := isOpen(start), isOpen(end)
	if openStart && openEnd {
		return stacerr.Validationf("Invalid datetime %q: double open-ended intervals are not allowed", s)
	}
	var t0, t1 time.Time
	var err error
	if !openStart {
		if t0, err = parseInstant(start); err != nil {
			return stacerr.Validationf("Invalid datetime %q: start: %v", s, err)
		}
	}
	if !openEnd {
		if t1, err = parseInstant(end); err != nil {
			return stacerr.Validationf("Invalid datetime %q: end: %v", s, err)
		}
	}
	if !openStart && !openEnd && t1.Before(t0) {
		return stacerr.Validationf("Invalid datetime %q: end is before start", s)
	}
	return nil
}

func isOpen(s string) bool { return s == "" || s == ".." }

func parseInstant(s string) (time.Time, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == ".." {
		return time.Time{}, errors.New("instant required")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.New("not an RFC 3339 timestamp")
	}
	return t, nil
}

func checkQuery(q map[string]map[string]any) error {
	for prop, ops := range q {
		for op := range ops {
			if !QueryOperators[op] {
				return stacerr.Validationf("Invalid query: unsupported operator %q for property %q", op, prop)
			}
		}
	}
	return nil
}

func checkGeometry(g map[string]any) error {
	if g == nil {
		return nil
	}
	typ, _ := g["type"].(string)
	if !geometryTypes[typ] {
		return stacerr.Validationf("Invalid intersects: %q is not a GeoJSON geometry type", typ)
	}
	if typ == "GeometryCollection" {
		if _, ok := g["geometries"].([]any); !ok {
			return stacerr.Validationf("Invalid intersects: geometries are required")
		}
		return nil
	}
	if _, ok := g["coordinates"].([]any); !ok {
		return stacerr.Validationf("Invalid intersects: coordinates are required")
	}
	return nil
}
