package resolve

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/courseops/mimeo/core/schema"
)

// Relative time expressions give date and datetime positions a small
// vocabulary on top of plain timestamps:
//
//	due: 7 days after ${this.metadata.assigned}
//	release_time: 1 hour before ${previous.metadata.due}
//
// The offset applies to whatever the reference resolves to, and the
// result keeps the reference's type: days move a date to another date
// and a datetime to another datetime, while hour offsets need a full
// datetime to act on.
var relativePattern = regexp.MustCompile(`^\s*(-?\d+)\s+(hour|hours|day|days)\s+(before|after)\s+(\S.*?)\s*$`)

type relativeExpr struct {
	amount    int
	unit      string // "hour" or "day"
	direction string // "before" or "after"
	ref       string // text following the direction keyword
}

func parseRelative(s string) (relativeExpr, bool) {
	m := relativePattern.FindStringSubmatch(s)
	if m == nil {
		return relativeExpr{}, false
	}
	amount, err := strconv.Atoi(m[1])
	if err != nil {
		return relativeExpr{}, false
	}
	return relativeExpr{
		amount:    amount,
		unit:      strings.TrimSuffix(m[2], "s"),
		direction: m[3],
		ref:       m[4],
	}, true
}

func (r *resolver) resolveTemporal(p Path, raw any, node *schema.Node) (any, error) {
	if s, ok := raw.(string); ok {
		if expr, ok := parseRelative(s); ok {
			value, err := r.evalRelative(p, expr)
			if err != nil {
				return nil, err
			}
			return coerceTemporal(p, value, node)
		}
		value, err := r.interpolate(p, s)
		if err != nil {
			return nil, err
		}
		return coerceTemporal(p, value, node)
	}
	return coerceTemporal(p, raw, node)
}

func (r *resolver) evalRelative(p Path, expr relativeExpr) (any, error) {
	if expr.amount < 0 {
		return nil, errAt(p, ErrInvalidValue, "offsets cannot be negative; flip before/after instead")
	}

	inner, ok := placeholderBody(expr.ref)
	if !ok {
		return nil, errAt(p, ErrInvalidValue, "relative times must reference a ${...} placeholder, got %q", expr.ref)
	}

	refValue, err := r.resolveReference(p, inner)
	if err != nil {
		return nil, err
	}

	// References into free-form metadata may hold timestamps that
	// stayed textual.
	if s, ok := refValue.(string); ok {
		v, ok := parseTemporalText(s)
		if !ok {
			return nil, errAt(p, ErrInvalidValue, "reference %q resolved to %q, not a date or datetime", inner, s)
		}
		refValue = v
	}

	n := expr.amount
	if expr.direction == "before" {
		n = -n
	}

	switch ref := refValue.(type) {
	case schema.Date:
		if expr.unit == "hour" {
			return nil, errAt(p, ErrInvalidValue, "hour offsets need a datetime reference, but %q is a date", inner)
		}
		return ref.AddDays(n), nil
	case time.Time:
		if expr.unit == "hour" {
			return ref.Add(time.Duration(n) * time.Hour), nil
		}
		return ref.AddDate(0, 0, n), nil
	}

	return nil, errAt(p, ErrInvalidValue, "reference %q resolved to %s, not a date or datetime", inner, typeName(refValue))
}

// coerceTemporal applies date/datetime typing to a substituted value. A
// date where a datetime is expected widens to midnight UTC; a datetime
// where a date is expected is an error, never a truncation.
func coerceTemporal(p Path, value any, node *schema.Node) (any, error) {
	switch v := value.(type) {
	case nil:
		if node.Nullable {
			return nil, nil
		}
		return nil, errAt(p, ErrTypeMismatch, "null is not allowed here")
	case schema.Date:
		if node.Kind == schema.KindDatetime {
			return v.Time(), nil
		}
		return v, nil
	case time.Time:
		if node.Kind == schema.KindDate {
			return nil, errAt(p, ErrTypeMismatch, "a datetime cannot stand in for a date")
		}
		return v, nil
	case string:
		return parseTemporal(p, v, node)
	}
	return nil, errAt(p, ErrTypeMismatch, "cannot coerce %s to %s", typeName(value), node.Kind)
}

var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
}

// parseTemporal parses ISO 8601 text into the kind the node expects.
func parseTemporal(p Path, s string, node *schema.Node) (any, error) {
	s = strings.TrimSpace(s)
	if node.Kind == schema.KindDate {
		d, err := schema.ParseDate(s)
		if err != nil {
			return nil, errAt(p, ErrTypeMismatch, "cannot parse %q as a date", s)
		}
		return d, nil
	}
	if v, ok := parseTemporalText(s); ok {
		if d, isDate := v.(schema.Date); isDate {
			return d.Time(), nil
		}
		return v, nil
	}
	return nil, errAt(p, ErrTypeMismatch, "cannot parse %q as a datetime", s)
}

// parseTemporalText tries the datetime layouts first so that date-only
// text keeps its narrower type.
func parseTemporalText(s string) (any, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if d, err := schema.ParseDate(s); err == nil {
		return d, true
	}
	return nil, false
}

func placeholderBody(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	body := strings.TrimSpace(s[2 : len(s)-1])
	if body == "" || strings.ContainsAny(body, "{}") {
		return "", false
	}
	return body, true
}
