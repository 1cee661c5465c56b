package nocodb

import (
	"strings"

	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

// reserved are the characters that delimit conditions in the where grammar.
const reserved = "(),~"

// Eq renders (field,eq,value). Values that come from callers must pass
// Literal first.
func Eq(field, value string) string {
	return "(" + field + ",eq," + value + ")"
}

// Literal rejects values that would change the shape of a where clause.
func Literal(value string) error {
	if strings.ContainsAny(value, reserved) {
		return apperrors.Invalidf("filter value %q contains one of %q", value, reserved)
	}
	return nil
}

// Blank renders (field,blank), which matches null and empty values.
func Blank(field string) string {
	return "(" + field + ",blank)"
}

// Or joins conditions with ~or, wrapping the group in parentheses when it has
// more than one member.
func Or(conds ...string) string {
	return join("~or", conds)
}

// And joins conditions with ~and.
func And(conds ...string) string {
	return join("~and", conds)
}

func join(op string, conds []string) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if c != "" {
			parts = append(parts, c)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, op) + ")"
	}
}
