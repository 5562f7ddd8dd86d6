package query

import "strings"

// Condition represents a WHERE clause condition.
// Implementations render their SQL fragment and register every value through
// bind, which returns the placeholder to embed. Values are never interpolated.
type Condition interface {
	SQL(bind func(value interface{}) string) string
}

// eqCondition implements equality comparison (field = value).
type eqCondition struct {
	field string
	value interface{}
}

// Eq creates a WHERE condition for equality comparison.
// Example: Eq("status", "Bounce") generates "status = $1"
func Eq(field string, value interface{}) Condition {
	return &eqCondition{field: field, value: value}
}

func (c *eqCondition) SQL(bind func(interface{}) string) string {
	return c.field + " = " + bind(c.value)
}

// inCondition implements set membership (field IN (...)).
type inCondition struct {
	field  string
	values []interface{}
}

// In creates a membership condition. An empty set matches no rows.
// Example: In("message_id", "a", "b") generates "message_id IN ($1, $2)"
func In(field string, values ...interface{}) Condition {
	return &inCondition{field: field, values: values}
}

func (c *inCondition) SQL(bind func(interface{}) string) string {
	if len(c.values) == 0 {
		return "1 = 0"
	}
	ph := make([]string, len(c.values))
	for i, v := range c.values {
		ph[i] = bind(v)
	}
	return c.field + " IN (" + strings.Join(ph, ", ") + ")"
}

// rangeCondition implements a one-sided range bound.
type rangeCondition struct {
	field string
	op    string
	value interface{}
}

// Gte creates an inclusive lower bound (field >= value).
func Gte(field string, value interface{}) Condition {
	return &rangeCondition{field: field, op: ">=", value: value}
}

// Lt creates an exclusive upper bound (field < value).
func Lt(field string, value interface{}) Condition {
	return &rangeCondition{field: field, op: "<", value: value}
}

func (c *rangeCondition) SQL(bind func(interface{}) string) string {
	return c.field + " " + c.op + " " + bind(c.value)
}

// containsFoldCondition matches a case-insensitive substring in any of fields.
type containsFoldCondition struct {
	fields []string
	value  string
}

// ContainsFold creates an OR-combined, case-insensitive substring match across
// fields. LIKE wildcards in value are escaped so they match literally.
// Example: ContainsFold("ann", "recipient", "subject") generates
// "(LOWER(recipient) LIKE $1 ESCAPE '\' OR LOWER(subject) LIKE $2 ESCAPE '\')"
func ContainsFold(value string, fields ...string) Condition {
	return &containsFoldCondition{fields: fields, value: value}
}

func (c *containsFoldCondition) SQL(bind func(interface{}) string) string {
	pattern := "%" + EscapeLike(strings.ToLower(c.value)) + "%"
	parts := make([]string, 0, len(c.fields))
	for _, f := range c.fields {
		parts = append(parts, "LOWER("+f+") LIKE "+bind(pattern)+" ESCAPE '\\'")
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters using backslash as the escape
// character.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
