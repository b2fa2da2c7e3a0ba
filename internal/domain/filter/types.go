// Package filter defines composable query criteria for list operations.
// Criteria compose as a conjunction: every item must hold.
package filter

// ComparisonType enumerates the supported comparators.
type ComparisonType string

const (
	Equal          ComparisonType = "eq"
	NotEqual       ComparisonType = "neq"
	Less           ComparisonType = "lt"
	LessOrEqual    ComparisonType = "lte"
	Greater        ComparisonType = "gt"
	GreaterOrEqual ComparisonType = "gte"
	InList         ComparisonType = "in"
	NotInList      ComparisonType = "nin"
	Contains       ComparisonType = "contains"  // ILIKE %val%
	NotContains    ComparisonType = "ncontains" // NOT ILIKE %val%
	IsNull         ComparisonType = "null"
	IsNotNull      ComparisonType = "not_null"
)

// Item is one field-comparator-value triple.
type Item struct {
	Field    string         `json:"field"` // storage name (snake_case)
	Operator ComparisonType `json:"operator"`
	Value    any            `json:"value"`
}

// Sort is one entry of an ordered sort specification.
// Ties are always broken by id ascending, appended by the repository,
// so pagination stays deterministic.
type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}
