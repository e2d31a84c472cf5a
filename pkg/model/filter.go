package model

// FilterOp defines the supported filter operators.
type FilterOp string

const (
	OpEq  FilterOp = "==" // Equal
	OpNe  FilterOp = "!=" // Not equal
	OpGt  FilterOp = ">"  // Greater than
	OpGte FilterOp = ">=" // Greater than or equal
	OpLt  FilterOp = "<"  // Less than
	OpLte FilterOp = "<=" // Less than or equal
	OpIn  FilterOp = "in" // Value in array
)

// IsValid checks if the operator is valid.
func (op FilterOp) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return true
	}
	return false
}

// Filters is a slice of Filter. All filters must match (logical AND).
type Filters []Filter

// Filter represents a query filter on a single (possibly dotted) field.
type Filter struct {
	Field string      `json:"field"`
	Op    FilterOp    `json:"op"`
	Value interface{} `json:"value"`
}

// Eq is shorthand for an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Validate checks if the filter is valid.
func (f Filter) Validate() bool {
	if f.Field == "" {
		return false
	}
	return f.Op.IsValid()
}

// Validate checks every filter in the slice.
func (fs Filters) Validate() bool {
	for _, f := range fs {
		if !f.Validate() {
			return false
		}
	}
	return true
}

// SortDirection is the direction of a sort key.
type SortDirection int

const (
	Ascending  SortDirection = 1
	Descending SortDirection = -1
)

// Sort is a single sort key. Keys are applied in order, later keys break ties.
type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Query describes a filtered, sorted and windowed read.
type Query struct {
	Filters Filters
	Sort    []Sort
	Skip    int64
	Limit   int64 // 0 means no limit
}
