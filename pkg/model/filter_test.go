package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterOp_IsValid(t *testing.T) {
	for _, op := range []FilterOp{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn} {
		assert.True(t, op.IsValid(), op)
	}
	assert.False(t, FilterOp("contains").IsValid())
	assert.False(t, FilterOp("").IsValid())
}

func TestFilters_Validate(t *testing.T) {
	assert.True(t, Filters{Eq("labId", "lab-1"), {Field: "quantity", Op: OpLte, Value: 3}}.Validate())
	assert.False(t, Filters{{Field: "", Op: OpEq, Value: 1}}.Validate())
	assert.False(t, Filters{{Field: "x", Op: "~", Value: 1}}.Validate())
	assert.True(t, Filters(nil).Validate())
}
