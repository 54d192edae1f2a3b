package validator

import (
	"testing"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name string `validate:"required"`
	Kind string `validate:"oneof=a b"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{Name: "x", Kind: "a"}))

	err := ValidateStruct(sample{Kind: "c"})
	assert.True(t, ierr.IsValidation(err))
	assert.Contains(t, err.Error(), "Name")
}
