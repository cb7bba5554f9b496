package testutils

import (
	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-bomcheck/infrastructure/catalog"
)

// NewTestValidator creates a validator with the custom tags used by the
// configuration structs, so tests can validate fragments such as a single
// catalog.ProviderConfig in isolation.
func NewTestValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("providertype", func(fl validator.FieldLevel) bool {
		_, ok := catalog.GetProviderFactory(fl.Field().String())
		return ok
	})
	return v
}
