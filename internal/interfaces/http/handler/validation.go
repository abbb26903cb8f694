package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/omnihub/backend/internal/domain/integration"
)

// RegisterValidations installs domain validations on gin's binding engine.
// Safe to call more than once; re-registering a tag replaces it.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return integration.Platform(fl.Field().String()).IsValid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("operation", func(fl validator.FieldLevel) bool {
		return integration.Operation(fl.Field().String()).IsValid()
	})
}
