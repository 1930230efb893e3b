package validation

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Solana addresses are base58-encoded 32-byte keys, 32-44 characters.
var solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// RegisterBindingValidators installs custom binding-tag validators on gin's
// validator engine. Called once at startup.
func RegisterBindingValidators() error {
	engine, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return engine.RegisterValidation("solana_address", func(fl validator.FieldLevel) bool {
		return solanaAddressPattern.MatchString(fl.Field().String())
	})
}
