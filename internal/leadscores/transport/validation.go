package transport

import (
	"concierge_backend/internal/leadscores/alerts"
	"concierge_backend/internal/leadscores/signals"
	"concierge_backend/platform/validator"

	gpvalidator "github.com/go-playground/validator/v10"
)

// RegisterValidations adds the lead score specific tags to val.
func RegisterValidations(val *validator.Validator) error {
	if err := val.RegisterValidation("alertstatus", func(fl gpvalidator.FieldLevel) bool {
		_, ok := alerts.ParseStatus(fl.Field().String())
		return ok
	}); err != nil {
		return err
	}
	return val.RegisterValidation("signalevent", func(fl gpvalidator.FieldLevel) bool {
		return signals.ValidEventType(fl.Field().String())
	})
}
