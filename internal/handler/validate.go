package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator and reports failures as
// domain.ValidationError keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the tier and billing_cycle rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register validation %q: %v", tag, err))
		}
	}
	mustRegister("tier", func(fl validator.FieldLevel) bool {
		return domain.SubscriptionTier(fl.Field().String()).Valid()
	})
	mustRegister("billing_cycle", func(fl validator.FieldLevel) bool {
		return domain.BillingCycle(fl.Field().String()).Valid()
	})

	return &Validator{validate: v}
}

// Validate checks s against its struct tags.
func (v *Validator) Validate(op string, s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.Internal(err, op, "failed to validate request")
	}

	ve := &domain.ValidationError{Op: op, Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		ve.Fields[fe.Field()] = fieldMessage(fe)
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "gt":
		return fmt.Sprintf("Must be greater than %s", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters long", fe.Param())
	case "tier":
		return "tier must be Basic, Pro, or Enterprise"
	case "billing_cycle":
		return "billingCycle must be monthly or yearly"
	default:
		return fmt.Sprintf("Invalid value (failed on '%s' tag)", fe.Tag())
	}
}
