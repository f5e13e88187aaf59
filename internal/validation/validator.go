package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

// FieldIssue names one rejected input field using its JSON name.
type FieldIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

var flagKeyPattern = regexp.MustCompile(`^[a-z_]+$`)

var (
	once     sync.Once
	instance *validator.Validate
)

// get returns the shared validator. Building one is expensive (reflection caches),
// so it is created once and reused; *validator.Validate is safe for concurrent use.
func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})

		mustRegister(v, "flagkey", func(fl validator.FieldLevel) bool {
			return flagKeyPattern.MatchString(fl.Field().String())
		})
		mustRegister(v, "percent2", func(fl validator.FieldLevel) bool {
			_, err := ruleengine.NewPercentage(fl.Field().Float())
			return err == nil
		})
		mustRegister(v, "tier", func(fl validator.FieldLevel) bool {
			return ruleengine.Tier(fl.Field().String()).Valid()
		})
		mustRegister(v, "strategy", func(fl validator.FieldLevel) bool {
			return ruleengine.Strategy(fl.Field().String()).Valid()
		})

		instance = v
	})
	return instance
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: cannot register %q: %v", tag, err))
	}
}

// Struct validates s against its `validate` tags and returns one issue per rejected
// field, in declaration order. A nil result means s is valid.
func Struct(s any) []FieldIssue {
	err := get().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: programmer passed a non-struct.
		panic(fmt.Sprintf("validation: %v", err))
	}

	issues := make([]FieldIssue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, FieldIssue{Field: fe.Field(), Issue: describe(fe)})
	}
	return issues
}

func describe(fe validator.FieldError) string {
	isList := fe.Kind() == reflect.Slice

	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if isList {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if isList {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "flagkey":
		return "must contain only lowercase letters and underscores"
	case "percent2":
		return "must be between 0 and 100 with at most two decimal places"
	case "tier":
		return "must be one of STARTER, GROWTH, ENTERPRISE"
	case "strategy":
		return "must be one of ALL, PERCENTAGE, MERCHANT_IDS, MERCHANT_TIERS, COUNTRIES"
	case "iso3166_1_alpha2":
		return "must be an ISO 3166-1 alpha-2 country code"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
