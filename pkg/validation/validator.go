package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the vault's custom tags
// registered:
//
//	pow2    integer is a power of two
//	scheme  string names a cipher scheme
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(yamlName)
		mustRegister("pow2", isPowerOfTwo)
		mustRegister("scheme", isScheme)
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// yamlName reports fields by their config-file name.
func yamlName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func isPowerOfTwo(fl validator.FieldLevel) bool {
	n := fl.Field().Int()
	return n > 0 && n&(n-1) == 0
}

// SchemeNames lists the accepted spellings for the scheme tag.
var SchemeNames = []string{"SIV_CTRMAC", "CTRMAC", "UVF_GCM", "GCM"}

func isScheme(fl validator.FieldLevel) bool {
	s := strings.ToUpper(fl.Field().String())
	for _, name := range SchemeNames {
		if s == name {
			return true
		}
	}
	return false
}

// Struct validates v against its validate tags and reports every
// violation, one per line.
func Struct(v any) error {
	if v == nil {
		return errors.New("nothing to validate")
	}
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]error, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.Join(msgs...)
}

func formatFieldError(e validator.FieldError) error {
	// drop the root type name: "Config.backend.s3.bucket" -> "backend.s3.bucket"
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "min":
		return fmt.Errorf("%s: must be at least %s", field, e.Param())
	case "max":
		return fmt.Errorf("%s: must not exceed %s", field, e.Param())
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s]", field, e.Param())
	case "pow2":
		return fmt.Errorf("%s: %v is not a power of two", field, e.Value())
	case "scheme":
		return fmt.Errorf("%s: unknown scheme %q", field, e.Value())
	case "required_if":
		return fmt.Errorf("%s: field is required when %s", field, e.Param())
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}
