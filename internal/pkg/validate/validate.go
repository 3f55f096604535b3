package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Identifier checks that an identifier is an email address or an E.164 phone
// number. These are the only two shapes the delivery collaborators can route.
func Identifier(identifier string) error {
	if err := v.Var(identifier, "required,email|e164"); err != nil {
		return fmt.Errorf("identifier must be an email address or E.164 phone number")
	}
	return nil
}

// NumericCode checks that a presented code is exactly 6 ASCII digits.
func NumericCode(code string) error {
	if err := v.Var(code, "required,len=6,number"); err != nil {
		return fmt.Errorf("code must be exactly 6 digits")
	}
	return nil
}
