package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// v is the package-level singleton validator. Custom tags are registered in
// init() before the first call to Struct.
var v = validator.New()

func init() {
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return Username(fl.Field().String()) == nil
	})
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Username checks the custom profile URL rules: 3-30 characters of
// lowercase letters, digits and hyphens, not starting or ending with a hyphen.
func Username(s string) error {
	if len(s) < 3 || len(s) > 30 {
		return errors.New("username must be between 3 and 30 characters")
	}
	if !usernamePattern.MatchString(s) {
		if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
			return errors.New("username cannot start or end with a hyphen")
		}
		return errors.New("username can only contain letters, numbers, and hyphens")
	}
	return nil
}
