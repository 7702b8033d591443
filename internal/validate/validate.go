// Package validate checks user input before it reaches the gateway.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/sociallink/internal/errs"
	"github.com/and161185/sociallink/internal/model"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,30}$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	_ = val.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	return val
}

// Struct validates s against its `validate` tags. Failures wrap errs.ErrValidation
// and name the offending fields.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(fields, ", "))
}

// Register validates a sign-up form. A confirmation that differs from the
// password yields errs.ErrPasswordMismatch.
func Register(f model.RegisterForm) error {
	f.Email = strings.TrimSpace(f.Email)
	f.Username = strings.TrimSpace(f.Username)
	if err := Struct(f); err != nil {
		return err
	}
	if f.Password != f.ConfirmPassword {
		return errs.ErrPasswordMismatch
	}
	return nil
}
