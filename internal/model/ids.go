package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrValidation is wrapped by every input validation error so transports can
// map the whole class to one response code.
var ErrValidation = errors.New("validation failed")

var (
	ErrInvalidTenantID = fmt.Errorf("%w: tenantId must match [A-Za-z0-9_-]{1,64}", ErrValidation)
	ErrInvalidThreadID = fmt.Errorf("%w: threadId must match [A-Za-z0-9_-]{1,64}", ErrValidation)
	ErrMissingPhone    = fmt.Errorf("%w: phone is required", ErrValidation)
	ErrInvalidPhone    = fmt.Errorf("%w: phone must contain 1 to 57 digits", ErrValidation)
	ErrMissingBody     = fmt.Errorf("%w: body is required", ErrValidation)
)

const ThreadIDPrefix = "thread_"

// MaxPhoneDigits keeps derived thread ids inside the id grammar.
const MaxPhoneDigits = 64 - len(ThreadIDPrefix)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Digits strips everything but 0-9.
func Digits(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ThreadIDForPhone derives the deterministic thread id of a counterparty.
func ThreadIDForPhone(phone string) (string, error) {
	d := Digits(phone)
	if !validDigits(d) {
		return "", ErrInvalidPhone
	}
	return ThreadIDPrefix + d, nil
}

func validDigits(d string) bool {
	return d != "" && len(d) <= MaxPhoneDigits
}
