package storage

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	usernameMinLength  = 5
	usernameMaxLength  = 16
	passwordMinLength  = 6
	firstNameMinLength = 3
	firstNameMaxLength = 30
	lastNameMinLength  = 3
	lastNameMaxLength  = 50
	phoneMinDigits     = 10
	phoneMaxDigits     = 13
	noteMaxLength      = 250
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateAccountParams(params *CreateAccountParams) error {
	params.Username = strings.TrimSpace(params.Username)
	params.Email = normalizeEmail(params.Email)

	if length := utf8.RuneCountInString(params.Username); length < usernameMinLength || length > usernameMaxLength {
		return fmt.Errorf("username must be between %d and %d characters", usernameMinLength, usernameMaxLength)
	}
	if err := validateEmail(params.Email); err != nil {
		return err
	}
	if len(params.Password) < passwordMinLength {
		return fmt.Errorf("password must be at least %d characters", passwordMinLength)
	}
	return nil
}

func validateContactParams(params *ContactParams) error {
	params.FirstName = strings.TrimSpace(params.FirstName)
	params.LastName = strings.TrimSpace(params.LastName)
	params.Email = normalizeEmail(params.Email)
	params.Phone = strings.TrimSpace(params.Phone)
	params.Note = strings.TrimSpace(params.Note)

	if length := utf8.RuneCountInString(params.FirstName); length < firstNameMinLength || length > firstNameMaxLength {
		return fmt.Errorf("first name must be between %d and %d characters", firstNameMinLength, firstNameMaxLength)
	}
	if length := utf8.RuneCountInString(params.LastName); length < lastNameMinLength || length > lastNameMaxLength {
		return fmt.Errorf("last name must be between %d and %d characters", lastNameMinLength, lastNameMaxLength)
	}
	if err := validateEmail(params.Email); err != nil {
		return err
	}
	if err := validatePhone(params.Phone); err != nil {
		return err
	}
	if params.Birthday.IsZero() {
		return fmt.Errorf("birthday is required")
	}
	if utf8.RuneCountInString(params.Note) > noteMaxLength {
		return fmt.Errorf("note must not exceed %d characters", noteMaxLength)
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

func validatePhone(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone is required")
	}
	digits := 0
	for i, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		default:
			return fmt.Errorf("phone may only contain digits and a leading +")
		}
	}
	if digits < phoneMinDigits || digits > phoneMaxDigits {
		return fmt.Errorf("phone must contain between %d and %d digits", phoneMinDigits, phoneMaxDigits)
	}
	return nil
}
