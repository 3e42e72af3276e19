package util

import (
	"regexp"
	"strings"

	"horizon-server/src/models"
)

var (
	emailRe      = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	lowerRe      = regexp.MustCompile("[a-z]")
	upperRe      = regexp.MustCompile("[A-Z]")
	digitRe      = regexp.MustCompile("[0-9]")
	specialRe    = regexp.MustCompile(`[^A-Za-z0-9]`)
	postalCodeRe = regexp.MustCompile(`^[0-9]{5}(-[0-9]{4})?$`)
	stateRe      = regexp.MustCompile(`^[A-Z]{2}$`)
	dateRe       = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)
)

func ValidateEmail(email string) bool {
	return emailRe.MatchString(email)
}

func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	return lowerRe.MatchString(password) &&
		upperRe.MatchString(password) &&
		digitRe.MatchString(password) &&
		specialRe.MatchString(password)
}

// ValidateRegistration returns the first invalid field of req.
func ValidateRegistration(req *models.RegisterRequest) error {
	switch {
	case !ValidateEmail(req.Email):
		return &models.ErrValidation{Field: "email", Message: "invalid email"}
	case !ValidatePassword(req.Password):
		return &models.ErrValidation{Field: "password", Message: "must be at least 8 characters with upper, lower, digit and symbol"}
	case strings.TrimSpace(req.FirstName) == "":
		return &models.ErrValidation{Field: "first_name", Message: "required"}
	case strings.TrimSpace(req.LastName) == "":
		return &models.ErrValidation{Field: "last_name", Message: "required"}
	case req.State != "" && !stateRe.MatchString(req.State):
		return &models.ErrValidation{Field: "state", Message: "must be a two letter code"}
	case req.PostalCode != "" && !postalCodeRe.MatchString(req.PostalCode):
		return &models.ErrValidation{Field: "postal_code", Message: "invalid postal code"}
	case req.DateOfBirth != "" && !dateRe.MatchString(req.DateOfBirth):
		return &models.ErrValidation{Field: "date_of_birth", Message: "must be YYYY-MM-DD"}
	}
	return nil
}
