// Package domain contains core domain types for the Sonnik dream interpretation service.
package domain

import (
	"time"
)

// BirthDateLayout is the accepted birth date format.
const BirthDateLayout = "2006-01-02"

// User represents a registered person.
type User struct {
	ID              int64
	Phone           string
	Name            string
	BirthDate       string
	PasswordHash    string
	SecondaryID     string // messaging bot user id, empty until linked
	SecondaryHandle string
	CreatedAt       time.Time
}

// PublicUser is the reduced user view returned to clients. It never carries the credential.
type PublicUser struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birth_date"`
}

// Public returns the client-facing view of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Phone:     u.Phone,
		BirthDate: u.BirthDate,
	}
}

// HasSecondaryIdentity returns true if a messaging bot account is linked.
func (u *User) HasSecondaryIdentity() bool {
	return u.SecondaryID != ""
}

// AgeAt computes the age in whole years on the given day.
// The birthday counts only once the month/day has been reached in the current year.
// Returns false if the birth date cannot be parsed.
func AgeAt(birthDate string, now time.Time) (int, bool) {
	born, err := time.Parse(BirthDateLayout, birthDate)
	if err != nil {
		return 0, false
	}

	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age, true
}
