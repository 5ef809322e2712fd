package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgeAt(t *testing.T) {
	tests := []struct {
		name      string
		birthDate string
		now       time.Time
		wantAge   int
		wantOK    bool
	}{
		{"day before birthday", "2000-06-15", time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC), 23, true},
		{"on birthday", "2000-06-15", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 24, true},
		{"after birthday", "2000-06-15", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), 24, true},
		{"earlier month", "2000-06-15", time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), 23, true},
		{"new year birthday", "1990-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 34, true},
		{"unparsable", "15.06.2000", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 0, false},
		{"empty", "", time.Now(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			age, ok := AgeAt(tt.birthDate, tt.now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAge, age)
		})
	}
}

func TestPublicOmitsCredential(t *testing.T) {
	u := &User{ID: 7, Phone: "+70000000001", Name: "A", BirthDate: "1990-01-01", PasswordHash: "secret"}
	pub := u.Public()
	assert.Equal(t, PublicUser{ID: 7, Name: "A", Phone: "+70000000001", BirthDate: "1990-01-01"}, pub)
}

func TestLookupPlan(t *testing.T) {
	p, ok := LookupPlan("premium")
	assert.True(t, ok)
	assert.Equal(t, "799", p.Price)

	_, ok = LookupPlan("gold")
	assert.False(t, ok)
}

func TestLocaleOrDefault(t *testing.T) {
	assert.Equal(t, LocaleEN, LocaleEN.OrDefault())
	assert.Equal(t, LocaleRU, Locale("").OrDefault())
	assert.Equal(t, LocaleRU, Locale("de").OrDefault())
	assert.False(t, Locale("de").Valid())
}
