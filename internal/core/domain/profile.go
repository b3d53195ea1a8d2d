package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var phonePattern = regexp.MustCompile(`^\+?\d{10,15}$`)

// MinBirthDate is the earliest accepted birth date.
var MinBirthDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ValidPhone reports whether s is 10 to 15 digits with an optional leading +.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// Profile holds per-user display attributes, keyed 1:1 by user id.
type Profile struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	FullName  string     `json:"full_name"`
	AvatarURL *string    `json:"avatar_url"`
	Phone     *string    `json:"phone"`
	BirthDate *time.Time `json:"birth_date"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Snapshot returns the cached view of the profile.
func (p *Profile) Snapshot() *ProfileSnapshot {
	if p == nil {
		return nil
	}
	return &ProfileSnapshot{ID: p.ID, FullName: p.FullName, AvatarURL: p.AvatarURL}
}

// ProfileUpdate is a partial update: nil fields are left untouched. The
// Clear flags remove an optional field; full_name cannot be cleared.
type ProfileUpdate struct {
	FullName  *string
	AvatarURL *string
	Phone     *string
	BirthDate *time.Time

	ClearAvatarURL bool
	ClearPhone     bool
	ClearBirthDate bool
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

// Fields names the columns the update touches, set or cleared.
func (u ProfileUpdate) Fields() []string {
	var fields []string
	if u.FullName != nil {
		fields = append(fields, "full_name")
	}
	if u.AvatarURL != nil || u.ClearAvatarURL {
		fields = append(fields, "avatar_url")
	}
	if u.Phone != nil || u.ClearPhone {
		fields = append(fields, "phone")
	}
	if u.BirthDate != nil || u.ClearBirthDate {
		fields = append(fields, "birth_date")
	}
	return fields
}

// Validate checks field constraints against now.
func (u ProfileUpdate) Validate(now time.Time) error {
	if (u.AvatarURL != nil && u.ClearAvatarURL) || (u.Phone != nil && u.ClearPhone) || (u.BirthDate != nil && u.ClearBirthDate) {
		return fmt.Errorf("%w: a field cannot be both set and cleared", ErrInvalidInput)
	}
	if u.FullName != nil {
		n := strings.TrimSpace(*u.FullName)
		if n == "" || len(n) > 255 {
			return fmt.Errorf("%w: full_name must be 1-255 characters", ErrInvalidInput)
		}
	}
	if u.Phone != nil && !ValidPhone(*u.Phone) {
		return fmt.Errorf("%w: phone must be 10-15 digits with optional leading +", ErrInvalidInput)
	}
	if u.BirthDate != nil {
		if u.BirthDate.Before(MinBirthDate) {
			return fmt.Errorf("%w: birth_date must be on or after 1900-01-01", ErrInvalidInput)
		}
		if u.BirthDate.After(now) {
			return fmt.Errorf("%w: birth_date cannot be in the future", ErrInvalidInput)
		}
	}
	return nil
}

// Apply copies the supplied fields onto p and drops the cleared ones.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.FullName != nil {
		p.FullName = strings.TrimSpace(*u.FullName)
	}
	switch {
	case u.ClearAvatarURL:
		p.AvatarURL = nil
	case u.AvatarURL != nil:
		p.AvatarURL = u.AvatarURL
	}
	switch {
	case u.ClearPhone:
		p.Phone = nil
	case u.Phone != nil:
		p.Phone = u.Phone
	}
	switch {
	case u.ClearBirthDate:
		p.BirthDate = nil
	case u.BirthDate != nil:
		p.BirthDate = u.BirthDate
	}
}

// DefaultFullName picks a display name for a freshly provisioned user:
// the provided name, else the local part of the email, else "User".
func DefaultFullName(fullName, email string) string {
	if n := strings.TrimSpace(fullName); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return "User"
}
