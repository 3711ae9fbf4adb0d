package model

import "time"

// Student is a child enrolled (or to be enrolled) by a parent.  The
// pair (UserID, lower(FirstName), lower(LastName)) identifies a
// student for the webhook reconciler, which reuses an existing record
// instead of creating duplicates across repeated checkouts.
type Student struct {
	ID        uint64    `json:"id"`         // students.id
	UserID    uint64    `json:"user_id"`    // students.user_id
	FirstName string    `json:"first_name"` // students.first_name
	LastName  string    `json:"last_name"`  // students.last_name
	Notes     string    `json:"notes"`      // students.notes
	CreatedAt time.Time `json:"created_at"` // students.created_at
	UpdatedAt time.Time `json:"updated_at"` // students.updated_at
}

// FullName joins first and last name with a single space.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}
