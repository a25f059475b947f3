// internal/membership/domain.go
package membership

import (
	"time"

	"librecords/internal/calendar"
	"librecords/internal/validator"
)

// ReaderStatus gates borrowing: blocked readers cannot open loans.
type ReaderStatus string

const (
	ReaderActive  ReaderStatus = "active"
	ReaderBlocked ReaderStatus = "blocked"
)

func (s ReaderStatus) Valid() bool {
	return validator.PermittedValue(s, ReaderActive, ReaderBlocked)
}

// Reader represents a library patron.
type Reader struct {
	ID               int64         `json:"id" db:"id"`
	FullName         string        `json:"full_name" db:"full_name"`
	LibraryCard      string        `json:"library_card" db:"library_card"`
	Email            *string       `json:"email" db:"email"`
	Phone            *string       `json:"phone" db:"phone"`
	Address          *string       `json:"address" db:"address"`
	Status           ReaderStatus  `json:"status" db:"status"`
	RegistrationDate calendar.Date `json:"registration_date" db:"registration_date"`
}

type NewReader struct {
	FullName    string  `json:"full_name"`
	LibraryCard string  `json:"library_card"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
}

// ReaderPatch is a partial update; nil fields are left untouched. The
// library card cannot be changed.
type ReaderPatch struct {
	FullName *string       `json:"full_name"`
	Email    *string       `json:"email"`
	Phone    *string       `json:"phone"`
	Address  *string       `json:"address"`
	Status   *ReaderStatus `json:"status"`
}

func (r NewReader) Validate() error {
	v := validator.New()
	v.Length(r.FullName, 1, 255, "full_name")
	v.Length(r.LibraryCard, 1, 50, "library_card")
	v.OptionalLength(r.Email, 0, 100, "email")
	v.OptionalLength(r.Phone, 0, 20, "phone")
	v.OptionalLength(r.Address, 0, 255, "address")
	return v.Err()
}

func (p ReaderPatch) Validate() error {
	v := validator.New()
	v.OptionalLength(p.FullName, 1, 255, "full_name")
	v.OptionalLength(p.Email, 0, 100, "email")
	v.OptionalLength(p.Phone, 0, 20, "phone")
	v.OptionalLength(p.Address, 0, 255, "address")
	v.Check(p.Status == nil || p.Status.Valid(), "status", "must be active or blocked")
	return v.Err()
}

type Role string

const (
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// Librarian is a staff record. Loans may reference the librarian who
// issued them. The password hash never leaves the service.
type Librarian struct {
	ID           int64     `json:"id" db:"id"`
	FullName     string    `json:"full_name" db:"full_name"`
	Position     *string   `json:"position" db:"position"`
	Login        string    `json:"login" db:"login"`
	PasswordHash string    `json:"-" db:"password_hash"`
	PasswordSalt string    `json:"-" db:"password_salt"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type NewLibrarian struct {
	FullName string  `json:"full_name"`
	Position *string `json:"position"`
	Login    string  `json:"login"`
	Password string  `json:"password"`
	Role     Role    `json:"role"`
}

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

func (l NewLibrarian) Validate() error {
	v := validator.New()
	v.Length(l.FullName, 1, 255, "full_name")
	v.OptionalLength(l.Position, 0, 100, "position")
	v.Length(l.Login, 1, 50, "login")
	v.Length(l.Password, minPasswordLength, maxPasswordLength, "password")
	v.Check(l.Role == "" || validator.PermittedValue(l.Role, RoleLibrarian, RoleAdmin), "role", "must be librarian or admin")
	return v.Err()
}

type PasswordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

func (c PasswordChange) Validate() error {
	v := validator.New()
	v.Length(c.Current, 1, maxPasswordLength, "current_password")
	v.Length(c.New, minPasswordLength, maxPasswordLength, "new_password")
	return v.Err()
}
