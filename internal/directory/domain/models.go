package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is the closed set of access levels a user can hold. Promotion
// between roles is one-way: a member that recruits a completed guest
// becomes an ambassador and never drops back.
type Role string

const (
	RoleMember     Role = "member"
	RoleAmbassador Role = "ambassador"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAmbassador, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// AtLeast reports whether r grants the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return r.rank() >= other.rank()
}

// Scope describes how much of the directory a role may see in reports.
type Scope int

const (
	// ScopeNone denies report access entirely.
	ScopeNone Scope = iota
	// ScopeNetwork restricts reports to the actor and its descendants.
	ScopeNetwork
	// ScopeAll covers the whole directory.
	ScopeAll
)

// ScopeFor resolves a role to its reporting scope.
func ScopeFor(role Role) Scope {
	switch role {
	case RoleSuperadmin, RoleAdmin:
		return ScopeAll
	case RoleAmbassador:
		return ScopeNetwork
	}
	return ScopeNone
}

func (r Role) rank() int {
	switch r {
	case RoleSuperadmin:
		return 4
	case RoleAdmin:
		return 3
	case RoleAmbassador:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// BirthdateLayout is the day-first layout registrations arrive in.
const BirthdateLayout = "02/01/2006"

type User struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"not null;default:''" json:"name"`
	Phone            string       `gorm:"not null;uniqueIndex:idx_users_phone" json:"phone"`
	JID              string       `gorm:"column:jid;not null;default:''" json:"jid"`
	Code             string       `gorm:"not null;uniqueIndex:idx_users_code" json:"code"`
	InvitationCode   *string      `gorm:"index:idx_users_invitation_code" json:"invitation_code,omitempty"`
	Email            string       `gorm:"not null;default:''" json:"email"`
	Role             Role         `gorm:"not null;default:'member';index:idx_users_role" json:"role"`
	PasswordHash     string       `gorm:"not null;default:''" json:"-"`
	City             string       `gorm:"not null;default:''" json:"city"`
	Neighborhood     string       `gorm:"not null;default:''" json:"neighborhood"`
	Gender           string       `gorm:"not null;default:''" json:"gender"`
	Birthdate        string       `gorm:"not null;default:''" json:"birthdate"`
	PrimaryConcern   string       `gorm:"not null;default:''" json:"primary_concern"`
	SecondaryConcern string       `gorm:"not null;default:''" json:"secondary_concern"`
	FilledDOB        bool         `gorm:"column:filled_dob;not null;default:false" json:"filled_dob"`
	FilledEmail      bool         `gorm:"column:filled_email;not null;default:false" json:"filled_email"`

	// TotalNetworkCount is the cached transitive network size. It is
	// refreshed by the recompute sweep, not maintained inline on writes.
	TotalNetworkCount int64 `gorm:"not null;default:0" json:"total_network_count"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Completed reports whether the user finished the questionnaire. The
// birthdate answer is the last step of the flow, so its flag is the
// completion marker.
func (u *User) Completed() bool {
	return u.FilledDOB
}

// Age returns the user's age in whole years at ref, or false when the
// stored birthdate cannot be parsed.
func (u *User) Age(ref time.Time) (int, bool) {
	born, err := time.Parse(BirthdateLayout, u.Birthdate)
	if err != nil {
		return 0, false
	}
	age := ref.Year() - born.Year()
	if ref.YearDay() < born.YearDay() {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}
