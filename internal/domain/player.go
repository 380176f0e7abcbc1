package domain

import (
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// RosterStatus is a player's place on the roster
type RosterStatus string

const (
	RosterActive  RosterStatus = "active"
	RosterReserve RosterStatus = "reserve"
)

// Role is a permission role a player can hold on a team
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCaptain Role = "captain"
	RoleCoach   Role = "coach"
	RoleParent  Role = "parent"
)

// DeclineReason tags why a player sits in a checked-out/declined set.
// The three values below are written by the availability cascade; any other
// note is a manual decline and is never overwritten automatically.
type DeclineReason = string

const (
	ReasonInjured     DeclineReason = "Injured"
	ReasonSuspended   DeclineReason = "Suspended"
	ReasonUnavailable DeclineReason = "Unavailable"
)

// IsAutoReason reports whether a note was written by the availability cascade
func IsAutoReason(note string) bool {
	return note == ReasonInjured || note == ReasonSuspended || note == ReasonUnavailable
}

// Player represents a member of a team roster
type Player struct {
	ID                 string                    `json:"id"`
	TeamID             string                    `json:"team_id"`
	FirstName          string                    `json:"first_name"`
	LastName           string                    `json:"last_name"`
	Number             string                    `json:"number,omitempty"`
	Position           string                    `json:"position,omitempty"`
	Email              string                    `json:"email,omitempty"`
	Phone              string                    `json:"phone,omitempty"`
	Status             RosterStatus              `json:"status"`
	Roles              []Role                    `json:"roles,omitempty"`
	IsInjured          bool                      `json:"is_injured"`
	IsSuspended        bool                      `json:"is_suspended"`
	StatusEndDate      string                    `json:"status_end_date,omitempty"`
	UnavailableDates   []string                  `json:"unavailable_dates,omitempty"`
	Stats              map[string]float64        `json:"stats,omitempty"`
	GameStats          map[string]map[string]int `json:"game_stats,omitempty"`
	PasswordHash       string                    `json:"password_hash,omitempty"`
	SecurityQuestion   string                    `json:"security_question,omitempty"`
	SecurityAnswerHash string                    `json:"security_answer_hash,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// FullName returns the player's display name
func (p Player) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// HasRole reports whether the player holds the role
func (p Player) HasRole(role Role) bool {
	return slices.Contains(p.Roles, role)
}

// IsAdmin reports whether the player may manage the team
func (p Player) IsAdmin() bool {
	return p.HasRole(RoleAdmin) || p.HasRole(RoleCaptain) || p.HasRole(RoleCoach)
}

// UnavailableOn reports whether the player cannot attend something of the
// given kind on date (YYYY-MM-DD) and, if so, the reason tag to record.
// Injury covers games and events, suspension covers games only, and
// explicit calendar dates cover both. Injury and suspension last until
// StatusEndDate inclusive, or indefinitely when it is empty.
func (p Player) UnavailableOn(date string, kind EntityKind) (DeclineReason, bool) {
	inWindow := p.StatusEndDate == "" || date <= p.StatusEndDate
	if p.IsInjured && inWindow {
		return ReasonInjured, true
	}
	if p.IsSuspended && inWindow && kind == KindGame {
		return ReasonSuspended, true
	}
	if slices.Contains(p.UnavailableDates, date) {
		return ReasonUnavailable, true
	}
	return "", false
}

// AvailabilityChanged reports whether any field feeding UnavailableOn differs
func AvailabilityChanged(before, after Player) bool {
	return before.IsInjured != after.IsInjured ||
		before.IsSuspended != after.IsSuspended ||
		before.StatusEndDate != after.StatusEndDate ||
		!slices.Equal(before.UnavailableDates, after.UnavailableDates)
}

// MatchesIdentity reports whether the player is the person identified by the
// session email or phone. Emails compare case-folded, phones by digits only.
func (p Player) MatchesIdentity(email, phone string) bool {
	if email != "" && p.Email != "" && foldEmail(email) == foldEmail(p.Email) {
		return true
	}
	if d := digits(phone); d != "" && d == digits(p.Phone) {
		return true
	}
	return false
}

func foldEmail(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
