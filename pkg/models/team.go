package models

import (
	"fmt"
	"strings"
	"time"
)

// Gender of a team
type Gender string

const (
	GenderUnknown Gender = ""
	GenderBoys    Gender = "boys"
	GenderGirls   Gender = "girls"
)

// Team is a canonical team record. Teams are created on the first unmatched
// import and deprecated (never deleted) by a merge.
type Team struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	ClubName   string    `json:"club_name" db:"club_name"`
	BirthYear  int       `json:"birth_year" db:"birth_year"` // canonical age group, 0 when unknown
	Gender     Gender    `json:"gender" db:"gender"`
	RegionCode *string   `json:"region_code,omitempty" db:"region_code"`
	League     *string   `json:"league,omitempty" db:"league"`
	Deprecated bool      `json:"deprecated" db:"deprecated"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Region returns the region code or "".
func (t Team) Region() string {
	if t.RegionCode == nil {
		return ""
	}
	return *t.RegionCode
}

// LeagueName returns the league or "".
func (t Team) LeagueName() string {
	if t.League == nil {
		return ""
	}
	return *t.League
}

// Cohort returns the partition the team is compared within.
func (t Team) Cohort() Cohort {
	return Cohort{
		BirthYear: t.BirthYear,
		Gender:    t.Gender,
		Region:    strings.ToLower(t.Region()),
	}
}

// Cohort is the birth year x gender x region partition that bounds duplicate
// search. Zero fields mean "any".
type Cohort struct {
	BirthYear int    `json:"birth_year"`
	Gender    Gender `json:"gender"`
	Region    string `json:"region"`
}

// Key renders the cohort for logs, metrics and lock names.
func (c Cohort) Key() string {
	return fmt.Sprintf("%d|%s|%s", c.BirthYear, c.Gender, c.Region)
}

// Determinable reports whether the cohort narrows the search at all.
func (c Cohort) Determinable() bool {
	return c.BirthYear != 0 || c.Gender != GenderUnknown || c.Region != ""
}

// TeamFilter is a paginated filtered scan over teams. Zero fields do not
// filter. Pages are keyed by team id.
type TeamFilter struct {
	BirthYear         int
	Gender            Gender
	Region            string
	IncludeDeprecated bool
	AfterID           string
	Limit             int
}

// NewTeam is the input for creating a team from an unmatched import.
type NewTeam struct {
	Name       string  `json:"name" validate:"required"`
	ClubName   string  `json:"club_name"`
	BirthYear  int     `json:"birth_year"`
	Gender     Gender  `json:"gender" validate:"omitempty,oneof=boys girls"`
	RegionCode *string `json:"region_code,omitempty"`
	League     *string `json:"league,omitempty"`
}
