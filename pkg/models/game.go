package models

import "time"

// Game is one historical result from a team's point of view
type Game struct {
	ID           string    `json:"id" db:"id"`
	TeamID       string    `json:"team_id" db:"team_id"`
	OpponentID   string    `json:"opponent_id" db:"opponent_id"`
	PlayedOn     time.Time `json:"played_on" db:"played_on"`
	GoalsFor     int       `json:"goals_for" db:"goals_for"`
	GoalsAgainst int       `json:"goals_against" db:"goals_against"`
}
