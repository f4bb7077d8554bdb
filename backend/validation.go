// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"fmt"
	"net/mail"
	"regexp"
	"time"
)

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// isValidEmail checks if the string is a valid email address.
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

const (
	CurrentProtocolVersion = 1
	CurrentAppVersion      = "0.1.0"

	maxRosterSize = 30
)

// validateStringLen checks if the string length is within the limit.
func validateStringLen(s string, max int, name string) error {
	if len(s) > max {
		return fmt.Errorf("%s too long (max %d chars)", name, max)
	}
	return nil
}

func validatePlayerSetup(p PlayerSetup) error {
	if p.ID != "" && !isValidUUID(p.ID) {
		return fmt.Errorf("invalid player ID: %s", p.ID)
	}
	if p.Name == "" {
		return fmt.Errorf("missing player name")
	}
	if err := validateStringLen(p.Name, 50, "player name"); err != nil {
		return err
	}
	if err := validateStringLen(p.Number, 10, "player number"); err != nil {
		return err
	}
	return nil
}

func validateTeamSetup(t TeamSetup, side string) error {
	if t.Name == "" {
		return fmt.Errorf("missing %s team name", side)
	}
	if err := validateStringLen(t.Name, 50, side+" team name"); err != nil {
		return err
	}
	if err := validateStringLen(t.Abbr, 10, side+" team abbreviation"); err != nil {
		return err
	}
	if len(t.Players) == 0 {
		return fmt.Errorf("missing %s team roster", side)
	}
	if len(t.Players) > maxRosterSize {
		return fmt.Errorf("%s team roster too large (max %d)", side, maxRosterSize)
	}
	for i, p := range t.Players {
		if err := validatePlayerSetup(p); err != nil {
			return fmt.Errorf("invalid %s player at index %d: %w", side, i, err)
		}
	}
	return nil
}

// ValidateGameSetup validates the input for starting a new game.
func ValidateGameSetup(setup GameSetup) error {
	if setup.Date != "" {
		if _, err := time.Parse("2006-01-02", setup.Date); err != nil {
			return fmt.Errorf("invalid date format: %v", err)
		}
	}
	if err := validateStringLen(setup.Location, 100, "location"); err != nil {
		return err
	}
	if err := validateStringLen(setup.Notes, 500, "notes"); err != nil {
		return err
	}
	if err := validateTeamSetup(setup.HomeTeam, SideHome); err != nil {
		return err
	}
	if err := validateTeamSetup(setup.AwayTeam, SideAway); err != nil {
		return err
	}
	return nil
}

// ValidateTeam validates a team before it is saved.
func ValidateTeam(t *Team) error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid team ID format: %s", t.ID)
	}
	if t.Name == "" {
		return fmt.Errorf("missing team name")
	}
	if err := validateStringLen(t.Name, 50, "team name"); err != nil {
		return err
	}
	if err := validateStringLen(t.Abbr, 10, "team abbreviation"); err != nil {
		return err
	}
	if len(t.Roster) > maxRosterSize {
		return fmt.Errorf("roster too large (max %d)", maxRosterSize)
	}
	for i, p := range t.Roster {
		if err := validatePlayerSetup(p); err != nil {
			return fmt.Errorf("invalid roster player at index %d: %w", i, err)
		}
	}
	return nil
}
