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

import "errors"

var ErrUnknownSide = errors.New("unknown team side")

// BoxScorePlayer is one row of a box score: the raw stat line with its
// derived points, percentages, and rebounds.
type BoxScorePlayer struct {
	Player
	Points    int                 `json:"points"`
	FGPercent string              `json:"fgPercent"`
	TPPercent string              `json:"tpPercent"`
	FTPercent string              `json:"ftPercent"`
	Rebounds  int                 `json:"rebounds"`
	Advanced  PlayerAdvancedStats `json:"advanced"`
}

// BoxScore is one team's box score.
type BoxScore struct {
	TeamName string           `json:"teamName"`
	Players  []BoxScorePlayer `json:"players"`
	Totals   TeamTotals       `json:"totals"`
}

// ShotBreakdown is one team's shot detail, counted per court zone.
type ShotBreakdown struct {
	Makes     map[string]int `json:"makes"`
	Misses    map[string]int `json:"misses"`
	Total     int            `json:"total"`
	MakeTotal int            `json:"makeTotal"`
	MissTotal int            `json:"missTotal"`
}

// ShotSummary is the per-team shot detail for the whole game.
type ShotSummary struct {
	Home      ShotBreakdown `json:"home"`
	Away      ShotBreakdown `json:"away"`
	Locations []string      `json:"locations"`
}

// DashboardTeam is one team's section of the dashboard.
type DashboardTeam struct {
	Name      string        `json:"name"`
	Stats     TeamStats     `json:"stats"`
	Advanced  AdvancedStats `json:"advanced"`
	ShotStats ShotBreakdown `json:"shotStats"`
}

// DashboardTeams holds both sides.
type DashboardTeams struct {
	Home DashboardTeam `json:"home"`
	Away DashboardTeam `json:"away"`
}

// DashboardData is the advanced stats view of the current game. The
// possession count used for the ratings is the average of both teams'
// estimates; ActualPossessions counts the possessions actually logged.
type DashboardData struct {
	Teams             DashboardTeams `json:"teams"`
	Possessions       string         `json:"possessions"`
	ActualPossessions int            `json:"actualPossessions"`
	ShotData          ShotSummary    `json:"shotData"`
}

// BoxScore builds the box score for one side of the current game.
func (s *GameSession) BoxScore(side string) (*BoxScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game == nil {
		return nil, ErrNoGame
	}
	var team *GameTeam
	switch side {
	case SideHome:
		team = &s.game.HomeTeam
	case SideAway:
		team = &s.game.AwayTeam
	default:
		return nil, ErrUnknownSide
	}

	teamStats := CalculateTeamStats(team.Players)
	possessions := EstimatePossessions(teamStats)

	rows := make([]BoxScorePlayer, 0, len(team.Players))
	for _, p := range team.Players {
		pct := CalculateShootingPercentages(p.PlayerStats)
		rows = append(rows, BoxScorePlayer{
			Player:    p,
			Points:    p.Points(),
			FGPercent: pct.FGP,
			TPPercent: pct.TPP,
			FTPercent: pct.FTP,
			Rebounds:  p.Rebounds(),
			Advanced:  CalculatePlayerAdvancedStats(p.PlayerStats, teamStats, possessions),
		})
	}
	return &BoxScore{
		TeamName: team.Name,
		Players:  rows,
		Totals:   teamStats.Totals,
	}, nil
}

// DashboardData builds the advanced stats dashboard for the current game.
func (s *GameSession) DashboardData() (*DashboardData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game == nil {
		return nil, ErrNoGame
	}

	homeStats := CalculateTeamStats(s.game.HomeTeam.Players)
	awayStats := CalculateTeamStats(s.game.AwayTeam.Players)

	possessions := (EstimatePossessions(homeStats) + EstimatePossessions(awayStats)) / 2

	shots := summarizeShots(s.game.ShotData)

	return &DashboardData{
		Teams: DashboardTeams{
			Home: DashboardTeam{
				Name:      s.game.HomeTeam.Name,
				Stats:     homeStats,
				Advanced:  CalculateAdvancedStats(homeStats, awayStats, possessions),
				ShotStats: shots.Home,
			},
			Away: DashboardTeam{
				Name:      s.game.AwayTeam.Name,
				Stats:     awayStats,
				Advanced:  CalculateAdvancedStats(awayStats, homeStats, possessions),
				ShotStats: shots.Away,
			},
		},
		Possessions:       fixed1(possessions),
		ActualPossessions: len(s.game.Possessions),
		ShotData:          shots,
	}, nil
}

func newShotBreakdown() ShotBreakdown {
	b := ShotBreakdown{
		Makes:  make(map[string]int, len(shotLocations)),
		Misses: make(map[string]int, len(shotLocations)),
	}
	for _, loc := range shotLocations {
		b.Makes[loc] = 0
		b.Misses[loc] = 0
	}
	return b
}

// summarizeShots counts shot records per team and court zone. Records
// naming an unknown zone are skipped.
func summarizeShots(shots []ShotRecord) ShotSummary {
	sum := ShotSummary{
		Home:      newShotBreakdown(),
		Away:      newShotBreakdown(),
		Locations: shotLocations,
	}
	for _, shot := range shots {
		if !isShotLocation(shot.Location) {
			continue
		}
		var b *ShotBreakdown
		switch shot.Team {
		case SideHome:
			b = &sum.Home
		case SideAway:
			b = &sum.Away
		default:
			continue
		}
		if shot.IsMake {
			b.Makes[shot.Location]++
			b.MakeTotal++
		} else {
			b.Misses[shot.Location]++
			b.MissTotal++
		}
		b.Total++
	}
	return sum
}
