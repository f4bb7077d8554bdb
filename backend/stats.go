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
	"math"
)

// PlayerStats is the raw counting line for a single player.
type PlayerStats struct {
	FGM        int `json:"fgm"`
	FGA        int `json:"fga"`
	TPM        int `json:"tpm"`
	TPA        int `json:"tpa"`
	FTM        int `json:"ftm"`
	FTA        int `json:"fta"`
	OREB       int `json:"oreb"`
	DREB       int `json:"dreb"`
	AST        int `json:"ast"`
	STL        int `json:"stl"`
	BLK        int `json:"blk"`
	TOV        int `json:"to"`
	PF         int `json:"pf"`
	PaintTouch int `json:"paintTouch"`
}

// Points computes a player's score contribution. Made threes are counted
// inside FGM, so two-point makes are FGM-TPM.
func (s PlayerStats) Points() int {
	return (s.FGM-s.TPM)*2 + s.TPM*3 + s.FTM
}

// Rebounds is OREB+DREB.
func (s PlayerStats) Rebounds() int {
	return s.OREB + s.DREB
}

// ShootingPercentages holds a player's shooting splits. All values are
// formatted with one decimal place; a zero denominator yields "0.0".
type ShootingPercentages struct {
	FGP string `json:"fgp"`
	TPP string `json:"tpp"`
	FTP string `json:"ftp"`
	EFG string `json:"efg"`
	TS  string `json:"ts"`
}

// TeamTotals is the sum of a roster's stat lines.
type TeamTotals struct {
	FGM        int `json:"fgm"`
	FGA        int `json:"fga"`
	TPM        int `json:"tpm"`
	TPA        int `json:"tpa"`
	FTM        int `json:"ftm"`
	FTA        int `json:"fta"`
	OREB       int `json:"oreb"`
	DREB       int `json:"dreb"`
	REB        int `json:"reb"`
	AST        int `json:"ast"`
	STL        int `json:"stl"`
	BLK        int `json:"blk"`
	TOV        int `json:"to"`
	PF         int `json:"pf"`
	PaintTouch int `json:"paintTouch"`
	PTS        int `json:"pts"`
}

// TeamPercentages holds team-level shooting splits.
type TeamPercentages struct {
	FG  string `json:"fg"`
	TP  string `json:"tp"`
	FT  string `json:"ft"`
	EFG string `json:"efg"`
}

// TeamStats bundles totals and the derived percentages.
type TeamStats struct {
	Totals      TeamTotals      `json:"totals"`
	Percentages TeamPercentages `json:"percentages"`
}

// AdvancedStats are the pace-adjusted team metrics.
type AdvancedStats struct {
	ORtg     string `json:"ortg"`
	DRtg     string `json:"drtg"`
	NetRtg   string `json:"netrtg"`
	AstRatio string `json:"astRatio"`
	TovRatio string `json:"tovRatio"`
	OrebPct  string `json:"orebPct"`
	DrebPct  string `json:"drebPct"`
	RebPct   string `json:"rebPct"`
	PaintPct string `json:"paintPct"`
}

// PlayerAdvancedStats are the per-player derived metrics.
type PlayerAdvancedStats struct {
	Usg        string `json:"usg"`
	Efficiency string `json:"efficiency"`
	AstToRatio string `json:"astToRatio"`
}

// ratePct formats num/den as a percentage with one decimal place. A
// non-positive denominator yields "0.0" instead of NaN or Inf.
func ratePct(num, den float64) string {
	if den > 0 {
		return fmt.Sprintf("%.1f", num/den*100)
	}
	return "0.0"
}

func fixed1(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CalculateShootingPercentages derives a player's shooting splits.
func CalculateShootingPercentages(s PlayerStats) ShootingPercentages {
	return ShootingPercentages{
		FGP: ratePct(float64(s.FGM), float64(s.FGA)),
		TPP: ratePct(float64(s.TPM), float64(s.TPA)),
		FTP: ratePct(float64(s.FTM), float64(s.FTA)),
		EFG: ratePct(float64(s.FGM)+0.5*float64(s.TPM), float64(s.FGA)),
		TS:  ratePct(float64(s.Points()), 2*(float64(s.FGA)+0.44*float64(s.FTA))),
	}
}

// CalculateTeamStats sums the roster's stat lines and derives the team
// shooting percentages.
func CalculateTeamStats(players []Player) TeamStats {
	var t TeamTotals
	for _, p := range players {
		s := p.PlayerStats
		t.FGM += s.FGM
		t.FGA += s.FGA
		t.TPM += s.TPM
		t.TPA += s.TPA
		t.FTM += s.FTM
		t.FTA += s.FTA
		t.OREB += s.OREB
		t.DREB += s.DREB
		t.REB += s.OREB + s.DREB
		t.AST += s.AST
		t.STL += s.STL
		t.BLK += s.BLK
		t.TOV += s.TOV
		t.PF += s.PF
		t.PaintTouch += s.PaintTouch
		t.PTS += s.Points()
	}
	return TeamStats{
		Totals: t,
		Percentages: TeamPercentages{
			FG:  ratePct(float64(t.FGM), float64(t.FGA)),
			TP:  ratePct(float64(t.TPM), float64(t.TPA)),
			FT:  ratePct(float64(t.FTM), float64(t.FTA)),
			EFG: ratePct(float64(t.FGM)+0.5*float64(t.TPM), float64(t.FGA)),
		},
	}
}

// EstimatePossessions estimates the number of possessions a team used:
// FGA - ORB + TO + 0.44*FTA.
func EstimatePossessions(ts TeamStats) float64 {
	t := ts.Totals
	return float64(t.FGA) - float64(t.OREB) + float64(t.TOV) + 0.44*float64(t.FTA)
}

// CalculateAdvancedStats derives the pace-adjusted metrics for a team
// against its opponent, using the given possession count.
func CalculateAdvancedStats(team, opponent TeamStats, possessions float64) AdvancedStats {
	// Net rating is the difference of the rounded ratings so it always
	// matches the displayed ORtg and DRtg.
	var ortg, drtg float64
	if possessions > 0 {
		ortg = round1(float64(team.Totals.PTS) / possessions * 100)
		drtg = round1(float64(opponent.Totals.PTS) / possessions * 100)
	}

	orebOpportunities := team.Totals.OREB + opponent.Totals.DREB
	drebOpportunities := team.Totals.DREB + opponent.Totals.OREB
	totalRebounds := team.Totals.REB + opponent.Totals.REB

	return AdvancedStats{
		ORtg:     ratePct(float64(team.Totals.PTS), possessions),
		DRtg:     ratePct(float64(opponent.Totals.PTS), possessions),
		NetRtg:   fixed1(ortg - drtg),
		AstRatio: ratePct(float64(team.Totals.AST), float64(team.Totals.FGM)),
		TovRatio: ratePct(float64(team.Totals.TOV), possessions),
		OrebPct:  ratePct(float64(team.Totals.OREB), float64(orebOpportunities)),
		DrebPct:  ratePct(float64(team.Totals.DREB), float64(drebOpportunities)),
		RebPct:   ratePct(float64(team.Totals.REB), float64(totalRebounds)),
		PaintPct: ratePct(float64(team.Totals.PaintTouch), float64(team.Totals.FGA)),
	}
}

// CalculatePlayerAdvancedStats derives usage, a simplified efficiency
// rating, and the assist-to-turnover ratio for one player.
func CalculatePlayerAdvancedStats(s PlayerStats, team TeamStats, possessions float64) PlayerAdvancedStats {
	usageDenom := float64(team.Totals.FGA) + 0.44*float64(team.Totals.FTA) + float64(team.Totals.TOV)
	usage := ratePct(float64(s.FGA)+0.44*float64(s.FTA)+float64(s.TOV), usageDenom)

	raw := float64(s.Points()+s.OREB+s.DREB+s.AST+s.STL+s.BLK-s.TOV-(s.FGA-s.FGM)) - float64(s.FTA-s.FTM)
	efficiency := ratePct(raw, possessions)

	var astTo string
	switch {
	case s.TOV > 0:
		astTo = fixed1(float64(s.AST) / float64(s.TOV))
	case s.AST > 0:
		astTo = fixed1(float64(s.AST))
	default:
		astTo = "0.0"
	}

	return PlayerAdvancedStats{
		Usg:        usage,
		Efficiency: efficiency,
		AstToRatio: astTo,
	}
}
