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
	"strings"
)

const csvPlayerHeader = "Number,Player,MIN,PTS,FGM,FGA,FG%,3PM,3PA,3P%,FTM,FTA,FT%,OREB,DREB,REB,AST,STL,BLK,TO,PF,+/-\n"

// ExportCSV renders a game as the spreadsheet export format. Minutes
// and plus-minus are not tracked and export as 0.
func ExportCSV(g *Game) string {
	var b strings.Builder

	b.WriteString("Basketball Stat Tracker Export\n")
	fmt.Fprintf(&b, "Game Date,%s\n", g.Date)
	fmt.Fprintf(&b, "Location,%s\n", g.Location)
	fmt.Fprintf(&b, "Home Team,%s,%d\n", g.HomeTeam.Name, g.HomeTeam.Score)
	fmt.Fprintf(&b, "Away Team,%s,%d\n\n", g.AwayTeam.Name, g.AwayTeam.Score)

	b.WriteString("HOME TEAM PLAYERS\n")
	writePlayerRows(&b, g.HomeTeam.Players)
	b.WriteString("\n")

	b.WriteString("AWAY TEAM PLAYERS\n")
	writePlayerRows(&b, g.AwayTeam.Players)
	b.WriteString("\n")

	home := CalculateTeamStats(g.HomeTeam.Players)
	away := CalculateTeamStats(g.AwayTeam.Players)

	b.WriteString("TEAM COMPARISON\n")
	fmt.Fprintf(&b, "Stat,%s,%s\n", g.HomeTeam.Name, g.AwayTeam.Name)
	fmt.Fprintf(&b, "Points,%d,%d\n", home.Totals.PTS, away.Totals.PTS)
	fmt.Fprintf(&b, "FG%%,%s%%,%s%%\n", home.Percentages.FG, away.Percentages.FG)
	fmt.Fprintf(&b, "3P%%,%s%%,%s%%\n", home.Percentages.TP, away.Percentages.TP)
	fmt.Fprintf(&b, "FT%%,%s%%,%s%%\n", home.Percentages.FT, away.Percentages.FT)
	fmt.Fprintf(&b, "Rebounds,%d,%d\n", home.Totals.REB, away.Totals.REB)
	fmt.Fprintf(&b, "Assists,%d,%d\n", home.Totals.AST, away.Totals.AST)
	fmt.Fprintf(&b, "Steals,%d,%d\n", home.Totals.STL, away.Totals.STL)
	fmt.Fprintf(&b, "Blocks,%d,%d\n", home.Totals.BLK, away.Totals.BLK)
	fmt.Fprintf(&b, "Turnovers,%d,%d\n", home.Totals.TOV, away.Totals.TOV)
	fmt.Fprintf(&b, "Paint Touches,%d,%d\n", home.Totals.PaintTouch, away.Totals.PaintTouch)

	return b.String()
}

func writePlayerRows(b *strings.Builder, players []Player) {
	b.WriteString(csvPlayerHeader)
	for _, p := range players {
		pct := CalculateShootingPercentages(p.PlayerStats)
		fmt.Fprintf(b, "%s,%s,0,%d,", p.Number, p.Name, p.Points())
		fmt.Fprintf(b, "%d,%d,%s%%,", p.FGM, p.FGA, pct.FGP)
		fmt.Fprintf(b, "%d,%d,%s%%,", p.TPM, p.TPA, pct.TPP)
		fmt.Fprintf(b, "%d,%d,%s%%,", p.FTM, p.FTA, pct.FTP)
		fmt.Fprintf(b, "%d,%d,%d,", p.OREB, p.DREB, p.Rebounds())
		fmt.Fprintf(b, "%d,%d,%d,%d,%d,0\n", p.AST, p.STL, p.BLK, p.TOV, p.PF)
	}
}

// ExportCSV renders the in-progress game.
func (s *GameSession) ExportCSV() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return "", ErrNoGame
	}
	return ExportCSV(s.game), nil
}
