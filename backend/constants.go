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

// Schema Versions
const (
	SchemaVersionV1 = 1
)

// Team Sides
const (
	SideHome = "home"
	SideAway = "away"
)

// Game Periods. Games are scored in two halves.
const (
	FirstPeriod = 1
	LastPeriod  = 2
)

// StatType identifies a recordable game event. The set is closed. Events
// not listed here are rejected before any state is mutated.
type StatType string

const (
	StatFGA           StatType = "fga"
	StatFGM           StatType = "fgm"
	Stat3PA           StatType = "3pa"
	Stat3PM           StatType = "3pm"
	StatFTA           StatType = "fta"
	StatFTM           StatType = "ftm"
	StatOREB          StatType = "oreb"
	StatDREB          StatType = "dreb"
	StatAST           StatType = "ast"
	StatSTL           StatType = "stl"
	StatBLK           StatType = "blk"
	StatTOV           StatType = "tov"
	StatPF            StatType = "pf"
	StatPaintTouch    StatType = "paint"
	StatEndPossession StatType = "endPossession"
	StatUndo          StatType = "undo"
)

// statEffect describes what recording a StatType does to a player's
// counters, the team score, and the current possession.
type statEffect struct {
	// Deltas applied to the player stat line.
	FGA, FGM, TPA, TPM, FTA, FTM int
	OREB, DREB                   int
	AST, STL, BLK, TOV, PF       int
	PaintTouch                   int

	// Points added to the team score.
	Points int

	// ClosesPossession marks stat types that end the current possession
	// when recorded.
	ClosesPossession bool

	// Description template for the action log, without the player prefix.
	Description string
}

// statEffects is the single source of truth for stat semantics. Both
// RecordStat and UndoLastAction derive their mutations from this table.
var statEffects = map[StatType]statEffect{
	StatFGA:           {FGA: 1, Description: "field goal attempt"},
	StatFGM:           {FGM: 1, FGA: 1, Points: 2, ClosesPossession: true, Description: "made 2pt field goal"},
	Stat3PA:           {TPA: 1, FGA: 1, Description: "3pt attempt"},
	Stat3PM:           {TPM: 1, TPA: 1, FGM: 1, FGA: 1, Points: 3, ClosesPossession: true, Description: "made 3pt field goal"},
	StatFTA:           {FTA: 1, Description: "free throw attempt"},
	StatFTM:           {FTM: 1, FTA: 1, Points: 1, ClosesPossession: true, Description: "made free throw"},
	StatOREB:          {OREB: 1, Description: "offensive rebound"},
	StatDREB:          {DREB: 1, ClosesPossession: true, Description: "defensive rebound"},
	StatAST:           {AST: 1, Description: "assist"},
	StatSTL:           {STL: 1, ClosesPossession: true, Description: "steal"},
	StatBLK:           {BLK: 1, Description: "block"},
	StatTOV:           {TOV: 1, ClosesPossession: true, Description: "turnover"},
	StatPF:            {PF: 1, Description: "foul"},
	StatPaintTouch:    {PaintTouch: 1, Description: "paint touch"},
	StatEndPossession: {ClosesPossession: true, Description: "End of possession"},
}

// IsValidStatType reports whether t is a member of the closed stat set.
// StatUndo is a meta action handled separately and is not a recordable stat.
func IsValidStatType(t StatType) bool {
	_, ok := statEffects[t]
	return ok
}
