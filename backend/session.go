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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoGame        = errors.New("no game in progress")
	ErrGameEnded     = errors.New("game already ended")
	ErrNoSelection   = errors.New("no player selected")
	ErrUnknownStat   = errors.New("unknown stat type")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrInvalidShot   = errors.New("invalid shot record")
)

// SessionState is the lifecycle state of a GameSession.
type SessionState string

const (
	StateNotStarted SessionState = "notStarted"
	StateInProgress SessionState = "inProgress"
	StateEnded      SessionState = "ended"
)

// Player is a roster entry with its live stat line. The stat counters
// marshal flat on the player object.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	PlayerStats
}

// GameTeam is one side of a game.
type GameTeam struct {
	Name    string   `json:"name"`
	Abbr    string   `json:"abbr"`
	Score   int      `json:"score"`
	Players []Player `json:"players"`
}

// LogEntry is one line of the game action log. Timestamps are Unix
// milliseconds. Period-boundary entries carry no team or player.
type LogEntry struct {
	Timestamp    int64    `json:"timestamp"`
	Period       int      `json:"period"`
	Team         string   `json:"team,omitempty"`
	Player       string   `json:"player,omitempty"`
	PlayerNumber string   `json:"playerNumber,omitempty"`
	StatType     StatType `json:"statType,omitempty"`
	Description  string   `json:"description"`
}

// Possession is a closed possession: the run of consecutive actions by
// one team, with its wall-clock duration in milliseconds.
type Possession struct {
	Timestamp int64      `json:"timestamp"`
	Period    int        `json:"period"`
	Team      string     `json:"team"`
	ID        string     `json:"possessionId"`
	Actions   []LogEntry `json:"actions"`
	Duration  int64      `json:"duration"`
}

// ShotRecord is the optional detail attached to a shot attempt: an
// estimated quality from 1 to 10 and a court zone.
type ShotRecord struct {
	Quality   int      `json:"quality"`
	Location  string   `json:"location"`
	Timestamp int64    `json:"timestamp"`
	Player    string   `json:"player"`
	Team      string   `json:"team"`
	ShotType  StatType `json:"shotType"`
	IsMake    bool     `json:"isMake"`
	Is3pt     bool     `json:"is3pt"`
}

// shotLocations are the court zones a ShotRecord may name, in the order
// the dashboard reports them.
var shotLocations = []string{
	"rim", "paint-far",
	"midrange-right", "midrange-center", "midrange-left",
	"3pt-right-corner", "3pt-right-wing", "3pt-top", "3pt-left-wing", "3pt-left-corner",
}

func isShotLocation(loc string) bool {
	for _, l := range shotLocations {
		if l == loc {
			return true
		}
	}
	return false
}

// Game is the full state of a tracked game.
type Game struct {
	ID          string       `json:"id"`
	Schema      int          `json:"schema"`
	Owner       string       `json:"owner,omitempty"`
	Date        string       `json:"date"`
	Location    string       `json:"location"`
	Notes       string       `json:"notes"`
	Period      int          `json:"period"`
	HomeTeam    GameTeam     `json:"homeTeam"`
	AwayTeam    GameTeam     `json:"awayTeam"`
	Possessions []Possession `json:"possessions"`
	ShotData    []ShotRecord `json:"shotData"`
	ActionLog   []LogEntry   `json:"actionLog"`
	EndTime     string       `json:"endTime,omitempty"`
	Completed   bool         `json:"completed"`

	// DeletedAt is the Unix nano timestamp of deletion, for tombstones.
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// GameSetup is the input for starting a new game.
type GameSetup struct {
	Date     string    `json:"date"`
	Location string    `json:"location"`
	Notes    string    `json:"notes"`
	HomeTeam TeamSetup `json:"homeTeam"`
	AwayTeam TeamSetup `json:"awayTeam"`
}

// TeamSetup names a side and its roster.
type TeamSetup struct {
	Name    string        `json:"name"`
	Abbr    string        `json:"abbr"`
	Players []PlayerSetup `json:"players"`
}

// PlayerSetup is one roster entry in a GameSetup.
type PlayerSetup struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// openPossession is the in-flight possession. A zero team means no
// possession is open.
type openPossession struct {
	team    string
	actions []LogEntry
	start   time.Time
}

// GameSession tracks one live game. All methods are safe for concurrent
// use. A new session starts in StateNotStarted; InitGame or Resume moves
// it to StateInProgress and EndGame to StateEnded.
type GameSession struct {
	mu           sync.Mutex
	state        SessionState
	game         *Game
	homeSelected string
	awaySelected string
	possession   openPossession

	// now is replaced in tests.
	now func() time.Time
}

// NewGameSession returns an empty session in StateNotStarted.
func NewGameSession() *GameSession {
	return &GameSession{
		state: StateNotStarted,
		now:   time.Now,
	}
}

// defaultAbbr derives a team abbreviation from its name.
func defaultAbbr(name string) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) > 3 {
		r = r[:3]
	}
	return strings.ToUpper(string(r))
}

func initPlayers(setups []PlayerSetup) []Player {
	players := make([]Player, 0, len(setups))
	for _, s := range setups {
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		players = append(players, Player{
			ID:     id,
			Name:   s.Name,
			Number: s.Number,
		})
	}
	return players
}

// InitGame starts a new game from the given setup and moves the session
// to StateInProgress. Any previous game state is discarded.
func (s *GameSession) InitGame(setup GameSetup) *Game {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := setup.Date
	if date == "" {
		date = s.now().Format("2006-01-02")
	}
	homeAbbr := setup.HomeTeam.Abbr
	if homeAbbr == "" {
		homeAbbr = defaultAbbr(setup.HomeTeam.Name)
	}
	awayAbbr := setup.AwayTeam.Abbr
	if awayAbbr == "" {
		awayAbbr = defaultAbbr(setup.AwayTeam.Name)
	}

	s.game = &Game{
		ID:       uuid.NewString(),
		Schema:   SchemaVersionV1,
		Date:     date,
		Location: setup.Location,
		Notes:    setup.Notes,
		Period:   FirstPeriod,
		HomeTeam: GameTeam{
			Name:    setup.HomeTeam.Name,
			Abbr:    homeAbbr,
			Players: initPlayers(setup.HomeTeam.Players),
		},
		AwayTeam: GameTeam{
			Name:    setup.AwayTeam.Name,
			Abbr:    awayAbbr,
			Players: initPlayers(setup.AwayTeam.Players),
		},
		Possessions: []Possession{},
		ShotData:    []ShotRecord{},
		ActionLog:   []LogEntry{},
	}
	s.state = StateInProgress
	s.homeSelected = ""
	s.awaySelected = ""
	s.possession = openPossession{}
	return s.game
}

// Resume loads a previously saved in-progress game into the session.
// Selections and the open possession are not carried across a resume.
func (s *GameSession) Resume(g *Game) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.Period == 0 {
		g.Period = FirstPeriod
	}
	s.game = g
	s.state = StateInProgress
	s.homeSelected = ""
	s.awaySelected = ""
	s.possession = openPossession{}
}

// State returns the session lifecycle state.
func (s *GameSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current game marshaled as JSON, or nil when no
// game is in progress.
func (s *GameSession) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return nil
	}
	b, err := json.Marshal(s.game)
	if err != nil {
		return nil
	}
	return b
}

// SelectedPlayer returns the side holding the current selection and the
// selected player id, or empty strings when nothing is selected.
func (s *GameSession) SelectedPlayer() (side, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.homeSelected != "" {
		return SideHome, s.homeSelected
	}
	if s.awaySelected != "" {
		return SideAway, s.awaySelected
	}
	return "", ""
}

func findPlayer(players []Player, id string) *Player {
	for i := range players {
		if players[i].ID == id {
			return &players[i]
		}
	}
	return nil
}

// SelectPlayer selects a player on the given side for subsequent stat
// recording. A selection on one side clears the other side. An unknown
// player id clears the side's selection and returns false.
func (s *GameSession) SelectPlayer(side, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game == nil || s.state != StateInProgress {
		return false
	}
	switch side {
	case SideHome:
		if findPlayer(s.game.HomeTeam.Players, playerID) == nil {
			s.homeSelected = ""
			return false
		}
		s.homeSelected = playerID
		s.awaySelected = ""
	case SideAway:
		if findPlayer(s.game.AwayTeam.Players, playerID) == nil {
			s.awaySelected = ""
			return false
		}
		s.awaySelected = playerID
		s.homeSelected = ""
	default:
		return false
	}
	return true
}

// RecordStat applies a stat event to the currently selected player.
// Nothing is mutated when no player is selected or the stat type is not
// recognized. StatUndo reverts the selecting side's most recent action
// instead of recording anything.
func (s *GameSession) RecordStat(statType StatType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game == nil {
		return ErrNoGame
	}
	if s.state != StateInProgress {
		return ErrGameEnded
	}

	var side string
	var player *Player
	var team *GameTeam
	switch {
	case s.homeSelected != "":
		side = SideHome
		team = &s.game.HomeTeam
		player = findPlayer(team.Players, s.homeSelected)
	case s.awaySelected != "":
		side = SideAway
		team = &s.game.AwayTeam
		player = findPlayer(team.Players, s.awaySelected)
	}
	if player == nil {
		return ErrNoSelection
	}

	if statType == StatUndo {
		return s.undoLastAction(side)
	}

	effect, ok := statEffects[statType]
	if !ok {
		return ErrUnknownStat
	}

	applyEffect(&player.PlayerStats, effect, 1)
	team.Score += effect.Points

	entry := LogEntry{
		Timestamp:    s.now().UnixMilli(),
		Period:       s.game.Period,
		Team:         side,
		Player:       player.Name,
		PlayerNumber: player.Number,
		StatType:     statType,
		Description:  describeAction(statType, player),
	}

	// Possession bookkeeping. An action by the other team closes the
	// open possession before starting a new one.
	switch {
	case s.possession.team == "":
		s.possession = openPossession{team: side, actions: []LogEntry{entry}, start: s.now()}
	case s.possession.team == side:
		s.possession.actions = append(s.possession.actions, entry)
	default:
		s.closePossession()
		s.possession = openPossession{team: side, actions: []LogEntry{entry}, start: s.now()}
	}
	if effect.ClosesPossession {
		s.closePossession()
	}

	s.game.ActionLog = append(s.game.ActionLog, entry)
	return nil
}

// applyEffect adds the effect's deltas to a stat line, scaled by sign.
// Sign -1 reverts a previously applied effect.
func applyEffect(stats *PlayerStats, e statEffect, sign int) {
	stats.FGA += sign * e.FGA
	stats.FGM += sign * e.FGM
	stats.TPA += sign * e.TPA
	stats.TPM += sign * e.TPM
	stats.FTA += sign * e.FTA
	stats.FTM += sign * e.FTM
	stats.OREB += sign * e.OREB
	stats.DREB += sign * e.DREB
	stats.AST += sign * e.AST
	stats.STL += sign * e.STL
	stats.BLK += sign * e.BLK
	stats.TOV += sign * e.TOV
	stats.PF += sign * e.PF
	stats.PaintTouch += sign * e.PaintTouch
}

func describeAction(t StatType, p *Player) string {
	effect := statEffects[t]
	if t == StatEndPossession {
		return effect.Description
	}
	return fmt.Sprintf("#%s %s %s", p.Number, p.Name, effect.Description)
}

// closePossession moves the open possession into the game record.
// Callers must hold s.mu.
func (s *GameSession) closePossession() {
	if s.possession.team == "" {
		return
	}
	s.game.Possessions = append(s.game.Possessions, Possession{
		Timestamp: s.now().UnixMilli(),
		Period:    s.game.Period,
		Team:      s.possession.team,
		ID:        uuid.NewString(),
		Actions:   s.possession.actions,
		Duration:  s.now().Sub(s.possession.start).Milliseconds(),
	})
	s.possession = openPossession{}
}

// EndCurrentPossession closes the open possession, if any.
func (s *GameSession) EndCurrentPossession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return ErrNoGame
	}
	s.closePossession()
	return nil
}

// CurrentPossessionTeam returns the side of the open possession, or ""
// when none is open.
func (s *GameSession) CurrentPossessionTeam() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.possession.team
}

// EndPeriod closes the open possession, logs the period boundary, and
// advances to the next period. After the last period the game ends
// automatically and the finalized game is returned; otherwise the
// returned game is nil.
func (s *GameSession) EndPeriod() (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game == nil {
		return nil, ErrNoGame
	}
	if s.state != StateInProgress {
		return nil, ErrGameEnded
	}

	s.closePossession()
	ended := s.game.Period
	s.game.Period++
	s.game.ActionLog = append(s.game.ActionLog, LogEntry{
		Timestamp:   s.now().UnixMilli(),
		Period:      ended,
		Description: fmt.Sprintf("End of period %d", ended),
	})

	if s.game.Period > LastPeriod {
		return s.endGame()
	}
	return nil, nil
}

// EndGame closes the open possession, stamps the end time, and marks
// the game completed. The finalized game is returned and the session
// moves to StateEnded.
func (s *GameSession) EndGame() (*Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game == nil {
		return nil, ErrNoGame
	}
	if s.state != StateInProgress {
		return nil, ErrGameEnded
	}
	return s.endGame()
}

// endGame finalizes the current game. Callers must hold s.mu.
func (s *GameSession) endGame() (*Game, error) {
	s.closePossession()
	g := s.game
	g.EndTime = s.now().UTC().Format(time.RFC3339)
	g.Completed = true
	s.game = nil
	s.state = StateEnded
	s.homeSelected = ""
	s.awaySelected = ""
	return g, nil
}

// UndoLastAction reverts the given side's most recent logged action.
// The matching log entry is removed and its stat deltas are reversed.
// Closed possessions are never reopened.
func (s *GameSession) UndoLastAction(side string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return ErrNoGame
	}
	if s.state != StateInProgress {
		return ErrGameEnded
	}
	return s.undoLastAction(side)
}

// undoLastAction implements the backward scan. Callers must hold s.mu.
func (s *GameSession) undoLastAction(side string) error {
	log := s.game.ActionLog
	idx := -1
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Team == side {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNothingToUndo
	}

	entry := log[idx]
	// Possession boundary markers have no stat deltas to revert.
	if entry.StatType == StatEndPossession {
		return ErrNothingToUndo
	}
	effect, ok := statEffects[entry.StatType]
	if !ok {
		return ErrNothingToUndo
	}

	var team *GameTeam
	if side == SideHome {
		team = &s.game.HomeTeam
	} else {
		team = &s.game.AwayTeam
	}
	player := findPlayerByLine(team.Players, entry.Player, entry.PlayerNumber)
	if player == nil {
		return ErrNothingToUndo
	}

	applyEffect(&player.PlayerStats, effect, -1)
	team.Score -= effect.Points
	s.game.ActionLog = append(log[:idx], log[idx+1:]...)
	return nil
}

func findPlayerByLine(players []Player, name, number string) *Player {
	for i := range players {
		if players[i].Name == name && players[i].Number == number {
			return &players[i]
		}
	}
	return nil
}

// RecordShot attaches shot detail to the game. The shot type must be a
// field goal attempt or make, the quality must be between 1 and 10, and
// the location must name a known court zone.
func (s *GameSession) RecordShot(playerID, side string, shotType StatType, quality int, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game == nil {
		return ErrNoGame
	}
	if s.state != StateInProgress {
		return ErrGameEnded
	}
	if shotType != StatFGA && shotType != StatFGM && shotType != Stat3PA && shotType != Stat3PM {
		return ErrInvalidShot
	}
	if quality < 1 || quality > 10 {
		return ErrInvalidShot
	}
	if !isShotLocation(location) {
		return ErrInvalidShot
	}
	var team *GameTeam
	switch side {
	case SideHome:
		team = &s.game.HomeTeam
	case SideAway:
		team = &s.game.AwayTeam
	default:
		return ErrInvalidShot
	}
	if findPlayer(team.Players, playerID) == nil {
		return ErrInvalidShot
	}

	s.game.ShotData = append(s.game.ShotData, ShotRecord{
		Quality:   quality,
		Location:  location,
		Timestamp: s.now().UnixMilli(),
		Player:    playerID,
		Team:      side,
		ShotType:  shotType,
		IsMake:    shotType == StatFGM || shotType == Stat3PM,
		Is3pt:     shotType == Stat3PA || shotType == Stat3PM,
	})
	return nil
}
