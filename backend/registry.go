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
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const tombstoneTTL = 30 * 24 * time.Hour
const gcInterval = 12 * time.Hour

// Registry maintains the per-user index of games and teams so listing
// does not have to scan and load every file. Games and teams are owned
// by the user that created them.
type Registry struct {
	gameStore *GameStore
	teamStore *TeamStore

	mu sync.RWMutex

	// Metadata cache, also holding tombstones (DeletedAt > 0).
	gameMetadata *lru.Cache[string, GameMetadata]
	teamMetadata *lru.Cache[string, TeamMetadata]

	ownerGames map[string]map[string]bool
	ownerTeams map[string]map[string]bool

	gameCount int
	teamCount int

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a new Registry and builds the owner indices by
// scanning the stores.
func NewRegistry(gs *GameStore, ts *TeamStore) *Registry {
	gmCache, _ := lru.New[string, GameMetadata](5000)
	tmCache, _ := lru.New[string, TeamMetadata](2000)

	r := &Registry{
		gameStore:    gs,
		teamStore:    ts,
		gameMetadata: gmCache,
		teamMetadata: tmCache,
		ownerGames:   make(map[string]map[string]bool),
		ownerTeams:   make(map[string]map[string]bool),
		stopChan:     make(chan struct{}),
	}

	r.Rebuild()
	r.StartGC()

	return r
}

// StartGC starts the background tombstone garbage collector.
func (r *Registry) StartGC() {
	go func() {
		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.PurgeOldTombstones()
			case <-r.stopChan:
				return
			}
		}
	}()
}

// StopGC stops the background tombstone garbage collector.
func (r *Registry) StopGC() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// PurgeOldTombstones permanently deletes expired tombstones from disk.
func (r *Registry) PurgeOldTombstones() {
	cutoff := time.Now().UnixNano() - tombstoneTTL.Nanoseconds()

	var purgedTeams int
	var purgedGames int

	for t, err := range r.teamStore.ListAllTeamMetadata() {
		if err == nil && t.DeletedAt > 0 && t.DeletedAt < cutoff {
			if err := r.teamStore.PurgeTeam(t.ID); err == nil {
				r.teamMetadata.Remove(t.ID)
				purgedTeams++
			}
		}
	}
	for g, err := range r.gameStore.ListAllGameMetadata() {
		if err == nil && g.DeletedAt > 0 && g.DeletedAt < cutoff {
			if err := r.gameStore.PurgeGame(g.ID); err == nil {
				r.gameMetadata.Remove(g.ID)
				purgedGames++
			}
		}
	}

	if purgedTeams > 0 || purgedGames > 0 {
		log.Printf("Registry: GC complete. Purged %d games, %d teams.", purgedGames, purgedTeams)
	}
}

// Rebuild reconstructs the owner indices by scanning the underlying stores.
func (r *Registry) Rebuild() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ownerGames = make(map[string]map[string]bool)
	r.ownerTeams = make(map[string]map[string]bool)
	r.gameCount = 0
	r.teamCount = 0

	for t, err := range r.teamStore.ListAllTeamMetadata() {
		if err != nil {
			log.Printf("Registry: Error listing teams: %v", err)
			break
		}
		r.teamMetadata.Add(t.ID, t)
		if t.DeletedAt > 0 {
			continue
		}
		r.addOwned(r.ownerTeams, t.Owner, t.ID)
		r.teamCount++
	}

	for g, err := range r.gameStore.ListAllGameMetadata() {
		if err != nil {
			log.Printf("Registry: Error listing games: %v", err)
			break
		}
		r.gameMetadata.Add(g.ID, g)
		if g.DeletedAt > 0 {
			continue
		}
		r.addOwned(r.ownerGames, g.Owner, g.ID)
		r.gameCount++
	}

	log.Printf("Registry: Rebuild complete. Indexed %d games, %d teams.", r.gameCount, r.teamCount)
}

func (r *Registry) addOwned(index map[string]map[string]bool, owner, id string) {
	set, ok := index[owner]
	if !ok {
		set = make(map[string]bool)
		index[owner] = set
	}
	set[id] = true
}

// UpdateGame indexes a saved game.
func (r *Registry) UpdateGame(g *Game) {
	r.mu.Lock()
	defer r.mu.Unlock()

	isNew := !r.ownerGames[g.Owner][g.ID]
	r.gameMetadata.Add(g.ID, *g.Metadata())
	r.addOwned(r.ownerGames, g.Owner, g.ID)
	if isNew {
		r.gameCount++
	}
}

// UpdateTeam indexes a saved team.
func (r *Registry) UpdateTeam(t *Team) {
	r.mu.Lock()
	defer r.mu.Unlock()

	isNew := !r.ownerTeams[t.Owner][t.ID]
	r.teamMetadata.Add(t.ID, t.Metadata())
	r.addOwned(r.ownerTeams, t.Owner, t.ID)
	if isNew {
		r.teamCount++
	}
}

// DeleteGame removes a game from the index and caches its tombstone.
func (r *Registry) DeleteGame(gameId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.gameMetadata.Peek(gameId); ok && m.DeletedAt > 0 {
		return
	}
	for owner, set := range r.ownerGames {
		if set[gameId] {
			delete(set, gameId)
			if len(set) == 0 {
				delete(r.ownerGames, owner)
			}
			r.gameCount--
			break
		}
	}
	r.gameMetadata.Add(gameId, GameMetadata{ID: gameId, DeletedAt: time.Now().UnixNano()})
}

// DeleteTeam removes a team from the index and caches its tombstone.
func (r *Registry) DeleteTeam(teamId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.teamMetadata.Peek(teamId); ok && m.DeletedAt > 0 {
		return
	}
	for owner, set := range r.ownerTeams {
		if set[teamId] {
			delete(set, teamId)
			if len(set) == 0 {
				delete(r.ownerTeams, owner)
			}
			r.teamCount--
			break
		}
	}
	r.teamMetadata.Add(teamId, TeamMetadata{ID: teamId, DeletedAt: time.Now().UnixNano()})
}

// GameMeta returns the cached metadata for a game, loading it from the
// store on a cache miss.
func (r *Registry) GameMeta(gameId string) (GameMetadata, bool) {
	if m, ok := r.gameMetadata.Get(gameId); ok {
		return m, true
	}
	g, err := r.gameStore.LoadGame(gameId)
	if err != nil {
		return GameMetadata{}, false
	}
	m := *g.Metadata()
	r.gameMetadata.Add(gameId, m)
	return m, true
}

// TeamMeta returns the cached metadata for a team, loading it from the
// store on a cache miss.
func (r *Registry) TeamMeta(teamId string) (TeamMetadata, bool) {
	if m, ok := r.teamMetadata.Get(teamId); ok {
		return m, true
	}
	t, err := r.teamStore.LoadTeam(teamId)
	if err != nil {
		return TeamMetadata{}, false
	}
	m := t.Metadata()
	r.teamMetadata.Add(teamId, m)
	return m, true
}

// IsGameDeleted reports whether the game has a tombstone.
func (r *Registry) IsGameDeleted(gameId string) bool {
	m, ok := r.GameMeta(gameId)
	return ok && m.DeletedAt > 0
}

// IsTeamDeleted reports whether the team has a tombstone.
func (r *Registry) IsTeamDeleted(teamId string) bool {
	m, ok := r.TeamMeta(teamId)
	return ok && m.DeletedAt > 0
}

// GameExists reports whether the game exists and is not deleted.
func (r *Registry) GameExists(gameId string) bool {
	m, ok := r.GameMeta(gameId)
	return ok && m.DeletedAt == 0
}

// TeamExists reports whether the team exists and is not deleted.
func (r *Registry) TeamExists(teamId string) bool {
	m, ok := r.TeamMeta(teamId)
	return ok && m.DeletedAt == 0
}

// HasGameAccess reports whether the user owns the game.
func (r *Registry) HasGameAccess(userId, gameId string) bool {
	if r.IsGameDeleted(gameId) {
		return false
	}
	m, ok := r.GameMeta(gameId)
	return ok && m.Owner == userId
}

// HasTeamAccess reports whether the user owns the team.
func (r *Registry) HasTeamAccess(userId, teamId string) bool {
	if r.IsTeamDeleted(teamId) {
		return false
	}
	m, ok := r.TeamMeta(teamId)
	return ok && m.Owner == userId
}

// CountOwnedGames returns the number of games owned by the user.
func (r *Registry) CountOwnedGames(userId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ownerGames[userId])
}

// CountOwnedTeams returns the number of teams owned by the user.
func (r *Registry) CountOwnedTeams(userId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ownerTeams[userId])
}

// CountTotalGames returns the number of live games across all users.
func (r *Registry) CountTotalGames() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gameCount
}

// CountTotalTeams returns the number of live teams across all users.
func (r *Registry) CountTotalTeams() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.teamCount
}

func containsLower(s, substrLower string) bool {
	return strings.Contains(strings.ToLower(s), substrLower)
}

func matchesGame(m GameMetadata, query string) bool {
	for _, token := range strings.Fields(strings.ToLower(query)) {
		match := containsLower(m.Home, token) ||
			containsLower(m.Away, token) ||
			containsLower(m.Location, token) ||
			containsLower(m.Date, token)
		if !match {
			return false
		}
	}
	return true
}

func matchesTeam(m TeamMetadata, query string) bool {
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if !containsLower(m.Name, token) {
			return false
		}
	}
	return true
}

// ListGames returns the IDs of the user's games, filtered by a free-text
// query and sorted. The default sort is by date, newest first.
func (r *Registry) ListGames(userId, sortBy, order, query string) []string {
	if sortBy == "" {
		sortBy = "date"
	}
	if order == "" {
		if sortBy == "date" {
			order = "desc"
		} else {
			order = "asc"
		}
	}

	r.mu.RLock()
	owned := make([]string, 0, len(r.ownerGames[userId]))
	for id := range r.ownerGames[userId] {
		owned = append(owned, id)
	}
	r.mu.RUnlock()

	metas := make(map[string]GameMetadata, len(owned))
	ids := make([]string, 0, len(owned))
	for _, id := range owned {
		m, ok := r.GameMeta(id)
		if !ok || m.DeletedAt > 0 || !matchesGame(m, query) {
			continue
		}
		metas[id] = m
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		m1, m2 := metas[ids[i]], metas[ids[j]]
		var k1, k2 string
		switch sortBy {
		case "location":
			k1, k2 = m1.Location, m2.Location
		case "home":
			k1, k2 = m1.Home, m2.Home
		case "away":
			k1, k2 = m1.Away, m2.Away
		default:
			k1, k2 = m1.Date, m2.Date
		}
		if k1 == k2 {
			k1, k2 = ids[i], ids[j]
		}
		if order == "desc" {
			return k1 > k2
		}
		return k1 < k2
	})
	return ids
}

// ListTeams returns the IDs of the user's teams, filtered by a free-text
// query and sorted. The default sort is by name.
func (r *Registry) ListTeams(userId, sortBy, order, query string) []string {
	if sortBy == "" {
		sortBy = "name"
	}
	if order == "" {
		order = "asc"
	}

	r.mu.RLock()
	owned := make([]string, 0, len(r.ownerTeams[userId]))
	for id := range r.ownerTeams[userId] {
		owned = append(owned, id)
	}
	r.mu.RUnlock()

	metas := make(map[string]TeamMetadata, len(owned))
	ids := make([]string, 0, len(owned))
	for _, id := range owned {
		m, ok := r.TeamMeta(id)
		if !ok || m.DeletedAt > 0 || !matchesTeam(m, query) {
			continue
		}
		metas[id] = m
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		m1, m2 := metas[ids[i]], metas[ids[j]]
		var less bool
		switch sortBy {
		case "updated":
			if m1.UpdatedAt != m2.UpdatedAt {
				less = m1.UpdatedAt < m2.UpdatedAt
			} else {
				less = ids[i] < ids[j]
			}
		default:
			if m1.Name != m2.Name {
				less = m1.Name < m2.Name
			} else {
				less = ids[i] < ids[j]
			}
		}
		if order == "desc" {
			return !less
		}
		return less
	})
	return ids
}
