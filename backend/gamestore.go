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
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
)

func (g *Game) normalize() {
	if g.Schema == 0 {
		g.Schema = SchemaVersionV1
	}
	if g.Period == 0 {
		g.Period = FirstPeriod
	}
	if g.Possessions == nil {
		g.Possessions = []Possession{}
	}
	if g.ShotData == nil {
		g.ShotData = []ShotRecord{}
	}
	if g.ActionLog == nil {
		g.ActionLog = []LogEntry{}
	}
}

// GameMetadata contains only the fields needed for listing and indexing.
type GameMetadata struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Date      string `json:"date"`
	Location  string `json:"location"`
	Home      string `json:"home"`
	Away      string `json:"away"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
	Completed bool   `json:"completed"`
	DeletedAt int64  `json:"deletedAt"`
}

// Metadata extracts the indexable fields of a game.
func (g *Game) Metadata() *GameMetadata {
	return &GameMetadata{
		ID:        g.ID,
		Owner:     g.Owner,
		Date:      g.Date,
		Location:  g.Location,
		Home:      g.HomeTeam.Name,
		Away:      g.AwayTeam.Name,
		HomeScore: g.HomeTeam.Score,
		AwayScore: g.AwayTeam.Score,
		Completed: g.Completed,
		DeletedAt: g.DeletedAt,
	}
}

// GameStore manages game persistence to disk. Completed games live under
// games/; the per-user in-progress snapshot lives under current/.
type GameStore struct {
	DataDir string
	Debug   bool
	storage *storage.Storage
	mu      sync.Map // *sync.RWMutex per gameId
	cache   sync.Map // latest []byte (JSON) per gameId

	dirtyMu sync.Mutex
	dirty   map[string]bool
}

// NewGameStore creates a new GameStore.
func NewGameStore(dataDir string, s *storage.Storage) *GameStore {
	return &GameStore{
		DataDir: dataDir,
		storage: s,
		dirty:   make(map[string]bool),
	}
}

func gameFilename(gameId string) string {
	return filepath.Join("games", fmt.Sprintf("%s.json", url.PathEscape(gameId)))
}

func gameMetaFilename(gameId string) string {
	return filepath.Join("games", fmt.Sprintf("%s.meta.json", url.PathEscape(gameId)))
}

func currentGameFilename(ownerId string) string {
	return filepath.Join("current", fmt.Sprintf("%s.json", url.PathEscape(ownerId)))
}

// SaveGame saves the game data atomically.
func (gs *GameStore) SaveGame(game *Game) error {
	gameId := game.ID
	m, _ := gs.mu.LoadOrStore(gameId, &sync.RWMutex{})
	mutex := m.(*sync.RWMutex)

	mutex.Lock()
	defer mutex.Unlock()

	if err := gs.storage.SaveDataFile(gameFilename(gameId), game); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}

	// Save Metadata Sidecar
	if err := gs.storage.SaveDataFile(gameMetaFilename(gameId), game.Metadata()); err != nil {
		// Non-fatal, listing falls back to the main file.
		log.Printf("Warning: Failed to save metadata sidecar for game %s: %v", gameId, err)
	}

	if jsonBytes, err := json.Marshal(game); err == nil {
		gs.cache.Store(gameId, jsonBytes)
	}

	gs.dirtyMu.Lock()
	delete(gs.dirty, gameId)
	gs.dirtyMu.Unlock()

	return nil
}

// SaveGameInMemory updates the in-memory cache and marks the game as dirty.
// If forceSync is true, it writes to disk immediately like SaveGame.
func (gs *GameStore) SaveGameInMemory(game *Game, forceSync bool) error {
	jsonBytes, err := json.Marshal(game)
	if err != nil {
		return err
	}
	gs.cache.Store(game.ID, jsonBytes)

	if forceSync {
		return gs.SaveGame(game)
	}

	gs.dirtyMu.Lock()
	gs.dirty[game.ID] = true
	gs.dirtyMu.Unlock()

	return nil
}

// Flush persists a specific game to disk if it is dirty.
func (gs *GameStore) Flush(gameId string) error {
	gs.dirtyMu.Lock()
	if !gs.dirty[gameId] {
		gs.dirtyMu.Unlock()
		return nil
	}
	gs.dirtyMu.Unlock()

	val, ok := gs.cache.Load(gameId)
	if !ok {
		gs.dirtyMu.Lock()
		delete(gs.dirty, gameId)
		gs.dirtyMu.Unlock()
		return fmt.Errorf("game %s marked dirty but not found in cache", gameId)
	}

	var g Game
	if err := json.Unmarshal(val.([]byte), &g); err != nil {
		return fmt.Errorf("failed to unmarshal game from cache for flush: %w", err)
	}

	// SaveGame clears the dirty flag.
	return gs.SaveGame(&g)
}

// FlushAll persists all dirty games to disk.
func (gs *GameStore) FlushAll() error {
	gs.dirtyMu.Lock()
	dirtyIds := make([]string, 0, len(gs.dirty))
	for id := range gs.dirty {
		dirtyIds = append(dirtyIds, id)
	}
	gs.dirtyMu.Unlock()

	for _, id := range dirtyIds {
		if err := gs.Flush(id); err != nil {
			return fmt.Errorf("failed to flush game %s: %w", id, err)
		}
	}
	return nil
}

// LoadGame loads the game data by game ID.
func (gs *GameStore) LoadGame(gameId string) (*Game, error) {
	if val, ok := gs.cache.Load(gameId); ok {
		var g Game
		if err := json.Unmarshal(val.([]byte), &g); err == nil {
			if gs.Debug {
				log.Printf("[CACHE] Hit for game %s", gameId)
			}
			g.normalize()
			return &g, nil
		}
		gs.cache.Delete(gameId)
	}
	if gs.Debug {
		log.Printf("[CACHE] Miss for game %s", gameId)
	}

	m, _ := gs.mu.LoadOrStore(gameId, &sync.RWMutex{})
	mutex := m.(*sync.RWMutex)

	mutex.RLock()
	defer mutex.RUnlock()

	var g Game
	if err := gs.storage.ReadDataFile(gameFilename(gameId), &g); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	g.normalize()

	if jsonBytes, err := json.Marshal(&g); err == nil {
		gs.cache.Store(gameId, jsonBytes)
	}

	return &g, nil
}

// LoadGameAsJSON is a helper for API handlers that just want bytes.
func (gs *GameStore) LoadGameAsJSON(gameId string) ([]byte, error) {
	g, err := gs.LoadGame(gameId)
	if err != nil {
		return nil, err
	}
	return json.Marshal(g)
}

// DeleteGame deletes a specific game by overwriting it with a tombstone.
func (gs *GameStore) DeleteGame(gameId string) error {
	// Load first to get the owner.
	g, err := gs.LoadGame(gameId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	m, _ := gs.mu.LoadOrStore(gameId, &sync.RWMutex{})
	mutex := m.(*sync.RWMutex)

	mutex.Lock()
	defer mutex.Unlock()

	tombstone := &Game{
		ID:        gameId,
		Schema:    SchemaVersionV1,
		Owner:     g.Owner,
		DeletedAt: time.Now().UnixNano(),
	}
	tombstone.normalize()

	if err := gs.storage.SaveDataFile(gameFilename(gameId), tombstone); err != nil {
		return fmt.Errorf("storage.SaveDataFile (tombstone): %w", err)
	}
	if err := gs.storage.SaveDataFile(gameMetaFilename(gameId), tombstone.Metadata()); err != nil {
		log.Printf("Warning: Failed to save metadata tombstone for game %s: %v", gameId, err)
	}

	if jsonBytes, err := json.Marshal(tombstone); err == nil {
		gs.cache.Store(gameId, jsonBytes)
	}

	return nil
}

// PurgeGame permanently deletes the game file.
func (gs *GameStore) PurgeGame(gameId string) error {
	m, _ := gs.mu.LoadOrStore(gameId, &sync.RWMutex{})
	mutex := m.(*sync.RWMutex)

	mutex.Lock()
	defer mutex.Unlock()

	gs.cache.Delete(gameId)

	if err := os.Remove(filepath.Join(gs.DataDir, gameFilename(gameId))); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("could not purge game file: %w", err)
		}
	}
	if err := os.Remove(filepath.Join(gs.DataDir, gameMetaFilename(gameId))); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: could not purge meta file for game %s: %v", gameId, err)
		}
	}
	return nil
}

// SaveCurrentGame persists the in-progress game snapshot for a user.
func (gs *GameStore) SaveCurrentGame(ownerId string, game *Game) error {
	if err := gs.storage.SaveDataFile(currentGameFilename(ownerId), game); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// LoadCurrentGame loads a user's in-progress game snapshot.
func (gs *GameStore) LoadCurrentGame(ownerId string) (*Game, error) {
	var g Game
	if err := gs.storage.ReadDataFile(currentGameFilename(ownerId), &g); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	g.normalize()
	return &g, nil
}

// ClearCurrentGame removes a user's in-progress game snapshot.
func (gs *GameStore) ClearCurrentGame(ownerId string) error {
	err := os.Remove(filepath.Join(gs.DataDir, currentGameFilename(ownerId)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove current game: %w", err)
	}
	return nil
}

// ListAllGameIDs returns the IDs of all games found on disk.
func (gs *GameStore) ListAllGameIDs() ([]string, error) {
	files, err := os.ReadDir(filepath.Join(gs.DataDir, "games"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read games directory: %w", err)
	}
	var ids []string
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || strings.HasSuffix(name, ".meta.json") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if id, err := url.PathUnescape(strings.TrimSuffix(name, ".json")); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListAllGameMetadata returns metadata for all games without loading
// full action logs.
func (gs *GameStore) ListAllGameMetadata() iter.Seq2[GameMetadata, error] {
	return func(yield func(GameMetadata, error) bool) {
		gamesDir := filepath.Join(gs.DataDir, "games")
		files, err := os.ReadDir(gamesDir)
		if err != nil && !os.IsNotExist(err) {
			yield(GameMetadata{}, fmt.Errorf("could not read games directory: %w", err))
			return
		}

		hasMeta := make(map[string]bool)
		hasGame := make(map[string]bool)

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			name := file.Name()
			if strings.HasSuffix(name, ".meta.json") {
				if id, err := url.PathUnescape(strings.TrimSuffix(name, ".meta.json")); err == nil {
					hasMeta[id] = true
				}
			} else if strings.HasSuffix(name, ".json") {
				if id, err := url.PathUnescape(strings.TrimSuffix(name, ".json")); err == nil {
					hasGame[id] = true
				}
			}
		}

		processed := make(map[string]bool)

		// Fast path: metadata sidecars.
		for id := range hasMeta {
			processed[id] = true

			var meta GameMetadata
			if err := gs.storage.ReadDataFile(gameMetaFilename(id), &meta); err != nil {
				log.Printf("Warning: failed to load metadata for %s: %v. Falling back to main file.", id, err)
				hasGame[id] = true
				processed[id] = false
				continue
			}

			if !yield(meta, nil) {
				return
			}
		}

		// Fallback path: full game files without a sidecar.
		for id := range hasGame {
			if processed[id] {
				continue
			}
			processed[id] = true

			g, err := gs.LoadGame(id)
			if err != nil {
				log.Printf("Warning: failed to load game %s from disk: %v", id, err)
				continue
			}
			if !yield(*g.Metadata(), nil) {
				return
			}
		}

		// Dirty cache: games created in memory but not yet flushed.
		gs.dirtyMu.Lock()
		dirtyIds := make([]string, 0, len(gs.dirty))
		for id := range gs.dirty {
			dirtyIds = append(dirtyIds, id)
		}
		gs.dirtyMu.Unlock()

		for _, id := range dirtyIds {
			if processed[id] {
				continue
			}
			g, err := gs.LoadGame(id)
			if err != nil {
				log.Printf("Error: Failed to load dirty game %s: %v", id, err)
				continue
			}
			if !yield(*g.Metadata(), nil) {
				return
			}
		}
	}
}

// ListAllGames returns an iterator over all games in the games directory.
func (gs *GameStore) ListAllGames() iter.Seq2[*Game, error] {
	return func(yield func(*Game, error) bool) {
		gamesDir := filepath.Join(gs.DataDir, "games")
		files, err := os.ReadDir(gamesDir)
		if err != nil && !os.IsNotExist(err) {
			yield(nil, fmt.Errorf("could not read games directory: %w", err))
			return
		}

		seen := make(map[string]bool)

		for _, file := range files {
			name := file.Name()
			if file.IsDir() || strings.HasSuffix(name, ".meta.json") || !strings.HasSuffix(name, ".json") {
				continue
			}
			gameId, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
			if err != nil {
				continue
			}

			seen[gameId] = true

			g, err := gs.LoadGame(gameId)
			if err != nil {
				log.Printf("Warning: could not load game '%s': %v", gameId, err)
				continue
			}
			if !yield(g, nil) {
				return
			}
		}

		gs.dirtyMu.Lock()
		dirtyIds := make([]string, 0, len(gs.dirty))
		for id := range gs.dirty {
			dirtyIds = append(dirtyIds, id)
		}
		gs.dirtyMu.Unlock()

		for _, id := range dirtyIds {
			if seen[id] {
				continue
			}
			g, err := gs.LoadGame(id)
			if err != nil {
				log.Printf("Error: Failed to load dirty game %s: %v", id, err)
				continue
			}
			if !yield(g, nil) {
				return
			}
		}
	}
}
