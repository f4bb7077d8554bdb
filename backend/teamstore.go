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

// Team is a saved roster that can be reused across games.
type Team struct {
	ID        string        `json:"id"`
	Schema    int           `json:"schema"`
	Name      string        `json:"name,omitempty"`
	Abbr      string        `json:"abbr,omitempty"`
	Roster    []PlayerSetup `json:"roster,omitempty"`
	Owner     string        `json:"owner"`
	UpdatedAt int64         `json:"updatedAt,omitempty"`

	// DeletedAt is the Unix nano timestamp of deletion, for tombstones.
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

func (t *Team) normalize() {
	if t.Schema == 0 {
		t.Schema = SchemaVersionV1
	}
	if t.Roster == nil {
		t.Roster = make([]PlayerSetup, 0)
	}
}

// TeamMetadata contains only the fields needed for listing and indexing.
type TeamMetadata struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Owner     string `json:"owner"`
	UpdatedAt int64  `json:"updatedAt"`
	DeletedAt int64  `json:"deletedAt"`
}

// Metadata extracts the indexable fields of a team.
func (t *Team) Metadata() TeamMetadata {
	return TeamMetadata{
		ID:        t.ID,
		Name:      t.Name,
		Owner:     t.Owner,
		UpdatedAt: t.UpdatedAt,
		DeletedAt: t.DeletedAt,
	}
}

// TeamStore manages team persistence to disk.
type TeamStore struct {
	DataDir string
	storage *storage.Storage
	mu      sync.Map // *sync.Mutex per teamId
}

// NewTeamStore creates a new TeamStore.
func NewTeamStore(dataDir string, s *storage.Storage) *TeamStore {
	return &TeamStore{
		DataDir: dataDir,
		storage: s,
	}
}

func teamFilename(teamId string) string {
	return filepath.Join("teams", fmt.Sprintf("%s.json", url.PathEscape(teamId)))
}

// SaveTeam saves the team data atomically.
func (ts *TeamStore) SaveTeam(team *Team) error {
	teamId := team.ID
	m, _ := ts.mu.LoadOrStore(teamId, &sync.Mutex{})
	mutex := m.(*sync.Mutex)

	mutex.Lock()
	defer mutex.Unlock()

	if err := ts.storage.SaveDataFile(teamFilename(teamId), team); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// LoadTeam loads the team data by ID.
func (ts *TeamStore) LoadTeam(teamId string) (*Team, error) {
	var t Team
	if err := ts.storage.ReadDataFile(teamFilename(teamId), &t); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	t.normalize()

	return &t, nil
}

// LoadTeamAsJSON is a helper for API handlers that just want bytes.
func (ts *TeamStore) LoadTeamAsJSON(teamId string) ([]byte, error) {
	t, err := ts.LoadTeam(teamId)
	if err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// ListAllTeamIDs returns the IDs of all teams found on disk.
func (ts *TeamStore) ListAllTeamIDs() ([]string, error) {
	files, err := os.ReadDir(filepath.Join(ts.DataDir, "teams"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read teams directory: %w", err)
	}
	var ids []string
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if id, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json")); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListAllTeamMetadata returns an iterator over metadata for all teams.
func (ts *TeamStore) ListAllTeamMetadata() iter.Seq2[TeamMetadata, error] {
	return func(yield func(TeamMetadata, error) bool) {
		teamsDir := filepath.Join(ts.DataDir, "teams")
		files, err := os.ReadDir(teamsDir)
		if err != nil {
			if !os.IsNotExist(err) {
				yield(TeamMetadata{}, fmt.Errorf("could not read teams directory: %w", err))
			}
			return
		}

		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			teamId, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
			if err != nil {
				continue
			}

			t, err := ts.LoadTeam(teamId)
			if err != nil {
				continue
			}

			if !yield(t.Metadata(), nil) {
				return
			}
		}
	}
}

// ListAllTeams returns an iterator over all teams found in the flat
// teams directory.
func (ts *TeamStore) ListAllTeams() iter.Seq2[*Team, error] {
	return func(yield func(*Team, error) bool) {
		teamsDir := filepath.Join(ts.DataDir, "teams")
		files, err := os.ReadDir(teamsDir)
		if err != nil {
			if !os.IsNotExist(err) {
				yield(nil, fmt.Errorf("could not read teams directory: %w", err))
			}
			return
		}

		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			teamId, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
			if err != nil {
				continue
			}

			t, err := ts.LoadTeam(teamId)
			if err != nil {
				log.Printf("Warning: could not load team '%s': %v", teamId, err)
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// DeleteTeam deletes a specific team by overwriting it with a tombstone.
func (ts *TeamStore) DeleteTeam(teamId string) error {
	// Load first to get the owner.
	t, err := ts.LoadTeam(teamId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	m, _ := ts.mu.LoadOrStore(teamId, &sync.Mutex{})
	mutex := m.(*sync.Mutex)

	mutex.Lock()
	defer mutex.Unlock()

	tombstone := &Team{
		ID:        teamId,
		Schema:    SchemaVersionV1,
		Owner:     t.Owner,
		DeletedAt: time.Now().UnixNano(),
	}

	if err := ts.storage.SaveDataFile(teamFilename(teamId), tombstone); err != nil {
		return fmt.Errorf("storage.SaveDataFile (tombstone): %w", err)
	}
	return nil
}

// PurgeTeam permanently deletes the team file.
func (ts *TeamStore) PurgeTeam(teamId string) error {
	m, _ := ts.mu.LoadOrStore(teamId, &sync.Mutex{})
	mutex := m.(*sync.Mutex)

	mutex.Lock()
	defer mutex.Unlock()

	if err := os.Remove(filepath.Join(ts.DataDir, teamFilename(teamId))); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not purge team file: %w", err)
	}
	return nil
}
