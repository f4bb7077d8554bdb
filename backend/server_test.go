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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

const testUser = "test@example.com"

func newTestHandler(t *testing.T) (http.Handler, *GameStore, *Registry) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "server_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	handler, store, registry := NewServerHandler(Options{
		DataDir:     tempDir,
		UseMockAuth: true,
	})
	t.Cleanup(registry.StopGC)
	return handler, store, registry
}

// makeRequest performs a request against the handler as the given user.
// An empty user sends no auth cookie.
func makeRequest(t *testing.T, handler http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if user != "" {
		req.AddCookie(&http.Cookie{Name: "mock_auth_user", Value: user})
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeGame(t *testing.T, data []byte) *Game {
	t.Helper()
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		t.Fatalf("Failed to decode game: %v", err)
	}
	return &g
}

func initGameRequest(t *testing.T, handler http.Handler, user string) *Game {
	t.Helper()
	rr := makeRequest(t, handler, http.MethodPost, "/api/game/init", user, validSetup())
	if rr.Code != http.StatusOK {
		t.Fatalf("init: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	return decodeGame(t, rr.Body.Bytes())
}

func TestServerGameLifecycle(t *testing.T) {
	handler, store, registry := newTestHandler(t)

	g := initGameRequest(t, handler, testUser)
	if g.ID == "" || !isValidUUID(g.ID) {
		t.Fatalf("Expected game ID, got %q", g.ID)
	}
	if g.HomeTeam.Name != "Hawks" || g.AwayTeam.Name != "Bulls" {
		t.Errorf("Unexpected teams: %q vs %q", g.HomeTeam.Name, g.AwayTeam.Name)
	}
	gameId := g.ID
	playerId := g.HomeTeam.Players[0].ID

	t.Run("GetGame", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		etag := rr.Header().Get("ETag")
		if etag == "" {
			t.Fatal("Expected ETag header")
		}

		req := httptest.NewRequest(http.MethodGet, "/api/game", nil)
		req.AddCookie(&http.Cookie{Name: "mock_auth_user", Value: testUser})
		req.Header.Set("If-None-Match", etag)
		rr2 := httptest.NewRecorder()
		handler.ServeHTTP(rr2, req)
		if rr2.Code != http.StatusNotModified {
			t.Errorf("Expected 304 for matching ETag, got %d", rr2.Code)
		}
	})

	t.Run("SelectAndScore", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/game/select", testUser,
			map[string]string{"team": SideHome, "playerId": playerId})
		if rr.Code != http.StatusOK {
			t.Fatalf("select: expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var sel map[string]bool
		if err := json.Unmarshal(rr.Body.Bytes(), &sel); err != nil || !sel["selected"] {
			t.Fatalf("Expected selected=true, got %s", rr.Body.String())
		}

		rr = makeRequest(t, handler, http.MethodPost, "/api/game/stat", testUser,
			map[string]string{"statType": "fgm"})
		if rr.Code != http.StatusOK {
			t.Fatalf("stat: expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		g := decodeGame(t, rr.Body.Bytes())
		if g.HomeTeam.Score != 2 {
			t.Errorf("Expected home score 2, got %d", g.HomeTeam.Score)
		}
		if len(g.ActionLog) != 1 {
			t.Errorf("Expected 1 log entry, got %d", len(g.ActionLog))
		}
	})

	t.Run("Undo", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/game/undo", testUser,
			map[string]string{"team": SideHome})
		if rr.Code != http.StatusOK {
			t.Fatalf("undo: expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		g := decodeGame(t, rr.Body.Bytes())
		if g.HomeTeam.Score != 0 {
			t.Errorf("Expected home score 0 after undo, got %d", g.HomeTeam.Score)
		}

		rr = makeRequest(t, handler, http.MethodPost, "/api/game/undo", testUser,
			map[string]string{"team": SideHome})
		if rr.Code != http.StatusConflict {
			t.Errorf("Expected 409 when nothing to undo, got %d", rr.Code)
		}
	})

	t.Run("PossessionEnd", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/game/possession/end", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Boxscore", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game/boxscore?team=home", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		rr = makeRequest(t, handler, http.MethodGet, "/api/game/boxscore?team=neutral", testUser, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for unknown side, got %d", rr.Code)
		}
	})

	t.Run("Dashboard", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game/dashboard", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ExportCurrent", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game/export", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("Expected text/csv, got %q", ct)
		}
		if !strings.Contains(rr.Body.String(), "Basketball Stat Tracker Export") {
			t.Error("Export missing header line")
		}
	})

	t.Run("EndPeriods", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/game/period/end", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		g := decodeGame(t, rr.Body.Bytes())
		if g.Period != 2 {
			t.Errorf("Expected period 2, got %d", g.Period)
		}

		// Ending the final period completes the game.
		rr = makeRequest(t, handler, http.MethodPost, "/api/game/period/end", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Completed bool   `json:"completed"`
			GameID    string `json:"gameId"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if !resp.Completed || resp.GameID != gameId {
			t.Errorf("Expected completed game %s, got %+v", gameId, resp)
		}
	})

	t.Run("NoGameAfterCompletion", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game", testUser, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after game ended, got %d", rr.Code)
		}
	})

	t.Run("CompletedGamePersisted", func(t *testing.T) {
		g, err := store.LoadGame(gameId)
		if err != nil {
			t.Fatalf("LoadGame failed: %v", err)
		}
		if !g.Completed || g.EndTime == "" {
			t.Errorf("Expected completed game with end time, got completed=%v endTime=%q", g.Completed, g.EndTime)
		}
		if g.Owner != testUser {
			t.Errorf("Expected owner %q, got %q", testUser, g.Owner)
		}
		if !registry.GameExists(gameId) {
			t.Error("Completed game not indexed")
		}
	})

	t.Run("LoadGame", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/load/"+gameId, testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		g := decodeGame(t, rr.Body.Bytes())
		if g.ID != gameId {
			t.Errorf("Expected game %s, got %s", gameId, g.ID)
		}

		rr = makeRequest(t, handler, http.MethodGet, "/api/load/"+gameId, "other@example.com", nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for non-owner, got %d", rr.Code)
		}

		rr = makeRequest(t, handler, http.MethodGet, "/api/load/not-a-uuid", testUser, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for bad ID, got %d", rr.Code)
		}
	})

	t.Run("ExportSaved", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/export/"+gameId, testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "boxscore-2026-01-15.csv") {
			t.Errorf("Unexpected Content-Disposition: %q", cd)
		}
	})

	t.Run("ListGames", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/list-games", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Data []GameSummary `json:"data"`
			Meta listMeta      `json:"meta"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Meta.Total != 1 || len(resp.Data) != 1 {
			t.Fatalf("Expected 1 game, got %+v", resp)
		}
		if resp.Data[0].ID != gameId || !resp.Data[0].Completed {
			t.Errorf("Unexpected summary: %+v", resp.Data[0])
		}
	})

	t.Run("DeleteGame", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/delete-game", "other@example.com",
			map[string]string{"id": gameId})
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for non-owner, got %d", rr.Code)
		}

		rr = makeRequest(t, handler, http.MethodPost, "/api/delete-game", testUser,
			map[string]string{"id": gameId})
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		want := fmt.Sprintf("Game %s deleted successfully", gameId)
		if rr.Body.String() != want {
			t.Errorf("Expected %q, got %q", want, rr.Body.String())
		}

		rr = makeRequest(t, handler, http.MethodGet, "/api/load/"+gameId, testUser, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", rr.Code)
		}

		// POST with known IDs reports the tombstone.
		rr = makeRequest(t, handler, http.MethodPost, "/api/list-games", testUser,
			map[string][]string{"knownIds": {gameId}})
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Data []GameSummary `json:"data"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		var found bool
		for _, s := range resp.Data {
			if s.ID == gameId && s.Deleted {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected deleted tombstone in response: %+v", resp.Data)
		}
	})
}

func TestServerSessionErrors(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rr := makeRequest(t, handler, http.MethodPost, "/api/game/stat", testUser,
		map[string]string{"statType": "fgm"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a game, got %d", rr.Code)
	}

	initGameRequest(t, handler, testUser)

	rr = makeRequest(t, handler, http.MethodPost, "/api/game/stat", testUser,
		map[string]string{"statType": "fgm"})
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 without a selection, got %d", rr.Code)
	}

	rr = makeRequest(t, handler, http.MethodPost, "/api/game/stat", testUser,
		map[string]string{"statType": "dunk"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown stat, got %d", rr.Code)
	}

	rr = makeRequest(t, handler, http.MethodPost, "/api/game/init", testUser, `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rr.Code)
	}

	badSetup := validSetup()
	badSetup.HomeTeam.Players = nil
	rr = makeRequest(t, handler, http.MethodPost, "/api/game/init", testUser, badSetup)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid setup, got %d", rr.Code)
	}
}

func TestServerSessionsAreIsolated(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	initGameRequest(t, handler, testUser)

	rr := makeRequest(t, handler, http.MethodGet, "/api/game", "other@example.com", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a user without a game, got %d", rr.Code)
	}
}

func TestServerTeams(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	teamId := "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	team := map[string]any{
		"id":   teamId,
		"name": "Test Team",
		"abbr": "TST",
		"roster": []map[string]string{
			{"name": "Jordan", "number": "23"},
			{"name": "Pippen", "number": "33"},
		},
	}

	t.Run("SaveTeam", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/save-team", testUser, team)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		want := fmt.Sprintf("Team %s saved successfully", teamId)
		if rr.Body.String() != want {
			t.Errorf("Expected %q, got %q", want, rr.Body.String())
		}
	})

	t.Run("SaveTeamInvalid", func(t *testing.T) {
		bad := map[string]any{"id": "not-a-uuid", "name": "Bad"}
		rr := makeRequest(t, handler, http.MethodPost, "/api/save-team", testUser, bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for invalid team, got %d", rr.Code)
		}
	})

	t.Run("SaveTeamNotOwner", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/save-team", "other@example.com", team)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for non-owner update, got %d", rr.Code)
		}
	})

	t.Run("LoadTeam", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/load-team/"+teamId, testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var loaded Team
		if err := json.Unmarshal(rr.Body.Bytes(), &loaded); err != nil {
			t.Fatalf("Failed to decode team: %v", err)
		}
		if loaded.Name != "Test Team" || len(loaded.Roster) != 2 {
			t.Errorf("Unexpected team: %+v", loaded)
		}
		if loaded.Owner != testUser {
			t.Errorf("Expected owner %q, got %q", testUser, loaded.Owner)
		}

		rr = makeRequest(t, handler, http.MethodGet, "/api/load-team/"+teamId, "other@example.com", nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for non-owner, got %d", rr.Code)
		}
	})

	t.Run("ListTeams", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/list-teams", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Data []json.RawMessage `json:"data"`
			Meta listMeta          `json:"meta"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Meta.Total != 1 || len(resp.Data) != 1 {
			t.Errorf("Expected 1 team, got %+v", resp.Meta)
		}
	})

	t.Run("InitGameFromSavedTeam", func(t *testing.T) {
		setup := map[string]any{
			"date":       "2026-01-15",
			"homeTeamId": teamId,
			"awayTeam": map[string]any{
				"name": "Bulls",
				"abbr": "BUL",
				"players": []map[string]string{
					{"name": "Miller", "number": "31"},
				},
			},
		}
		rr := makeRequest(t, handler, http.MethodPost, "/api/game/init", testUser, setup)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		g := decodeGame(t, rr.Body.Bytes())
		if g.HomeTeam.Name != "Test Team" || len(g.HomeTeam.Players) != 2 {
			t.Errorf("Expected roster from saved team, got %+v", g.HomeTeam)
		}

		// Another user cannot build a game from this team.
		rr = makeRequest(t, handler, http.MethodPost, "/api/game/init", "other@example.com", setup)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for non-owner, got %d", rr.Code)
		}
	})

	t.Run("CheckDeletions", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodPost, "/api/delete-team", testUser,
			map[string]string{"id": teamId})
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = makeRequest(t, handler, http.MethodGet, "/api/load-team/"+teamId, testUser, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", rr.Code)
		}

		rr = makeRequest(t, handler, http.MethodPost, "/api/check-deletions", testUser,
			map[string][]string{"teamIds": {teamId}, "gameIds": {}})
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			DeletedGameIDs []string `json:"deletedGameIds"`
			DeletedTeamIDs []string `json:"deletedTeamIds"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(resp.DeletedTeamIDs) != 1 || resp.DeletedTeamIDs[0] != teamId {
			t.Errorf("Expected deleted team %s, got %+v", teamId, resp)
		}
	})
}

func TestServerAuth(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	t.Run("NoCookie", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game", "", nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 without auth, got %d", rr.Code)
		}
	})

	t.Run("InvalidUserID", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game", "not-an-email", nil)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for invalid user ID, got %d", rr.Code)
		}
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/game/init", testUser, nil)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rr.Code)
		}
		rr = makeRequest(t, handler, http.MethodPost, "/api/game", testUser, nil)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rr.Code)
		}
	})

	t.Run("SecurityHeaders", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/me", testUser, nil)
		if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("Expected X-Frame-Options DENY, got %q", got)
		}
		if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("Expected nosniff, got %q", got)
		}
		if got := rr.Header().Get("Cache-Control"); got != "private, no-cache, no-transform" {
			t.Errorf("Unexpected Cache-Control: %q", got)
		}
	})

	t.Run("MockLogin", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/login", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp["id"] != testUser {
			t.Errorf("Expected id %q, got %q", testUser, resp["id"])
		}
		cookies := rr.Result().Cookies()
		var found bool
		for _, c := range cookies {
			if c.Name == "mock_auth_user" && c.Value == testUser {
				found = true
			}
		}
		if !found {
			t.Error("Expected mock_auth_user cookie to be set")
		}
	})

	t.Run("Me", func(t *testing.T) {
		rr := makeRequest(t, handler, http.MethodGet, "/api/me", testUser, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var resp struct {
			ID         string `json:"id"`
			GamesOwned int    `json:"gamesOwned"`
			TeamsOwned int    `json:"teamsOwned"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.ID != testUser {
			t.Errorf("Expected id %q, got %q", testUser, resp.ID)
		}
	})
}

func TestServerSessionRestore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "server_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	handler, _, registry := NewServerHandler(Options{DataDir: tempDir, UseMockAuth: true})
	g := initGameRequest(t, handler, testUser)
	registry.StopGC()

	// A new handler over the same data dir picks up the snapshot.
	handler2, _, registry2 := NewServerHandler(Options{DataDir: tempDir, UseMockAuth: true})
	defer registry2.StopGC()

	rr := makeRequest(t, handler2, http.MethodGet, "/api/game", testUser, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 after restart, got %d: %s", rr.Code, rr.Body.String())
	}
	restored := decodeGame(t, rr.Body.Bytes())
	if restored.ID != g.ID {
		t.Errorf("Expected restored game %s, got %s", g.ID, restored.ID)
	}
}
