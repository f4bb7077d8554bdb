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
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
)

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func parsePagination(r *http.Request) (int, int, string, string, string) {
	limit := 50
	offset := 0
	sortBy := r.URL.Query().Get("sortBy")
	order := r.URL.Query().Get("order")
	query := r.URL.Query().Get("q")

	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil {
			offset = val
		}
	}

	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset, sortBy, order, query
}

// Options represent server options.
type Options struct {
	Addr        string
	Cert        *tls.Certificate
	DataDir     string
	UseMockAuth bool
	Debug       bool
	GameStore   *GameStore
	TeamStore   *TeamStore
	Storage     *storage.Storage
	Registry    *Registry
	Listener    net.Listener

	UseProductionTimeouts bool

	// Auth Options
	AuthCookieName string
	JWTSecret      []byte
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	gameStore  *GameStore
	registry   *Registry
}

// Shutdown gracefully shuts down the server and flushes dirty state.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []string

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("http: %v", err))
	}
	if err := s.gameStore.FlushAll(); err != nil {
		errs = append(errs, fmt.Sprintf("flush: %v", err))
	}
	s.registry.StopGC()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

// SessionManager holds the live GameSession of each scorer. A session
// not yet in memory is restored from the user's current-game snapshot.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*GameSession
	store    *GameStore
}

func NewSessionManager(store *GameStore) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*GameSession),
		store:    store,
	}
}

// Session returns the owner's live session, restoring a persisted
// in-progress game when one exists.
func (sm *SessionManager) Session(owner string) *GameSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[owner]; ok {
		return s
	}

	s := NewGameSession()
	if g, err := sm.store.LoadCurrentGame(owner); err == nil {
		if !g.Completed {
			s.Resume(g)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: failed to restore session for %s: %v", maskEmail(owner), err)
	}
	sm.sessions[owner] = s
	return s
}

// Remove drops the owner's session from memory.
func (sm *SessionManager) Remove(owner string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, owner)
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	handler, store, registry := NewServerHandler(opts)

	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: handler,
	}
	if opts.UseProductionTimeouts {
		httpServer.ReadHeaderTimeout = 10 * time.Second
		httpServer.IdleTimeout = 2 * time.Minute
	}

	// TLS Config
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	// Start Server
	go func() {
		var err error
		if opts.Listener != nil {
			if httpServer.TLSConfig != nil {
				log.Printf("Starting HTTPS server on provided listener %s...", opts.Listener.Addr())
				err = httpServer.ServeTLS(opts.Listener, "", "")
			} else {
				log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
				err = httpServer.Serve(opts.Listener)
			}
		} else {
			log.Printf("Server starting on %s...", opts.Addr)
			if httpServer.TLSConfig != nil {
				err = httpServer.ListenAndServeTLS("", "")
			} else {
				err = httpServer.ListenAndServe()
			}
		}

		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return &Server{
		httpServer: httpServer,
		gameStore:  store,
		registry:   registry,
	}, nil
}

// GameSummary is one row of the game list response.
type GameSummary struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Location  string `json:"location"`
	Home      string `json:"home"`
	Away      string `json:"away"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
	Completed bool   `json:"completed"`
	Deleted   bool   `json:"deleted,omitempty"`
}

type listMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeJSONWithETag writes pre-marshaled JSON honoring If-None-Match.
func writeJSONWithETag(w http.ResponseWriter, r *http.Request, data []byte) {
	etag := generateETag(data)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId := getUserID(r)
	if userId == "" || !isValidEmail(userId) {
		http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
		return "", false
	}
	return userId, true
}

// sessionError maps GameSession failures to HTTP status codes.
func sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoGame):
		http.Error(w, "Not Found: "+err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrGameEnded), errors.Is(err, ErrNoSelection), errors.Is(err, ErrNothingToUndo):
		http.Error(w, "Conflict: "+err.Error(), http.StatusConflict)
	case errors.Is(err, ErrUnknownStat), errors.Is(err, ErrInvalidShot), errors.Is(err, ErrUnknownSide):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Internal Server Error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// NewServerHandler creates and configures the HTTP handler for the
// server, along with the stores it operates on.
func NewServerHandler(opts Options) (http.Handler, *GameStore, *Registry) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}

	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, nil)
	}

	store := opts.GameStore
	if store == nil {
		store = NewGameStore(opts.DataDir, opts.Storage)
	}
	store.Debug = opts.Debug

	tStore := opts.TeamStore
	if tStore == nil {
		tStore = NewTeamStore(opts.DataDir, opts.Storage)
	}

	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry(store, tStore)
	}

	hm := NewHubManager()
	sm := NewSessionManager(store)

	debugf := func(string, ...any) {}
	if opts.Debug {
		debugf = func(f string, a ...any) {
			log.Printf("[DEBUG BACKEND] "+f, a...)
		}
	}

	// syncSession persists the live snapshot and pushes it to watchers.
	syncSession := func(owner string, s *GameSession) {
		snap := s.Snapshot()
		if snap == nil {
			return
		}
		var g Game
		if err := json.Unmarshal(snap, &g); err != nil {
			log.Printf("Warning: failed to decode session snapshot for %s: %v", maskEmail(owner), err)
			return
		}
		g.Owner = owner
		if err := store.SaveCurrentGame(owner, &g); err != nil {
			log.Printf("Warning: failed to save current game for %s: %v", maskEmail(owner), err)
		}
		hm.BroadcastState(owner, snap)
	}

	// finalizeGame moves an ended game to the completed collection.
	finalizeGame := func(owner string, g *Game) error {
		g.Owner = owner
		if err := store.SaveGame(g); err != nil {
			return fmt.Errorf("SaveGame: %w", err)
		}
		registry.UpdateGame(g)
		if err := store.ClearCurrentGame(owner); err != nil {
			log.Printf("Warning: failed to clear current game for %s: %v", maskEmail(owner), err)
		}
		sm.Remove(owner)
		if data, err := json.Marshal(g); err == nil {
			hm.BroadcastState(owner, data)
		}
		return nil
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/game/init", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			GameSetup
			HomeTeamID string `json:"homeTeamId"`
			AwayTeamID string `json:"awayTeamId"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		// Saved rosters may stand in for inline ones.
		loadRoster := func(teamId string, dst *TeamSetup) bool {
			if teamId == "" {
				return true
			}
			if !isValidUUID(teamId) {
				http.Error(w, "Bad Request: teamId is missing or invalid", http.StatusBadRequest)
				return false
			}
			t, err := tStore.LoadTeam(teamId)
			if err != nil || t.DeletedAt != 0 {
				http.Error(w, "Not Found: Team not found", http.StatusNotFound)
				return false
			}
			if !canAccessTeam(userId, t) {
				http.Error(w, "Forbidden: You do not have access to this team", http.StatusForbidden)
				return false
			}
			dst.Name = t.Name
			dst.Abbr = t.Abbr
			dst.Players = t.Roster
			return true
		}
		if !loadRoster(req.HomeTeamID, &req.HomeTeam) || !loadRoster(req.AwayTeamID, &req.AwayTeam) {
			return
		}

		if err := ValidateGameSetup(req.GameSetup); err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}

		s := sm.Session(userId)
		g := s.InitGame(req.GameSetup)
		debugf("Initialized game %s for %s", g.ID, maskEmail(userId))
		syncSession(userId, s)

		writeJSONWithETag(w, r, s.Snapshot())
	})

	mux.HandleFunc("/api/game", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		snap := sm.Session(userId).Snapshot()
		if snap == nil {
			http.Error(w, "Not Found: No game in progress", http.StatusNotFound)
			return
		}
		writeJSONWithETag(w, r, snap)
	})

	mux.HandleFunc("/api/game/select", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			Team     string `json:"team"`
			PlayerID string `json:"playerId"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		s := sm.Session(userId)
		selected := s.SelectPlayer(req.Team, req.PlayerID)

		writeJSON(w, map[string]bool{"selected": selected})
	})

	mux.HandleFunc("/api/game/stat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			StatType StatType `json:"statType"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		s := sm.Session(userId)
		if err := s.RecordStat(req.StatType); err != nil {
			sessionError(w, err)
			return
		}
		syncSession(userId, s)

		writeJSONWithETag(w, r, s.Snapshot())
	})

	mux.HandleFunc("/api/game/shot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			PlayerID string   `json:"playerId"`
			Team     string   `json:"team"`
			ShotType StatType `json:"shotType"`
			Quality  int      `json:"quality"`
			Location string   `json:"location"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		s := sm.Session(userId)
		if err := s.RecordShot(req.PlayerID, req.Team, req.ShotType, req.Quality, req.Location); err != nil {
			sessionError(w, err)
			return
		}
		syncSession(userId, s)

		writeJSONWithETag(w, r, s.Snapshot())
	})

	mux.HandleFunc("/api/game/undo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			Team string `json:"team"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		s := sm.Session(userId)
		if err := s.UndoLastAction(req.Team); err != nil {
			sessionError(w, err)
			return
		}
		syncSession(userId, s)

		writeJSONWithETag(w, r, s.Snapshot())
	})

	mux.HandleFunc("/api/game/possession/end", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		s := sm.Session(userId)
		if err := s.EndCurrentPossession(); err != nil {
			sessionError(w, err)
			return
		}
		syncSession(userId, s)

		writeJSONWithETag(w, r, s.Snapshot())
	})

	mux.HandleFunc("/api/game/period/end", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		s := sm.Session(userId)
		g, err := s.EndPeriod()
		if err != nil {
			sessionError(w, err)
			return
		}
		if g != nil {
			// Final period: the game ended.
			if err := finalizeGame(userId, g); err != nil {
				log.Printf("Internal Server Error finalizing game %s: %v", g.ID, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]any{"completed": true, "gameId": g.ID})
			return
		}
		syncSession(userId, s)

		writeJSONWithETag(w, r, s.Snapshot())
	})

	mux.HandleFunc("/api/game/end", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		s := sm.Session(userId)
		g, err := s.EndGame()
		if err != nil {
			sessionError(w, err)
			return
		}
		if err := finalizeGame(userId, g); err != nil {
			log.Printf("Internal Server Error finalizing game %s: %v", g.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]any{"completed": true, "gameId": g.ID})
	})

	mux.HandleFunc("/api/game/boxscore", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		box, err := sm.Session(userId).BoxScore(r.URL.Query().Get("team"))
		if err != nil {
			sessionError(w, err)
			return
		}

		data, err := json.Marshal(box)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSONWithETag(w, r, data)
	})

	mux.HandleFunc("/api/game/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		dash, err := sm.Session(userId).DashboardData()
		if err != nil {
			sessionError(w, err)
			return
		}

		data, err := json.Marshal(dash)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSONWithETag(w, r, data)
	})

	mux.HandleFunc("/api/game/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		csv, err := sm.Session(userId).ExportCSV()
		if err != nil {
			sessionError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\"boxscore.csv\"")
		w.Write([]byte(csv))
	})

	mux.HandleFunc("/api/export/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		gameId := strings.TrimPrefix(r.URL.Path, "/api/export/")
		if gameId == "" || !isValidUUID(gameId) {
			http.Error(w, "Bad Request: gameId is missing or invalid", http.StatusBadRequest)
			return
		}

		g, err := store.LoadGame(gameId)
		if err != nil || g.DeletedAt != 0 {
			http.Error(w, "Not Found: Game not found", http.StatusNotFound)
			return
		}
		if !canAccessGame(userId, g) {
			http.Error(w, "Forbidden: You do not have access to this game", http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"boxscore-%s.csv\"", g.Date))
		w.Write([]byte(ExportCSV(g)))
	})

	mux.HandleFunc("/api/load/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		gameId := strings.TrimPrefix(r.URL.Path, "/api/load/")
		if gameId == "" || !isValidUUID(gameId) {
			http.Error(w, "Bad Request: gameId is missing or invalid", http.StatusBadRequest)
			return
		}

		g, err := store.LoadGame(gameId)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "Not Found: Game not found", http.StatusNotFound)
			} else {
				log.Printf("Internal Server Error during LoadGame: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}
		if g.DeletedAt != 0 {
			http.Error(w, "Not Found: Game not found", http.StatusNotFound)
			return
		}
		if !canAccessGame(userId, g) {
			http.Error(w, "Forbidden: You do not have access to this game", http.StatusForbidden)
			return
		}

		data, err := json.Marshal(g)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSONWithETag(w, r, data)
	})

	mux.HandleFunc("/api/list-games", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var knownIds []string
		if r.Method == http.MethodPost {
			var body struct {
				KnownIds []string `json:"knownIds"`
			}
			// An empty body just means no known ids.
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&body); err == nil {
				knownIds = body.KnownIds
			}
		} else if r.Method != http.MethodGet {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}

		limit, offset, sortBy, order, query := parsePagination(r)
		accessibleIds := registry.ListGames(userId, sortBy, order, query)
		total := len(accessibleIds)

		// Pagination Logic
		var pageIds []string
		if offset < total {
			end := offset + limit
			if end > total {
				end = total
			}
			pageIds = accessibleIds[offset:end]
		}

		games := make([]GameSummary, 0)
		for _, gid := range pageIds {
			meta, ok := registry.GameMeta(gid)
			if !ok {
				continue
			}
			games = append(games, GameSummary{
				ID:        meta.ID,
				Date:      meta.Date,
				Location:  meta.Location,
				Home:      meta.Home,
				Away:      meta.Away,
				HomeScore: meta.HomeScore,
				AwayScore: meta.AwayScore,
				Completed: meta.Completed,
			})
		}

		// Report deleted games among the client's known IDs.
		for _, kid := range knownIds {
			if registry.IsGameDeleted(kid) {
				games = append(games, GameSummary{ID: kid, Deleted: true})
			}
		}

		respData := struct {
			Data []GameSummary `json:"data"`
			Meta listMeta      `json:"meta"`
		}{
			Data: games,
			Meta: listMeta{Total: total, Offset: offset, Limit: limit},
		}

		response, err := json.Marshal(respData)
		if err != nil {
			log.Printf("Internal Server Error during JSON Marshal: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSONWithETag(w, r, response)
	})

	mux.HandleFunc("/api/delete-game", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var data struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&data); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		gameId := data.ID
		if gameId == "" || !isValidUUID(gameId) {
			http.Error(w, "Bad Request: gameId is missing or invalid", http.StatusBadRequest)
			return
		}

		// Authorization Check
		if g, err := store.LoadGame(gameId); err == nil {
			if !canAccessGame(userId, g) {
				http.Error(w, "Forbidden: Only the owner can delete this game", http.StatusForbidden)
				return
			}
		}

		if err := store.DeleteGame(gameId); err != nil {
			log.Printf("Internal Server Error during DeleteGame: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		registry.DeleteGame(gameId)

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Game %s deleted successfully", gameId)
	})

	mux.HandleFunc("/api/save-team", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var t Team
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&t); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		if err := ValidateTeam(&t); err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}

		// Authorization Check
		existingTeam, err := tStore.LoadTeam(t.ID)
		if err == nil && existingTeam.DeletedAt == 0 {
			if !canAccessTeam(userId, existingTeam) {
				http.Error(w, "Forbidden: You do not have permission to manage this team", http.StatusForbidden)
				return
			}
		}

		t.Owner = userId
		t.Schema = SchemaVersionV1
		t.UpdatedAt = time.Now().UnixMilli()

		if err := tStore.SaveTeam(&t); err != nil {
			log.Printf("Internal Server Error during SaveTeam: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		registry.UpdateTeam(&t)

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Team %s saved successfully", t.ID)
	})

	mux.HandleFunc("/api/list-teams", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var knownIds []string
		if r.Method == http.MethodPost {
			var body struct {
				KnownIds []string `json:"knownIds"`
			}
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&body); err == nil {
				knownIds = body.KnownIds
			}
		} else if r.Method != http.MethodGet {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}

		limit, offset, sortBy, order, query := parsePagination(r)
		accessibleIds := registry.ListTeams(userId, sortBy, order, query)
		total := len(accessibleIds)

		// Pagination Logic
		var pageIds []string
		if offset < total {
			end := offset + limit
			if end > total {
				end = total
			}
			pageIds = accessibleIds[offset:end]
		}

		teams := make([]json.RawMessage, 0)
		for _, tid := range pageIds {
			t, err := tStore.LoadTeam(tid)
			if err != nil {
				continue
			}
			data, _ := json.Marshal(t)
			teams = append(teams, json.RawMessage(data))
		}

		for _, kid := range knownIds {
			if registry.IsTeamDeleted(kid) {
				tombstone := map[string]any{
					"id":      kid,
					"deleted": true,
				}
				data, _ := json.Marshal(tombstone)
				teams = append(teams, json.RawMessage(data))
			}
		}

		respData := struct {
			Data []json.RawMessage `json:"data"`
			Meta listMeta          `json:"meta"`
		}{
			Data: teams,
			Meta: listMeta{Total: total, Offset: offset, Limit: limit},
		}

		response, err := json.Marshal(respData)
		if err != nil {
			log.Printf("Internal Server Error during JSON Marshal: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSONWithETag(w, r, response)
	})

	mux.HandleFunc("/api/load-team/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		teamId := strings.TrimPrefix(r.URL.Path, "/api/load-team/")
		if teamId == "" || !isValidUUID(teamId) {
			http.Error(w, "Bad Request: teamId is missing or invalid", http.StatusBadRequest)
			return
		}

		t, err := tStore.LoadTeam(teamId)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "Not Found: Team not found", http.StatusNotFound)
			} else {
				log.Printf("Internal Server Error during LoadTeam: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
			return
		}
		if t.DeletedAt != 0 {
			http.Error(w, "Not Found: Team not found", http.StatusNotFound)
			return
		}
		if !canAccessTeam(userId, t) {
			http.Error(w, "Forbidden: You do not have access to this team", http.StatusForbidden)
			return
		}

		data, err := json.Marshal(t)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSONWithETag(w, r, data)
	})

	mux.HandleFunc("/api/delete-team", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var data struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&data); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}

		teamId := data.ID
		if teamId == "" || !isValidUUID(teamId) {
			http.Error(w, "Bad Request: teamId is missing or invalid", http.StatusBadRequest)
			return
		}

		// Authorization Check
		if t, err := tStore.LoadTeam(teamId); err == nil {
			if !canAccessTeam(userId, t) {
				http.Error(w, "Forbidden: You do not have permission to delete this team", http.StatusForbidden)
				return
			}
		}

		if err := tStore.DeleteTeam(teamId); err != nil {
			log.Printf("Internal Server Error during DeleteTeam: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		registry.DeleteTeam(teamId)

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Team %s deleted successfully", teamId)
	})

	mux.HandleFunc("/api/check-deletions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			GameIDs []string `json:"gameIds"`
			TeamIDs []string `json:"teamIds"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1048576)).Decode(&req); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}

		var resp struct {
			DeletedGameIDs []string `json:"deletedGameIds"`
			DeletedTeamIDs []string `json:"deletedTeamIds"`
		}
		resp.DeletedGameIDs = make([]string, 0)
		resp.DeletedTeamIDs = make([]string, 0)

		for _, gid := range req.GameIDs {
			// Report as deleted if tombstoned or no longer accessible.
			if registry.IsGameDeleted(gid) || (registry.GameExists(gid) && !registry.HasGameAccess(userId, gid)) {
				resp.DeletedGameIDs = append(resp.DeletedGameIDs, gid)
			}
		}
		for _, tid := range req.TeamIDs {
			if registry.IsTeamDeleted(tid) || (registry.TeamExists(tid) && !registry.HasTeamAccess(userId, tid)) {
				resp.DeletedTeamIDs = append(resp.DeletedTeamIDs, tid)
			}
		}

		writeJSON(w, resp)
	})

	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}

		writeJSON(w, map[string]any{
			"id":         userId,
			"gamesOwned": registry.CountOwnedGames(userId),
			"teamsOwned": registry.CountOwnedTeams(userId),
		})
	})

	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hm, w, r)
	})

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if opts.UseMockAuth {
			http.SetCookie(w, &http.Cookie{
				Name:  "mock_auth_user",
				Value: "test@example.com",
				Path:  "/",
			})
			writeJSON(w, map[string]string{"id": "test@example.com"})
			return
		}
		userId, ok := requireUser(w, r)
		if !ok {
			return
		}
		writeJSON(w, map[string]string{"id": userId})
	})

	handler := http.Handler(mux)
	if opts.UseMockAuth {
		handler = mockAuthMiddleware(opts, handler)
	} else {
		handler = jwtAuthMiddleware(opts, handler)
	}
	handler = loggingMiddleware(handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)

	return handler, store, registry
}

// cacheControlMiddleware keeps API responses out of shared caches.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=300, proxy-revalidate, no-transform")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
