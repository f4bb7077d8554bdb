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
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "websocket_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	handler, _, registry := NewServerHandler(Options{
		DataDir:     tempDir,
		UseMockAuth: true,
	})
	t.Cleanup(registry.StopGC)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server, user string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	header := http.Header{}
	if user != "" {
		header.Set("Cookie", "mock_auth_user="+user)
	}
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return msg
}

// waitRegistered round-trips a ping so the test knows the client made it
// into the hub before triggering broadcasts.
func waitRegistered(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.WriteJSON(Message{Type: "PING"}); err != nil {
		t.Fatalf("Failed to write PING: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "PONG" {
		t.Fatalf("Expected PONG, got %q", msg.Type)
	}
}

func postAsUser(t *testing.T, server *httptest.Server, path, user string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "mock_auth_user", Value: user})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestWebSocketStateBroadcast(t *testing.T) {
	server := newTestWSServer(t)

	conn, _, err := dialWS(t, server, testUser)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitRegistered(t, conn)

	resp := postAsUser(t, server, "/api/game/init", testUser, validSetup())
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("init: expected 200, got %d", resp.StatusCode)
	}

	msg := readMessage(t, conn)
	if msg.Type != MsgTypeState {
		t.Fatalf("Expected STATE, got %q", msg.Type)
	}
	var g Game
	if err := json.Unmarshal(msg.State, &g); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if g.HomeTeam.Name != "Hawks" {
		t.Errorf("Expected home team Hawks, got %q", g.HomeTeam.Name)
	}

	// A second client joining late gets the snapshot right away.
	conn2, _, err := dialWS(t, server, testUser)
	if err != nil {
		t.Fatalf("Second dial failed: %v", err)
	}
	defer conn2.Close()

	msg = readMessage(t, conn2)
	if msg.Type != MsgTypeState {
		t.Fatalf("Expected replayed STATE, got %q", msg.Type)
	}
	var g2 Game
	if err := json.Unmarshal(msg.State, &g2); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if g2.ID != g.ID {
		t.Errorf("Expected same game %s, got %s", g.ID, g2.ID)
	}
}

func TestWebSocketUnknownMessage(t *testing.T) {
	server := newTestWSServer(t)

	conn, _, err := dialWS(t, server, testUser)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Message{Type: "BOGUS"}); err != nil {
		t.Fatalf("Failed to write message: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != MsgTypeError {
		t.Errorf("Expected ERROR, got %q", msg.Type)
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	server := newTestWSServer(t)

	_, resp, err := dialWS(t, server, "")
	if err == nil {
		t.Fatal("Expected handshake to fail without auth")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 handshake response, got %+v", resp)
	}
}
