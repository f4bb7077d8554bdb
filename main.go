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

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/kelseyhightower/envconfig"
	"github.com/ttbt-io/courtkeeper/backend"
)

var (
	addr           = flag.String("addr", ":8080", "The TCP address to listen to")
	useMockAuth    = flag.Bool("use-mock-auth", false, "Use Mock Authentication. For testing purposes only.")
	debugMode      = flag.Bool("debug", false, "Enable debug mode")
	dataDir        = flag.String("data-dir", "data", "Directory for game and team data")
	tlsCert        = flag.String("tls-cert", "", "Path to main HTTP TLS certificate")
	tlsKey         = flag.String("tls-key", "", "Path to main HTTP TLS key")
	authCookieName = flag.String("auth-cookie-name", "courtkeeper_auth", "Name of the cookie containing the JWT")
)

// secrets are never accepted as flags. They come from the environment so
// they don't leak into process listings or shell history.
type secrets struct {
	MasterKey string `envconfig:"CK_MASTER_KEY"`
	JWTSecret string `envconfig:"CK_JWT_SECRET"`
}

// main starts the web server and registers the API handlers.
func main() {
	flag.Parse()

	var sec secrets
	if err := envconfig.Process("", &sec); err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}

	var mainTLSCert *tls.Certificate
	if *tlsCert != "" && *tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatalf("Failed to load main TLS cert/key: %v", err)
		}
		mainTLSCert = &cert
	}

	// Initialize Encryption Key and Storage
	var masterKey crypto.MasterKey
	if sec.MasterKey != "" {
		keyFile := filepath.Join(*dataDir, "master.key")
		// Ensure data dir exists for key file
		os.MkdirAll(*dataDir, 0755)

		var err error
		masterKey, err = crypto.ReadMasterKey([]byte(sec.MasterKey), keyFile)
		if err != nil {
			if os.IsNotExist(err) {
				log.Println("Initializing new master encryption key...")
				masterKey, err = crypto.CreateMasterKey()
				if err != nil {
					log.Fatalf("Failed to create master key: %v", err)
				}
				if err := masterKey.Save([]byte(sec.MasterKey), keyFile); err != nil {
					log.Fatalf("Failed to save master key: %v", err)
				}
			} else {
				log.Fatalf("Failed to read master key: %v", err)
			}
		} else {
			log.Println("Loaded master encryption key.")
		}
	} else {
		keyFile := filepath.Join(*dataDir, "master.key")
		if _, err := os.Stat(keyFile); err == nil {
			log.Fatalf("Critical Security Error: %s exists but CK_MASTER_KEY is not set. Refusing to start in unencrypted mode to prevent data corruption or exposure.", keyFile)
		}
		log.Println("Warning: No CK_MASTER_KEY provided. Data will be stored UNENCRYPTED.")
	}

	if !*useMockAuth && sec.JWTSecret == "" {
		log.Fatal("CK_JWT_SECRET is required unless --use-mock-auth is set")
	}

	store := storage.New(*dataDir, masterKey)
	store.EnableCompression(true)

	server, err := backend.StartServer(backend.Options{
		Addr:                  *addr,
		Cert:                  mainTLSCert,
		DataDir:               *dataDir,
		UseMockAuth:           *useMockAuth,
		Debug:                 *debugMode,
		Storage:               store,
		UseProductionTimeouts: true,
		AuthCookieName:        *authCookieName,
		JWTSecret:             []byte(sec.JWTSecret),
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}
