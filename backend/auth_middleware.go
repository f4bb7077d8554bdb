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
	"fmt"
	"log"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// jwtAuthMiddleware handles JWT authentication. Tokens are HMAC-signed
// with the shared secret and carried in a cookie. Requests without a
// valid token proceed as anonymous.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	if len(opts.JWTSecret) == 0 {
		log.Println("Warning: No JWT secret provided. JWT validation will fail unless MockAuth is used.")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookieName := opts.AuthCookieName
		if cookieName == "" {
			cookieName = "courtkeeper_auth"
		}
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			// No token provided, proceed as anonymous
			next.ServeHTTP(w, r)
			return
		}

		token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			if len(opts.JWTSecret) == 0 {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return opts.JWTSecret, nil
		})

		if err != nil || !token.Valid {
			// Invalid token (expired, bad sig, etc.) -> Anonymous.
			// Logged at debug level to avoid log spam from random probes.
			if opts.Debug {
				log.Printf("JWT Validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if email, ok := claims["email"].(string); ok && email != "" {
				ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(email))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// mockAuthMiddleware simulates the auth proxy by checking for a cookie
// and setting the UserID context. For testing purposes only.
func mockAuthMiddleware(opts Options, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("mock_auth_user")
		if err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(cookie.Value))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}
