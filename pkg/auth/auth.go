// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package auth attaches worker authentication to the outbound dial a
// loadgen-worker process makes when connecting to the coordinator's
// /ws/worker endpoint, the one outbound HTTP request this module's
// own processes make to each other (every other HTTP surface is the
// admin API's inbound side, handled by pkg/middleware instead).
package auth

import (
	"context"
	"net/http"
)

// Provider attaches authentication to a worker's dial request before
// the websocket upgrade.
type Provider interface {
	Authenticate(ctx context.Context, req *http.Request) error
	Type() string
}

// TokenAuth carries a shared worker token the coordinator's accept
// handler can check before completing the websocket upgrade.
type TokenAuth struct {
	token string
}

// NewTokenAuth returns a Provider that sets the worker token header.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

func (t *TokenAuth) Authenticate(ctx context.Context, req *http.Request) error {
	req.Header.Set("X-Loadgen-Worker-Token", t.token)
	return nil
}

func (t *TokenAuth) Type() string { return "token" }

// BasicAuth authenticates the dial with HTTP basic credentials,
// for deployments fronting the worker endpoint with a reverse proxy.
type BasicAuth struct {
	username string
	password string
}

func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{username: username, password: password}
}

func (b *BasicAuth) Authenticate(ctx context.Context, req *http.Request) error {
	req.SetBasicAuth(b.username, b.password)
	return nil
}

func (b *BasicAuth) Type() string { return "basic" }

// NoAuth is the default Provider for single-tenant or trusted-network
// deployments where no worker token is configured.
type NoAuth struct{}

func NewNoAuth() *NoAuth { return &NoAuth{} }

func (n *NoAuth) Authenticate(ctx context.Context, req *http.Request) error { return nil }

func (n *NoAuth) Type() string { return "none" }
