// Package handlers provides the admin and webhook HTTP API.
package handlers

import (
	"context"

	"go.uber.org/zap"

	"flatex_bot/internal/chat"
	"flatex_bot/internal/services"
	"flatex_bot/internal/session"
)

// CommandRunner executes a chat command line, replying through out.
type CommandRunner interface {
	Execute(ctx context.Context, sender, input string, out chat.Replier)
}

// StatusSource reports the brokerage session state.
type StatusSource interface {
	DebugInfo() session.DebugInfo
}

// Dependencies holds all handler dependencies.
type Dependencies struct {
	Commands     CommandRunner
	Status       StatusSource
	AuditService *services.AuditService
	WebhookToken string
	Logger       *zap.Logger

	// Per-IP limit on the token-protected routes.
	RatePerSec float64
	RateBurst  int
}

// NewDependencies creates a Dependencies container with default limits.
func NewDependencies() *Dependencies {
	return &Dependencies{RatePerSec: 0.5, RateBurst: 5}
}

// WithCommands sets the command runner.
func (d *Dependencies) WithCommands(c CommandRunner) *Dependencies {
	d.Commands = c
	return d
}

// WithStatus sets the session status source.
func (d *Dependencies) WithStatus(s StatusSource) *Dependencies {
	d.Status = s
	return d
}

// WithAuditService sets the audit service.
func (d *Dependencies) WithAuditService(s *services.AuditService) *Dependencies {
	d.AuditService = s
	return d
}

// WithWebhookToken sets the bearer token. An empty token disables the
// protected routes.
func (d *Dependencies) WithWebhookToken(token string) *Dependencies {
	d.WebhookToken = token
	return d
}

// WithLogger sets the logger.
func (d *Dependencies) WithLogger(l *zap.Logger) *Dependencies {
	d.Logger = l
	return d
}
