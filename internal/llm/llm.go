// Package llm is the text-generation boundary of the pipeline. Stages see only
// the Generator interface; provider wiring goes through CloudWeGo Eino chat
// models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Generator turns a system instruction and user content into text. It does not
// retry; retries are the pipeline's job.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, system, user string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// GenerationError wraps a failed generation call with the model role that
// made it.
type GenerationError struct {
	Role string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Role, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ChatGenerator adapts an Eino chat model to Generator.
type ChatGenerator struct {
	role  string
	model model.BaseChatModel
}

// NewChatGenerator wraps m. role labels errors ("general", "docs", "coder").
func NewChatGenerator(role string, m model.BaseChatModel) *ChatGenerator {
	return &ChatGenerator{role: role, model: m}
}

// Generate sends a system + user message pair and returns the trimmed reply.
func (g *ChatGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", &GenerationError{Role: g.role, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &GenerationError{Role: g.role, Err: ErrEmptyResponse}
	}
	return strings.TrimSpace(resp.Content), nil
}

// Model roles.
const (
	RoleGeneral = "general"
	RoleDocs    = "docs"
	RoleCoder   = "coder"
)

// Models bundles the generators for each role. General writes stories and
// runs the security review, Docs writes design documents and discovers worker
// roles, Coder handles code, tests, code review and QA.
type Models struct {
	General Generator
	Docs    Generator
	Coder   Generator
}

// Same returns Models that use g for every role.
func Same(g Generator) Models {
	return Models{General: g, Docs: g, Coder: g}
}

// Validate reports a missing generator.
func (m Models) Validate() error {
	switch {
	case m.General == nil:
		return fmt.Errorf("%s model not configured", RoleGeneral)
	case m.Docs == nil:
		return fmt.Errorf("%s model not configured", RoleDocs)
	case m.Coder == nil:
		return fmt.Errorf("%s model not configured", RoleCoder)
	}
	return nil
}
