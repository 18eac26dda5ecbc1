package stage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/prompt"
)

// errNoRoles marks a role-discovery answer with no usable lines.
var errNoRoles = errors.New("no worker roles identified")

var listMarkerRe = regexp.MustCompile(`^(?:[-*+•]\s*|\d+[.)]\s*|#+\s*)+`)

// ParseRoles turns a one-role-per-line answer into role names. List markers,
// emphasis and trailing colons are stripped; blank lines and case-insensitive
// duplicates are dropped. limit > 0 caps the result.
func ParseRoles(text string, limit int) []string {
	var roles []string
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		role := strings.TrimSpace(line)
		role = listMarkerRe.ReplaceAllString(role, "")
		role = strings.Trim(role, "*_` ")
		role = strings.TrimSuffix(role, ":")
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		key := strings.ToLower(role)
		if seen[key] {
			continue
		}
		seen[key] = true
		roles = append(roles, role)
		if limit > 0 && len(roles) == limit {
			break
		}
	}
	return roles
}

// GenerateCode discovers the worker roles for the design and composes each
// role's task. Code from any earlier cycle is discarded; the feedback log is
// carried into every task.
func (e *Engine) GenerateCode(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if strings.TrimSpace(s.DesignDoc) == "" {
		e.logf("no design document; skipping code generation")
		return s, nil
	}
	attempt := s.CodeGenAttempts + 1
	e.logf("identifying worker roles (cycle %d)", attempt)

	out := s.Clone()
	out.CodeGenAttempts = attempt
	out.WorkerTasks = nil
	out.GeneratedCode = nil

	tasks, err := e.workerTasks(ctx, s)
	if err != nil {
		e.log.Warn("worker role discovery failed", "attempt", attempt, "error", err)
		return out.AppendFeedback(errorEntry("Code Generation", attempt, err)), nil
	}
	e.logf("workers assigned: %s", strings.Join(tasks.Roles(), ", "))
	out.WorkerTasks = tasks
	return out, nil
}

func (e *Engine) workerTasks(ctx context.Context, s pipeline.State) (pipeline.CodeMap, error) {
	system, user, err := e.prompts.Build(prompt.Roles, prompt.Vars{"design_doc": s.DesignDoc})
	if err != nil {
		return nil, err
	}
	answer, err := e.models.Docs.Generate(ctx, system, user)
	if err != nil {
		return nil, err
	}
	roles := ParseRoles(answer, e.maxWorkers)
	if len(roles) == 0 {
		return nil, errNoRoles
	}

	taskTmpl, err := e.prompts.Load(prompt.WorkerTask)
	if err != nil {
		return nil, err
	}
	feedback := priorFeedback(s)
	var tasks pipeline.CodeMap
	for _, role := range roles {
		task, err := prompt.Render(taskTmpl, prompt.Vars{
			"design_doc": s.DesignDoc,
			"role":       role,
			"feedback":   feedback,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prompt.WorkerTask, err)
		}
		tasks = tasks.Set(role, strings.TrimSpace(task))
	}
	return tasks, nil
}

// CollectCode runs one worker per role, concurrently, and gathers the code in
// role order. Roles whose call fails are left out and logged.
func (e *Engine) CollectCode(ctx context.Context, s pipeline.State) (pipeline.State, error) {
	if s.WorkerTasks.Len() == 0 {
		e.logf("no worker tasks; skipping code collection")
		return s, nil
	}
	tasks := s.WorkerTasks
	results := e.fanOut(ctx, tasks.Len(), func(ctx context.Context, i int) (string, error) {
		role, task := tasks[i].Role, tasks[i].Text
		e.logf("%s code generation", strings.ToUpper(role))
		system, user, err := e.prompts.Build(prompt.Worker, prompt.Vars{"role": role, "task": task})
		if err != nil {
			return "", err
		}
		return e.models.Coder.Generate(ctx, system, user)
	})

	out := s.Clone()
	var code pipeline.CodeMap
	for i, r := range results {
		role := tasks[i].Role
		if r.err != nil {
			e.log.Warn("worker failed", "role", role, "error", r.err)
			out = out.AppendFeedback(errorEntry(role+" Code", s.CodeGenAttempts, r.err))
			continue
		}
		code = code.Set(role, r.text)
	}
	out.GeneratedCode = code
	e.capture(pipeline.StageCollectCode, s.CodeGenAttempts, code.Render())
	e.logf("collected code for %d/%d roles", code.Len(), tasks.Len())
	return out, nil
}
