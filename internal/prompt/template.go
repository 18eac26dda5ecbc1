package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	varRe    = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
)

const ifClose = "{{/if}}"

// Vars maps template variable names to values.
type Vars map[string]string

// Render expands tmpl. {{name}} is replaced with its value and a missing
// variable is an error. {{#if name}}...{{/if}} keeps its body only when name
// is set and non-empty; blocks may nest.
func Render(tmpl string, vars Vars) (string, error) {
	out, err := expandConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	missing := map[string]bool{}
	out = varRe.ReplaceAllStringFunc(out, func(match string) string {
		name := varRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing[name] = true
		return match
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("missing template variables: %s", strings.Join(names, ", "))
	}
	return out, nil
}

// expandConditionals resolves the innermost {{#if}} block before each
// {{/if}} until none remain.
func expandConditionals(tmpl string, vars Vars) (string, error) {
	out := tmpl
	for {
		closeAt := strings.Index(out, ifClose)
		if closeAt < 0 {
			break
		}
		opens := ifOpenRe.FindAllStringSubmatchIndex(out[:closeAt], -1)
		if len(opens) == 0 {
			return "", fmt.Errorf("dangling %s without matching {{#if}}", ifClose)
		}
		open := opens[len(opens)-1]
		name := out[open[2]:open[3]]

		body := ""
		if vars[name] != "" {
			body = out[open[1]:closeAt]
		}
		out = out[:open[0]] + body + out[closeAt+len(ifClose):]
	}
	if loc := ifOpenRe.FindString(out); loc != "" {
		return "", fmt.Errorf("unclosed conditional block: %s", loc)
	}
	return out, nil
}

// Set resolves stage templates, preferring files in an override directory
// over the compiled-in defaults.
type Set struct {
	dir string
}

// NewSet returns a Set that looks in dir before the built-ins. An empty dir
// uses built-ins only.
func NewSet(dir string) *Set {
	return &Set{dir: dir}
}

// Dir returns the override directory.
func (s *Set) Dir() string { return s.dir }

// Load returns the template text for name.
func (s *Set) Load(name string) (string, error) {
	if s != nil && s.dir != "" {
		path := filepath.Join(s.dir, name)
		if rel, err := filepath.Rel(s.dir, path); err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("template name %q escapes %s", name, s.dir)
		}
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	if tmpl, ok := builtinTemplates[name]; ok {
		return tmpl, nil
	}
	return "", fmt.Errorf("template %q not found", name)
}

// Build renders the system and user templates of a stage prompt.
func (s *Set) Build(p Name, vars Vars) (system, user string, err error) {
	sysTmpl, err := s.Load(p.System())
	if err != nil {
		return "", "", err
	}
	userTmpl, err := s.Load(p.User())
	if err != nil {
		return "", "", err
	}
	if system, err = Render(sysTmpl, vars); err != nil {
		return "", "", fmt.Errorf("%s: %w", p.System(), err)
	}
	if user, err = Render(userTmpl, vars); err != nil {
		return "", "", fmt.Errorf("%s: %w", p.User(), err)
	}
	return strings.TrimSpace(system), strings.TrimSpace(user), nil
}

// DefaultDir returns ~/.sdlc/templates, or "" when the home directory is
// unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sdlc", "templates")
}

// Install writes the built-in templates into dir, leaving existing files
// untouched. It returns the names written.
func Install(dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("no template directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	var written []string
	for _, name := range Names() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(builtinTemplates[name]), 0o644); err != nil {
			return written, fmt.Errorf("write template %q: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// Names lists the built-in template file names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtinTemplates))
	for n := range builtinTemplates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
