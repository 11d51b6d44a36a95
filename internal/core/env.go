package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gitmzc/claude-code-bridge/internal/core/osutil"
)

const projectEnvName = ".ccb.env"

// EnvResolver resolves ccb settings from the environment and the env files.
// It follows the precedence: process env > project .ccb.env > global
// ~/.ccb/ccb.env.
type EnvResolver struct {
	projectDir string
	globalFile string
}

// NewEnvResolver creates an EnvResolver for the given project directory.
// globalFile defaults to ~/.ccb/ccb.env if empty.
func NewEnvResolver(projectDir, globalFile string) *EnvResolver {
	if globalFile == "" {
		home, _ := os.UserHomeDir()
		globalFile = filepath.Join(home, stateDirName, "ccb.env")
	}
	return &EnvResolver{projectDir: projectDir, globalFile: globalFile}
}

// ProjectFile returns the project env file path.
func (r *EnvResolver) ProjectFile() string {
	return filepath.Join(r.projectDir, projectEnvName)
}

// Load exports the env file values into the process environment without
// overriding variables that are already set. Missing files are ignored.
func (r *EnvResolver) Load() error {
	for _, path := range []string{r.ProjectFile(), r.globalFile} {
		if !osutil.FileExists(path) {
			continue
		}
		// godotenv.Load never overrides, so the project file loaded first wins.
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		log.Debug().Str("file", path).Msg("env file loaded")
	}
	return nil
}

// EnvSource indicates where an env var value was resolved from.
type EnvSource string

const (
	EnvSourceProcess EnvSource = "process"
	EnvSourceProject EnvSource = "project"
	EnvSourceGlobal  EnvSource = "global"
)

// ResolvedEnvVar holds a resolved env var value and its source.
type ResolvedEnvVar struct {
	Name   string    `json:"name"`
	Value  string    `json:"value"`
	Source EnvSource `json:"source,omitempty"`
}

// ResolveEnvWithSource resolves the given names, returning both the value
// and where it was found. Names found nowhere have an empty Source.
//
// Call it before Load; afterwards every file value also looks like a
// process value.
func (r *EnvResolver) ResolveEnvWithSource(names []string) []ResolvedEnvVar {
	if len(names) == 0 {
		return nil
	}
	globalEnv := readEnvFile(r.globalFile)
	projectEnv := readEnvFile(r.ProjectFile())

	results := make([]ResolvedEnvVar, len(names))
	for i, name := range names {
		results[i] = ResolvedEnvVar{Name: name}
		if val, ok := os.LookupEnv(name); ok {
			results[i].Value, results[i].Source = val, EnvSourceProcess
			continue
		}
		if val, ok := projectEnv[name]; ok {
			results[i].Value, results[i].Source = val, EnvSourceProject
			continue
		}
		if val, ok := globalEnv[name]; ok {
			results[i].Value, results[i].Source = val, EnvSourceGlobal
		}
	}
	return results
}

// readEnvFile parses an env file; a missing or unreadable file yields nil.
func readEnvFile(path string) map[string]string {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil
	}
	return env
}

// WriteEnvVar sets one variable in an env file, keeping the others.
func WriteEnvVar(path, name, value string) error {
	env := readEnvFile(path)
	if env == nil {
		env = map[string]string{}
	}
	env[name] = value
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// EnsureGitignore adds entries to the project's .gitignore if not already
// present. Creates the .gitignore file if it does not exist. It returns
// the entries it added.
func EnsureGitignore(projectDir string, entries ...string) ([]string, error) {
	path := filepath.Join(projectDir, ".gitignore")
	data, err := osutil.ReadFileIfExists(path)
	if err != nil {
		return nil, fmt.Errorf("reading .gitignore: %w", err)
	}

	present := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		present[strings.TrimSpace(line)] = true
	}
	content := string(data)
	var added []string
	for _, e := range entries {
		if present[e] {
			continue
		}
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += e + "\n"
		present[e] = true
		added = append(added, e)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("writing .gitignore: %w", err)
	}
	return added, nil
}
