// Package project handles the sentence list a recording session works
// through: importing sentences from text/CSV/TSV files, persisting a
// project as JSON, and resolving the directory recordings are written to.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Sentence is one line of the corpus to be read aloud.
type Sentence struct {
	ID            int    `json:"id"`
	Text          string `json:"text"`
	Recorded      bool   `json:"recorded"`
	AudioFilePath string `json:"audio_file_path,omitempty"`
}

// Project is a persisted sentence list.
type Project struct {
	// Path is the JSON file backing this project.
	Path string `json:"-"`

	Sentences []Sentence `json:"sentences"`
}

// New creates a project directory under parentDir and an empty
// <name>.json inside it.
func New(parentDir, name string) (*Project, error) {
	dir := filepath.Join(parentDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	p := &Project{
		Path:      filepath.Join(dir, name+".json"),
		Sentences: []Sentence{},
	}
	if err := p.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// Open loads a project from its JSON file.
func Open(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	p := &Project{Path: path}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}
	return p, nil
}

// Save writes the project back to its JSON file.
func (p *Project) Save() error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := os.WriteFile(p.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}
	return nil
}

// Dir returns the directory containing the project file.
func (p *Project) Dir() string {
	return filepath.Dir(p.Path)
}

// ResolveDir resolves a project directory for recording output. Relative
// paths are rooted at the user home; the directory is created if absent.
func ResolveDir(projectDirectory string) (string, error) {
	dir := projectDirectory
	if !filepath.IsAbs(dir) {
		home, err := os.UserHomeDir()
		if err == nil {
			dir = filepath.Join(home, projectDirectory)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}
	return dir, nil
}
