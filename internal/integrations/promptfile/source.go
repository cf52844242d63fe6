// Package promptfile serves chat configuration from a local YAML file. It
// is meant for local runs where neither SSM nor a seeded KV table exists.
//
//	global_prompt: |
//	  Always answer in Japanese.
//	credential: sk-...
//	characters:
//	  A: You are a cheerful shopkeeper.
//	  B: You are a retired detective.
package promptfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"character-chat/internal/domain"
)

const characterPrefix = "character:"

type document struct {
	GlobalPrompt string            `yaml:"global_prompt"`
	Credential   string            `yaml:"credential"`
	Characters   map[string]string `yaml:"characters"`
}

// Source answers GetParameter from an in-memory copy of the file.
type Source struct {
	values map[string]string
}

// Load reads and parses path. credentialKey is the parameter name the
// orchestrator uses for the upstream credential.
func Load(path, credentialKey string) (*Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("promptfile: read %s: %w", path, err)
	}
	return Parse(raw, credentialKey)
}

func Parse(raw []byte, credentialKey string) (*Source, error) {
	credentialKey = strings.TrimSpace(credentialKey)
	if credentialKey == "" {
		return nil, errors.New("promptfile: credential key must not be empty")
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("promptfile: parse: %w", err)
	}

	values := make(map[string]string, len(doc.Characters)+2)
	if doc.GlobalPrompt != "" {
		values["global_prompt"] = doc.GlobalPrompt
	}
	if doc.Credential != "" {
		values[credentialKey] = doc.Credential
	}
	for id, prompt := range doc.Characters {
		id = strings.TrimSpace(id)
		if id == "" || strings.TrimSpace(prompt) == "" {
			continue
		}
		values[characterPrefix+id] = prompt
	}
	return &Source{values: values}, nil
}

func (s *Source) GetParameter(_ context.Context, name string) (string, error) {
	v, ok := s.values[strings.TrimSpace(name)]
	if !ok {
		return "", fmt.Errorf("promptfile: parameter %q: %w", name, domain.ErrNotFound)
	}
	return v, nil
}

// Characters lists the character ids defined in the file.
func (s *Source) Characters() []string {
	ids := make([]string, 0)
	for k := range s.values {
		if id, ok := strings.CutPrefix(k, characterPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
