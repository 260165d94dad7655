// Package prompts loads the prompt pack and renders templates for the
// analysis pipeline. The pack is an injected collaborator: components
// receive a *Library, never a process global.
package prompts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var embeddedPack []byte

// packSchema describes the minimum structure a prompt pack must have.
const packSchema = `{
	"type": "object",
	"required": ["scene_extraction", "live_session"],
	"properties": {
		"scene_extraction": {
			"type": "object",
			"required": ["event_description"],
			"properties": {"event_description": {"type": "string"}}
		},
		"live_session": {
			"type": "object",
			"required": ["narrative_aggregator", "contextual_qa"],
			"properties": {
				"narrative_aggregator": {"type": "string"},
				"contextual_qa": {"type": "string"}
			}
		},
		"prompt_mode": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`

// ErrNotFound signals an unknown prompt key
var ErrNotFound = errors.New("prompts: prompt key not found")

// Library holds the loaded prompt pack
type Library struct {
	mu      sync.RWMutex
	pack    map[string]interface{}
	path    string
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewEmbedded loads the prompt pack compiled into the binary
func NewEmbedded(logger zerolog.Logger) (*Library, error) {
	pack, err := parsePack(embeddedPack)
	if err != nil {
		return nil, fmt.Errorf("embedded prompt pack: %w", err)
	}

	return &Library{
		pack:   pack,
		logger: logger.With().Str("module", "prompts").Logger(),
	}, nil
}

// NewFromFile loads a prompt pack from disk
func NewFromFile(path string, logger zerolog.Logger) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt pack: %w", err)
	}

	pack, err := parsePack(data)
	if err != nil {
		return nil, fmt.Errorf("prompt pack %s: %w", path, err)
	}

	return &Library{
		pack:   pack,
		path:   path,
		logger: logger.With().Str("module", "prompts").Logger(),
	}, nil
}

// parsePack decodes YAML and validates the pack structure
func parsePack(data []byte) (map[string]interface{}, error) {
	var pack map[string]interface{}
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	jsonData, err := json.Marshal(pack)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize pack: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(packSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate pack: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("invalid prompt pack: %s", strings.Join(details, "; "))
	}

	return pack, nil
}

// Render looks up a prompt by dotted key and renders it with the given
// variables.
func (l *Library) Render(key string, vars map[string]interface{}) (string, error) {
	l.mu.RLock()
	raw, err := lookup(l.pack, key)
	l.mu.RUnlock()
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(key).Option("missingkey=zero").Parse(raw)
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", key, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("prompt %s: %w", key, err)
	}

	return buf.String(), nil
}

// Has reports whether the pack contains the dotted key
func (l *Library) Has(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, err := lookup(l.pack, key)
	return err == nil
}

func lookup(pack map[string]interface{}, key string) (string, error) {
	parts := strings.Split(key, ".")
	var node interface{} = pack
	for _, part := range parts {
		m, ok := node.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		node, ok = m[part]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
	}

	raw, ok := node.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrNotFound, key)
	}
	return raw, nil
}

// Watch reloads the pack when its file changes. No-op for embedded packs.
func (l *Library) Watch() error {
	if l.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch prompt pack: %w", err)
	}

	l.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				l.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error().Err(err).Msg("Prompt pack watcher error")
			}
		}
	}()

	l.logger.Info().Str("path", l.path).Msg("Watching prompt pack")
	return nil
}

func (l *Library) reload() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to re-read prompt pack, keeping current pack")
		return
	}

	pack, err := parsePack(data)
	if err != nil {
		l.logger.Error().Err(err).Msg("Invalid prompt pack on reload, keeping current pack")
		return
	}

	l.mu.Lock()
	l.pack = pack
	l.mu.Unlock()

	l.logger.Info().Str("path", l.path).Msg("Prompt pack reloaded")
}

// Close stops the watcher if one is running
func (l *Library) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
