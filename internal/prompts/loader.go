// Package prompts holds the model prompt templates. Templates live in JSON files
// embedded at compile time and use {{.Key}} placeholders.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ExtractionFile holds the metadata extraction prompts.
const ExtractionFile = "extraction.json"

// Keys in ExtractionFile.
const (
	KeyExtractMetadata = "extract-metadata"
	KeyFieldSearch     = "field-search"
)

//go:embed *.json
var promptFiles embed.FS

var (
	loadedMu sync.RWMutex
	loaded   = make(map[string]map[string]string)
)

// Get returns the prompt stored under key in the named embedded file.
func Get(filename, key string) (string, error) {
	set, err := load(filename)
	if err != nil {
		return "", err
	}
	prompt, ok := set[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// Format substitutes every {{.Key}} placeholder in one pass, so substituted
// values are never themselves expanded. Unknown placeholders are left as is.
func Format(template string, data map[string]string) string {
	if len(data) == 0 {
		return template
	}
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{{."+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Render loads a prompt and formats it.
func Render(filename, key string, data map[string]string) (string, error) {
	prompt, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	return Format(prompt, data), nil
}

// ClearCache drops parsed prompt files. Tests use it to force a reload.
func ClearCache() {
	loadedMu.Lock()
	loaded = make(map[string]map[string]string)
	loadedMu.Unlock()
}

func load(filename string) (map[string]string, error) {
	loadedMu.RLock()
	set, ok := loaded[filename]
	loadedMu.RUnlock()
	if ok {
		return set, nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	loadedMu.Lock()
	loaded[filename] = set
	loadedMu.Unlock()
	return set, nil
}
