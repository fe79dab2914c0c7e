// Package messages holds the user-facing push notification copy. Defaults are
// embedded; a JSON file with the same shape can override any entry.
package messages

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed messages.json
var defaultJSON []byte

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Render replaces {name} placeholders in the body with vars[name].
func (m MessageText) Render(vars map[string]string) MessageText {
	if len(vars) == 0 {
		return m
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return MessageText{Title: m.Title, Body: strings.NewReplacer(pairs...).Replace(m.Body)}
}

type Messages struct {
	FileProcessed          MessageText `json:"file_processed"`
	FileProcessedTransfers MessageText `json:"file_processed_transfers"`
	FileFailed             MessageText `json:"file_failed"`
}

// Default returns the embedded copy.
func Default() *Messages {
	var m Messages
	if err := json.Unmarshal(defaultJSON, &m); err != nil {
		panic(fmt.Sprintf("messages: embedded defaults are invalid: %v", err))
	}
	return &m
}

// Load reads path over the embedded defaults. Entries missing from the file
// keep their default text.
func Load(path string) (*Messages, error) {
	m := Default()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return m, nil
}
