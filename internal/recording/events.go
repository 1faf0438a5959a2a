package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Coordinates is a pointer position within the recorded viewport.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the recorded window size at the time of an event.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InteractionEvent is one captured user interaction from the recorded
// session. The sequence is read-only input to the zoom and AI stages; the
// pipeline never mutates it.
type InteractionEvent struct {
	Type        string       `json:"type"`
	Timestamp   int64        `json:"timestamp"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Viewport    *Viewport    `json:"viewport,omitempty"`
	Target      string       `json:"target,omitempty"`
	Key         string       `json:"key,omitempty"`
}

// IsClick reports whether the event is a pointer click carrying coordinates,
// the only event kind the zoom renderer can act on.
func (e InteractionEvent) IsClick() bool {
	return strings.EqualFold(strings.TrimSpace(e.Type), "click") && e.Coordinates != nil
}

// LoadEvents reads the captured interaction events file for a recording. A
// missing or empty path yields an empty sequence, not an error: recordings
// uploaded without event capture still flow through the pipeline.
func LoadEvents(path string) ([]InteractionEvent, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read events file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var events []InteractionEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse events file: %w", err)
	}
	return events, nil
}

// ClickEvents filters the sequence to pointer clicks carrying coordinates.
func ClickEvents(events []InteractionEvent) []InteractionEvent {
	var clicks []InteractionEvent
	for _, event := range events {
		if event.IsClick() {
			clicks = append(clicks, event)
		}
	}
	return clicks
}
