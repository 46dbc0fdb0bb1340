package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SessionSummary is one entry of the recorded session list.
type SessionSummary struct {
	ID        string    `json:"id"`
	Result    string    `json:"result"`
	Rounds    int       `json:"rounds"`
	Timestamp Timestamp `json:"timestamp"`
}

// SessionConfig is the configuration a recorded session ran with.
type SessionConfig struct {
	NumItems int `json:"num_items,omitempty"`
}

// InitialState holds the private valuations a recorded session started from.
type InitialState struct {
	ValuationsSupplier Magnitude `json:"val_s"`
	ValuationsRetailer Magnitude `json:"val_r"`
}

// SessionRecord is a full recorded session as returned by the session detail endpoint.
// Turns are kept raw so that a single bad entry is skipped at replay time
// instead of failing the whole fetch.
type SessionRecord struct {
	ID           string            `json:"id,omitempty"`
	Config       SessionConfig     `json:"config"`
	InitialState InitialState      `json:"initial_state"`
	Turns        []json.RawMessage `json:"turns"`
	DealPrice    Magnitude         `json:"deal_price"`
	FinalRewards []float64         `json:"final_rewards,omitempty"`
}

// Timestamp accepts RFC 3339, zone-less ISO 8601 (read as UTC) and unix seconds.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// MarshalJSON writes RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON parses the formats the history endpoint is known to emit.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = time.UnixMilli(int64(secs * 1000)).UTC()
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}
