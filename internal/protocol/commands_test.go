package protocol

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestEncodeHumanActionUsesIntegerAction(t *testing.T) {
	data, err := Encode(HumanAction{Action: ActionCounter, Price: 6100, Message: "take it"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["type"] != "human_action" {
		t.Fatalf("unexpected type: %v", got["type"])
	}
	if got["action"] != float64(1) {
		t.Fatalf("expected action 1, got %v", got["action"])
	}
	if got["price"] != float64(6100) || got["message"] != "take it" {
		t.Fatalf("unexpected payload: %v", got)
	}

	data, err = Encode(HumanAction{Action: ActionAccept, Price: 6100})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["action"] != float64(0) {
		t.Fatalf("expected action 0, got %v", got["action"])
	}
}

func TestEncodeToggleManual(t *testing.T) {
	data, err := Encode(ToggleManual{Enabled: true})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"type":"toggle_manual","enabled":true}` {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestEncodeHumanActionRejectsInvalid(t *testing.T) {
	if _, err := Encode(HumanAction{Action: ActionQuit, Price: 1}); err == nil {
		t.Fatalf("expected error for QUIT")
	}
	if _, err := Encode(HumanAction{Action: ActionCounter, Price: math.NaN()}); err == nil {
		t.Fatalf("expected error for NaN price")
	}
	if _, err := Encode(HumanAction{Action: ActionCounter, Price: -5}); err == nil {
		t.Fatalf("expected error for negative price")
	}
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"human_action","action":0,"price":12.5,"message":"deal"}`))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	action, ok := cmd.(HumanAction)
	if !ok || action.Action != ActionAccept || action.Price != 12.5 || action.Message != "deal" {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	cmd, err = DecodeCommand([]byte(`{"type":"toggle_manual","enabled":false}`))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if cmd != (ToggleManual{Enabled: false}) {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	if _, err := DecodeCommand([]byte(`{"type":"human_action","action":7}`)); err == nil {
		t.Fatalf("expected error for unknown action code")
	}
	if _, err := DecodeCommand([]byte(`{"type":"noop"}`)); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestMagnitudeJSON(t *testing.T) {
	var m Magnitude
	if err := json.Unmarshal([]byte(`[1, 2.5]`), &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !m.IsVector() || m.Arity() != 2 || m.Mean() != 1.75 {
		t.Fatalf("unexpected magnitude: %v", m)
	}

	if err := json.Unmarshal([]byte(`42`), &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if m.IsVector() || m.Arity() != 1 || m.At(3) != 42 {
		t.Fatalf("scalar should answer every index: %v", m)
	}

	if err := json.Unmarshal([]byte(`null`), &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !m.IsAbsent() {
		t.Fatalf("expected absent after null")
	}

	empty := Vector()
	if empty.IsAbsent() || !empty.IsEmpty() {
		t.Fatalf("empty vector should be present but empty")
	}
	data, _ := json.Marshal(empty)
	if string(data) != "[]" {
		t.Fatalf("unexpected empty vector JSON: %s", data)
	}
}

func TestTimestampFormats(t *testing.T) {
	cases := map[string]time.Time{
		`"2026-03-01T10:20:30Z"`:      time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC),
		`"2026-03-01T10:20:30.5"`:     time.Date(2026, 3, 1, 10, 20, 30, 500000000, time.UTC),
		`"2026-03-01 10:20:30"`:       time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC),
		`1772360430`:                  time.Unix(1772360430, 0).UTC(),
		`"2026-03-01T12:20:30+02:00"`: time.Date(2026, 3, 1, 10, 20, 30, 0, time.UTC),
	}
	for raw, want := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", raw, err)
		}
		if !ts.Equal(want) {
			t.Fatalf("Unmarshal(%s) = %v, want %v", raw, ts.Time, want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
