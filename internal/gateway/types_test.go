package gateway

import (
	"encoding/json"
	"testing"
)

func TestEventDecodeCommand(t *testing.T) {
	raw := `{
		"type": "command",
		"origin_id": "o1",
		"guild_id": "g1",
		"channel_id": "c1",
		"user_id": "u1",
		"user_name": "Uldis",
		"command": "/pardot",
		"args": ["zivs", "3"]
	}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventCommand || ev.Command != "/pardot" {
		t.Fatalf("decoded %+v", ev)
	}
	if len(ev.Args) != 2 || ev.Args[0] != "zivs" {
		t.Fatalf("args: %v", ev.Args)
	}
	if ev.Component != nil {
		t.Fatalf("command frame must carry no component")
	}
}

func TestEventDecodeInteraction(t *testing.T) {
	raw := `{
		"type": "interaction",
		"origin_id": "o1",
		"guild_id": "g1",
		"channel_id": "c1",
		"user_id": "u1",
		"component": {"kind": "select", "custom_id": "pardot_select", "values": ["a", "b"]}
	}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventInteraction || ev.Component == nil {
		t.Fatalf("decoded %+v", ev)
	}
	if ev.Component.Kind != "select" || ev.Component.CustomID != "pardot_select" || len(ev.Component.Values) != 2 {
		t.Fatalf("component: %+v", ev.Component)
	}
}
