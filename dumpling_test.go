package netdumplings

import (
	"encoding/json"
	"testing"
)

func Test_Dumpling_EncodeDecodeRoundTrip(t *testing.T) {
	kitchen := "kitchen1"
	d := NewDumpling("TestChef", &kitchen, DriverPacket, map[string]interface{}{"hello": "world"})

	encoded, err := d.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	if decoded.Metadata.Chef != "TestChef" {
		t.Errorf("have %s want TestChef", decoded.Metadata.Chef)
	}
	if decoded.Metadata.KitchenName == nil || *decoded.Metadata.KitchenName != kitchen {
		t.Errorf("have %v want %s", decoded.Metadata.KitchenName, kitchen)
	}
	if decoded.Metadata.Driver != DriverPacket {
		t.Errorf("have %s want %s", decoded.Metadata.Driver, DriverPacket)
	}
}

func Test_Dumpling_Decode_MissingChef(t *testing.T) {
	_, err := Decode([]byte(`{"metadata":{"driver":"packet"},"payload":1}`))
	if err == nil {
		t.Fatal("expected error for missing chef")
	}
	if _, ok := err.(*InvalidDumplingError); !ok {
		t.Errorf("have %T want *InvalidDumplingError", err)
	}
}

func Test_Dumpling_Decode_BadDriver(t *testing.T) {
	_, err := Decode([]byte(`{"metadata":{"chef":"X","driver":"bogus"},"payload":1}`))
	if err == nil {
		t.Fatal("expected error for invalid driver")
	}
}

func Test_Dumpling_Decode_NotJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for unparseable JSON")
	}
}

func Test_Dumpling_Validate_LooseOnDriver(t *testing.T) {
	// Validate is the hub's ingress check: it tolerates a driver value
	// outside {packet, interval}, unlike Decode.
	parsed, err := Validate([]byte(`{"metadata":{"chef":"X","driver":"whatever"},"payload":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ChefNameOf(parsed) != "X" {
		t.Errorf("have %s want X", ChefNameOf(parsed))
	}
}

func Test_Dumpling_Validate_MissingChef(t *testing.T) {
	_, err := Validate([]byte(`{"metadata":{},"payload":1}`))
	if err == nil {
		t.Fatal("expected error for missing chef")
	}
}

func Test_Dumpling_Encode_WireShape(t *testing.T) {
	d := NewDumpling("TestChef", nil, DriverInterval, 42)
	encoded, err := d.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(encoded, &raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := raw["metadata"]; !ok {
		t.Error("expected top-level metadata key")
	}
	if _, ok := raw["payload"]; !ok {
		t.Error("expected top-level payload key")
	}

	metadata := raw["metadata"].(map[string]interface{})
	if _, ok := metadata["kitchen"]; !ok {
		t.Error("expected metadata.kitchen key to be present even when nil")
	}
}
