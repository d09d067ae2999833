// Package netdumplings implements the dumpling broker core: the Dumpling
// wire format, the Chef contract, the packet-sniffing Kitchen, the
// Kitchen→Hub uplink, the Hub's fan-out broker, and the Eater client.
package netdumplings

import (
	"encoding/json"
	"fmt"
	"time"
)

// Driver records why a Dumpling was created: in response to a captured
// packet, or to a timed interval poke.
type Driver string

const (
	DriverPacket   Driver = "packet"
	DriverInterval Driver = "interval"
)

func (d Driver) valid() bool {
	return d == DriverPacket || d == DriverInterval
}

// Metadata is the `metadata` half of a dumpling's wire form. KitchenName is
// nil for dumplings synthesized inside the Hub.
type Metadata struct {
	Chef         string  `json:"chef"`
	KitchenName  *string `json:"kitchen"`
	CreationTime float64 `json:"creation_time"`
	Driver       Driver  `json:"driver"`
}

// Dumpling is the central event record flowing from Kitchens through the
// Hub to Eaters. It is immutable after construction: callers must not
// mutate a Dumpling obtained from Decode in ways visible to other holders
// of the same value.
type Dumpling struct {
	Metadata Metadata    `json:"metadata"`
	Payload  interface{} `json:"payload"`
}

// NewDumpling constructs a Dumpling with the creation time set to now.
// kitchenName may be nil (e.g. for hub-synthesized dumplings).
func NewDumpling(chefName string, kitchenName *string, driver Driver, payload interface{}) *Dumpling {
	return &Dumpling{
		Metadata: Metadata{
			Chef:         chefName,
			KitchenName:  kitchenName,
			CreationTime: epochSeconds(time.Now()),
			Driver:       driver,
		},
		Payload: payload,
	}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Encode produces the wire JSON for a Dumpling: exactly
// {"metadata": {...}, "payload": ...}. Returns InvalidDumplingPayloadError
// if the payload is not JSON-representable.
func (d *Dumpling) Encode() ([]byte, error) {
	bytez, err := json.Marshal(d)
	if err != nil {
		return nil, newInvalidPayload("payload is not JSON-serializable", err)
	}
	return bytez, nil
}

// Decode parses a wire frame into a typed Dumpling. It fails with
// InvalidDumplingError if the bytes are not JSON, if metadata.chef is
// missing, or if driver is not one of the two allowed literals.
func Decode(data []byte) (*Dumpling, error) {
	var raw struct {
		Metadata struct {
			Chef         string          `json:"chef"`
			KitchenName  *string         `json:"kitchen"`
			CreationTime float64         `json:"creation_time"`
			Driver       Driver          `json:"driver"`
		} `json:"metadata"`
		Payload interface{} `json:"payload"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newInvalidDumpling("could not interpret dumpling JSON", err)
	}

	if raw.Metadata.Chef == "" {
		return nil, newInvalidDumpling("could not determine chef name", nil)
	}

	if !raw.Metadata.Driver.valid() {
		return nil, newInvalidDumpling(
			fmt.Sprintf("invalid driver %q", raw.Metadata.Driver), nil)
	}

	return &Dumpling{
		Metadata: Metadata{
			Chef:         raw.Metadata.Chef,
			KitchenName:  raw.Metadata.KitchenName,
			CreationTime: raw.Metadata.CreationTime,
			Driver:       raw.Metadata.Driver,
		},
		Payload: raw.Payload,
	}, nil
}

// Validate is the lighter-weight ingress check used by the Hub: it confirms
// JSON parseability and the presence of metadata.chef, without requiring
// driver to be one of the strict enum literals. It returns the parsed
// mapping so callers (e.g. logging) can inspect the chef name cheaply.
func Validate(data []byte) (map[string]interface{}, error) {
	var parsed map[string]interface{}

	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, newInvalidDumpling("could not interpret dumpling JSON", err)
	}

	metadata, ok := parsed["metadata"].(map[string]interface{})
	if !ok {
		return nil, newInvalidDumpling("could not determine chef name", nil)
	}

	chef, ok := metadata["chef"].(string)
	if !ok || chef == "" {
		return nil, newInvalidDumpling("could not determine chef name", nil)
	}

	return parsed, nil
}

// ChefNameOf cheaply extracts metadata.chef from an already-validated frame.
func ChefNameOf(parsed map[string]interface{}) string {
	metadata, _ := parsed["metadata"].(map[string]interface{})
	chef, _ := metadata["chef"].(string)
	return chef
}
