package netdumplings

import (
	"fmt"
	"time"

	"github.com/mitchellh/copystructure"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Chef is the contract every dumpling chef implements. A Kitchen invokes
// OnPacket for every captured packet and OnInterval on a fixed timer. Both
// methods return (payload, ok); ok == false means "no dumpling" and the
// Kitchen must not emit one for that invocation.
type Chef interface {
	// Name is the logical producer-module name used for filtering and
	// validation. Typically the chef's Go type name.
	Name() string

	// AssignableToKitchen reports whether the chef is a concrete chef rather
	// than an abstract/base one. Nothing in this package consults it:
	// Kitchen.RegisterChef and BuildChefs accept a chef whatever it returns.
	AssignableToKitchen() bool

	OnPacket(p Packet) (payload interface{}, ok bool)
	OnInterval(interval time.Duration) (payload interface{}, ok bool)
}

// BaseChef provides the do-nothing defaults the netdumplings source's
// DumplingChef base class has: AssignableToKitchen is true, OnInterval
// emits nothing. Concrete chefs embed BaseChef and override what they need.
type BaseChef struct {
	ChefName string
}

// Name returns the chef's configured name.
func (b *BaseChef) Name() string { return b.ChefName }

// AssignableToKitchen defaults to true; chefs meant only as shared bases
// should override this to return false.
func (b *BaseChef) AssignableToKitchen() bool { return true }

// OnInterval's default implementation emits no dumpling.
func (b *BaseChef) OnInterval(time.Duration) (interface{}, bool) { return nil, false }

// Provider constructs a Chef from a config-driven ID and attribute map. This
// is the compiled-in-registry half of dynamic chef discovery: chefs are
// known to the binary at compile time, but which ones run and with what
// attributes is still data-driven. The loaderplugin module covers the other
// half, loading chefs whose code isn't linked into the binary at all.
type Provider interface {
	New(id string, attributes map[string]interface{}) (Chef, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(id string, attributes map[string]interface{}) (Chef, error)

// New calls f.
func (f ProviderFunc) New(id string, attributes map[string]interface{}) (Chef, error) {
	return f(id, attributes)
}

var chefProviders = map[string]Provider{}

// RegisterProvider registers a chef Provider under name, making it
// resolvable from a ChefSerialization. Intended to be called from an init()
// in a package (such as chefs) that ships compiled-in chefs.
func RegisterProvider(name string, p Provider) {
	chefProviders[name] = p
}

// RegisteredProviders lists the names available for ChefSerialization.
func RegisteredProviders() []string {
	names := make([]string, 0, len(chefProviders))
	for name := range chefProviders {
		names = append(names, name)
	}
	return names
}

// ChefSerialization is the config-driven description of a chef to load: a
// provider name plus an attribute bag, decoded via mapstructure the same
// way a named-provider registry resolves serialized config into a live
// object.
type ChefSerialization struct {
	ID         string                 `json:"id" yaml:"id" mapstructure:"id"`
	Provider   string                 `json:"provider" yaml:"provider" mapstructure:"provider"`
	Attributes map[string]interface{} `json:"attributes" yaml:"attributes" mapstructure:"attributes"`
}

// Build resolves the registered Provider and constructs the Chef. The
// attribute map is deep-copied first, so a Provider that stashes or mutates
// it can't corrupt a config template shared across multiple ChefSerialization
// entries.
func (c *ChefSerialization) Build() (Chef, error) {
	provider, ok := chefProviders[c.Provider]
	if !ok {
		return nil, fmt.Errorf("netdumplings: unknown chef provider %q", c.Provider)
	}

	attrs := c.Attributes
	if attrs != nil {
		copied, err := copystructure.Copy(attrs)
		if err != nil {
			return nil, fmt.Errorf("netdumplings: could not copy attributes for chef %q: %w", c.ID, err)
		}
		attrs = copied.(map[string]interface{})
	}

	return provider.New(c.ID, attrs)
}

// DecodeAttributes decodes a ChefSerialization's freeform attribute map into
// a strongly typed struct, for Providers that want typed configuration.
func DecodeAttributes(attributes map[string]interface{}, out interface{}) error {
	return mapstructure.Decode(attributes, out)
}

// LoadChefSerializations decodes a YAML document listing chefs to build, the
// same document shape the source's loader reads for a stream of vertices:
// a top-level sequence of {id, provider, attributes} entries.
func LoadChefSerializations(data []byte) ([]ChefSerialization, error) {
	var out []ChefSerialization
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("netdumplings: could not parse chef config: %w", err)
	}
	return out, nil
}

// BuildChefs decodes a YAML chef-config document and builds every entry in
// order, returning the first build error encountered.
func BuildChefs(data []byte) ([]Chef, error) {
	serializations, err := LoadChefSerializations(data)
	if err != nil {
		return nil, err
	}

	chefs := make([]Chef, 0, len(serializations))
	for i := range serializations {
		chef, err := serializations[i].Build()
		if err != nil {
			return nil, err
		}
		chefs = append(chefs, chef)
	}
	return chefs, nil
}
