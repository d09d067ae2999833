// Package loaderplugin loads chefs whose code is not linked into the
// netdumplings binary at compile time, either from a native Go plugin (.so)
// or from a yaegi-interpreted script. It is intentionally kept out of the
// core netdumplings module: most deployments never need dynamic loading,
// and native plugin.Open has platform and build-mode restrictions that
// shouldn't be forced on every caller of the core package.
package loaderplugin

import (
	"fmt"
	"os"
	"plugin"
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/netdumplings/netdumplings"
)

// ChefFactory is the function signature every dynamically loaded chef
// symbol must satisfy, matching netdumplings.Provider.New.
type ChefFactory func(id string, attributes map[string]interface{}) (netdumplings.Chef, error)

// ChefScript describes where to find a dynamically loaded chef and which
// exported symbol names the factory function.
type ChefScript struct {
	// Kind selects the Loader: "plugin" or "yaegi".
	Kind string
	// Payload is a filesystem path to a .so (Kind == "plugin") or Go source
	// (Kind == "yaegi") defining Symbol.
	Payload string
	// Symbol is the exported name of a ChefFactory-shaped function.
	Symbol string
}

// Loader resolves a ChefScript's symbol into a ChefFactory.
type Loader interface {
	Load(cs *ChefScript) (ChefFactory, error)
}

var loaders = map[string]Loader{}

func init() {
	loaders["plugin"] = &goPluginLoader{}
	loaders["yaegi"] = &yaegiLoader{}
}

// Build resolves cs's loader and returns a netdumplings.Provider wrapping
// the loaded factory, ready to pass to netdumplings.RegisterProvider.
func Build(cs *ChefScript) (netdumplings.Provider, error) {
	loader, ok := loaders[cs.Kind]
	if !ok {
		return nil, fmt.Errorf("loaderplugin: unknown loader kind %q", cs.Kind)
	}

	factory, err := loader.Load(cs)
	if err != nil {
		return nil, err
	}

	return netdumplings.ProviderFunc(factory), nil
}

type goPluginLoader struct{}

func (g *goPluginLoader) Load(cs *ChefScript) (ChefFactory, error) {
	p, err := plugin.Open(cs.Payload)
	if err != nil {
		return nil, fmt.Errorf("loaderplugin: error opening plugin: %w", err)
	}

	sym, err := p.Lookup(cs.Symbol)
	if err != nil {
		return nil, fmt.Errorf("loaderplugin: error looking up symbol: %w", err)
	}

	factory, ok := sym.(func(string, map[string]interface{}) (netdumplings.Chef, error))
	if !ok {
		return nil, fmt.Errorf("loaderplugin: symbol %s is not a chef factory", cs.Symbol)
	}

	return factory, nil
}

type yaegiLoader struct{}

func (y *yaegiLoader) Load(cs *ChefScript) (ChefFactory, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loaderplugin: error loading stdlib symbols: %w", err)
	}

	srcBytes, err := os.ReadFile(cs.Payload)
	if err != nil {
		return nil, fmt.Errorf("loaderplugin: error reading script: %w", err)
	}
	src := string(srcBytes)

	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("loaderplugin: error evaluating script: %w", err)
	}

	sym, err := i.Eval(cs.Symbol)
	if err != nil {
		return nil, fmt.Errorf("loaderplugin: error evaluating symbol: %w", err)
	}

	if sym.Kind() != reflect.Func {
		return nil, fmt.Errorf("loaderplugin: symbol %s is not a func", cs.Symbol)
	}

	factory, ok := sym.Interface().(func(string, map[string]interface{}) (netdumplings.Chef, error))
	if !ok {
		return nil, fmt.Errorf("loaderplugin: symbol %s is not a chef factory", cs.Symbol)
	}

	return factory, nil
}
