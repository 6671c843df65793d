// Package bridge declares the outbound interfaces a session consults:
// profile management, settings storage, and third-party plugins. All
// three are implemented externally in a full deployment; this package
// only defines the contract plus an in-memory Noop implementation for
// standalone runs and tests.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ProfileManager lists, loads, saves and deletes named device profiles.
type ProfileManager interface {
	ListProfiles(ctx context.Context) ([]string, error)
	LoadProfile(ctx context.Context, name string) error
	SaveProfile(ctx context.Context, name string) error
	DeleteProfile(ctx context.Context, name string) error
}

// SettingsManager is a sectioned document store.
type SettingsManager interface {
	Get(ctx context.Context, section string) ([]byte, error)
	Set(ctx context.Context, section string, document []byte) error
	Save(ctx context.Context) error
}

// PluginCallback handles a REQUEST_PLUGIN_SPECIFIC packet addressed to
// one registered plugin; it must be reentrant.
type PluginCallback func(ctx context.Context, data []byte) ([]byte, error)

// Plugin is one registered plugin's descriptor.
type Plugin struct {
	ProtocolVersion uint32
	Name            string
	Description     string
	Version         string
	Callback        PluginCallback
}

// PluginRegistry holds the server's registered plugins, keyed by name.
type PluginRegistry interface {
	List(ctx context.Context) ([]Plugin, error)
	Dispatch(ctx context.Context, name string, data []byte) ([]byte, error)
}

// Noop is an in-memory ProfileManager, SettingsManager and
// PluginRegistry that stores everything in process memory. It exists
// for standalone running and tests where no external profile/settings
// store is wired up.
type Noop struct {
	mu       sync.RWMutex
	profiles map[string]struct{}
	settings map[string][]byte
	plugins  map[string]Plugin
}

// NewNoop returns an empty Noop bridge.
func NewNoop() *Noop {
	return &Noop{
		profiles: make(map[string]struct{}),
		settings: make(map[string][]byte),
		plugins:  make(map[string]Plugin),
	}
}

func (n *Noop) ListProfiles(context.Context) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.profiles))
	for name := range n.profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (n *Noop) LoadProfile(_ context.Context, name string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if _, ok := n.profiles[name]; !ok {
		return fmt.Errorf("bridge: profile %q not found", name)
	}
	return nil
}

func (n *Noop) SaveProfile(_ context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.profiles[name] = struct{}{}
	return nil
}

func (n *Noop) DeleteProfile(_ context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.profiles, name)
	return nil
}

func (n *Noop) Get(_ context.Context, section string) ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	doc, ok := n.settings[section]
	if !ok {
		return nil, fmt.Errorf("bridge: settings section %q not found", section)
	}
	return append([]byte{}, doc...), nil
}

func (n *Noop) Set(_ context.Context, section string, document []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settings[section] = append([]byte{}, document...)
	return nil
}

func (n *Noop) Save(context.Context) error { return nil }

func (n *Noop) RegisterPlugin(p Plugin) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.plugins[p.Name] = p
}

func (n *Noop) List(context.Context) ([]Plugin, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Plugin, 0, len(n.plugins))
	for _, p := range n.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (n *Noop) Dispatch(ctx context.Context, name string, data []byte) ([]byte, error) {
	n.mu.RLock()
	p, ok := n.plugins[name]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bridge: plugin %q not registered", name)
	}
	return p.Callback(ctx, data)
}
