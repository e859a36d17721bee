package fleet

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/skycourier-io/skycourier/pkg/log"
)

// Manifest is the on-disk fleet definition: the vehicles to provision and
// the delivery sites orders may target.
type Manifest struct {
	Vehicles []VehicleSpec `yaml:"vehicles"`
	Sites    []Site        `yaml:"sites"`
}

// LoadManifest reads and validates a fleet manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse fleet manifest %s: %w", path, err)
	}

	seen := make(map[string]bool, len(m.Vehicles))
	for i, v := range m.Vehicles {
		if v.ID == "" {
			return nil, fmt.Errorf("fleet manifest %s: vehicle #%d has no id", path, i)
		}
		if seen[v.ID] {
			return nil, fmt.Errorf("fleet manifest %s: duplicate vehicle id %q", path, v.ID)
		}
		seen[v.ID] = true
	}
	for i, s := range m.Sites {
		if s.ID == "" {
			return nil, fmt.Errorf("fleet manifest %s: site #%d has no id", path, i)
		}
	}

	return &m, nil
}

// Provisioner applies manifest contents to the registry and optionally
// watches the manifest file so vehicles can be added while the hub runs.
type Provisioner struct {
	path     string
	registry *Registry

	// OnProvision is invoked for every newly created vehicle. The sim
	// control backend hooks this to seed the new vehicle's position.
	OnProvision func(spec VehicleSpec)
}

// NewProvisioner creates a provisioner for the given manifest path.
func NewProvisioner(path string, registry *Registry) *Provisioner {
	return &Provisioner{path: path, registry: registry}
}

// Apply loads the manifest and reconciles the registry with it.
func (p *Provisioner) Apply() error {
	m, err := LoadManifest(p.path)
	if err != nil {
		return err
	}

	p.registry.SetSites(m.Sites)

	created := 0
	for _, spec := range m.Vehicles {
		if p.registry.Provision(spec) {
			created++
			if p.OnProvision != nil {
				p.OnProvision(spec)
			}
		}
	}

	log.Info("Fleet manifest applied", "path", p.path, "vehicles", len(m.Vehicles), "new", created, "sites", len(m.Sites))
	return nil
}

// Watch re-applies the manifest whenever the file changes, until ctx is
// cancelled. A manifest that fails to parse is logged and skipped; the
// last good fleet stays in effect.
func (p *Provisioner) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fleet manifest watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.path); err != nil {
		return fmt.Errorf("watch fleet manifest %s: %w", p.path, err)
	}

	log.Info("Watching fleet manifest", "path", p.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if err := p.Apply(); err != nil {
				log.Error(err, "Fleet manifest reload failed, keeping previous fleet", "path", p.path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(err, "Fleet manifest watcher error")
		}
	}
}
