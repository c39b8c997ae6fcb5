// Package runtimeconf loads unit configuration from a runtime.yaml file.
//
// The file maps unit ids to their configuration. An optional top-level
// "global" section holds parameters shared by every unit; a unit's own
// parameters take precedence.
//
//	global:
//	  error_procedure: pass
//	  error_max_retries: 5
//	filter-expert:
//	  module: experts.filter
//	  parameters:
//	    filter_expression: msg["source.ip"] != nil
package runtimeconf

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/unitdebug/internal/domain"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

// GlobalKey is the reserved section holding shared parameters.
const GlobalKey = "global"

// ErrUnknownUnit is returned when the file has no entry for a unit id.
var ErrUnknownUnit = errors.New("runtimeconf: unknown unit")

// File is a runtime.yaml on disk. Every Load re-reads it, so changes are
// picked up by a reloading runtime.
type File struct {
	path string
}

var _ unit.ConfigSource = (*File)(nil)

// Open returns a File for path. The file is read lazily.
func Open(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load returns the configuration of unit id with global parameters merged.
func (f *File) Load(id string) (unit.Config, error) {
	doc, err := f.read()
	if err != nil {
		return unit.Config{}, err
	}
	return doc.Unit(id)
}

// Units lists the unit ids configured in the file.
func (f *File) Units() ([]string, error) {
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.IDs(), nil
}

func (f *File) read() (*Document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read runtime config: %w", err)
	}
	return Parse(data)
}

// Document is a parsed runtime configuration.
type Document struct {
	Global unit.Parameters
	Units  map[string]unit.Config
}

// Parse decodes a runtime configuration document.
func Parse(data []byte) (*Document, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: runtime config: %v", domain.ErrInvalidConfig, err)
	}

	doc := &Document{
		Global: unit.Parameters{},
		Units:  make(map[string]unit.Config, len(raw)),
	}
	for id, node := range raw {
		if id == GlobalKey {
			if err := node.Decode(&doc.Global); err != nil {
				return nil, fmt.Errorf("%w: global section: %v", domain.ErrInvalidConfig, err)
			}
			continue
		}
		var cfg unit.Config
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: unit %s: %v", domain.ErrInvalidConfig, id, err)
		}
		doc.Units[id] = cfg
	}
	return doc, nil
}

// IDs returns the configured unit ids in sorted order.
func (d *Document) IDs() []string {
	ids := make([]string, 0, len(d.Units))
	for id := range d.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unit returns the configuration of id with global parameters merged in.
func (d *Document) Unit(id string) (unit.Config, error) {
	cfg, ok := d.Units[id]
	if !ok {
		return unit.Config{}, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	params := make(unit.Parameters, len(d.Global)+len(cfg.Parameters))
	for k, v := range d.Global {
		params[k] = v
	}
	for k, v := range cfg.Parameters {
		params[k] = v
	}
	cfg.Parameters = params
	return cfg, nil
}
