package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/plugmock/internal/domain/definition"
)

var _ definition.Repository = (*YAMLRepository)(nil)

// ManifestNames are the file names, relative to the root, holding the platform manifest.
var ManifestNames = []string{"platform.yaml", "platform.yml"}

// YAMLRepository loads definitions from a directory tree.
//
// The manifest lives at the root. Every other .yaml/.yml file holds one endpoint
// or a list of endpoints. Hidden files and directories are skipped, so state
// files written under the root never feed back into definitions.
type YAMLRepository struct {
	rootDir  string
	resolver *IncludeResolver
}

// NewYAMLRepository creates a repository rooted at rootDir.
func NewYAMLRepository(rootDir string) (*YAMLRepository, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &YAMLRepository{
		rootDir:  absRoot,
		resolver: NewIncludeResolver(absRoot),
	}, nil
}

// LoadAll reads the manifest and every endpoint file. Without a manifest the
// platform is named after the root directory.
func (r *YAMLRepository) LoadAll(ctx context.Context) (*definition.Catalog, error) {
	catalog := &definition.Catalog{
		Manifest: definition.Manifest{Name: filepath.Base(r.rootDir)},
	}

	err := filepath.WalkDir(r.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != r.rootDir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isYAMLFile(path) {
			return nil
		}

		if r.isManifest(path) {
			m, err := r.loadManifest(path)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
			catalog.Manifest = *m
			return nil
		}

		loaded, err := r.loadEndpoints(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		catalog.Endpoints = append(catalog.Endpoints, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk definitions directory: %w", err)
	}

	return catalog, nil
}

func (r *YAMLRepository) isManifest(path string) bool {
	for _, name := range ManifestNames {
		if path == filepath.Join(r.rootDir, name) {
			return true
		}
	}
	return false
}

// parse reads a file into a node tree with includes resolved.
func (r *YAMLRepository) parse(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := r.resolver.ResolveIncludes(&root, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to resolve includes: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}
	return root.Content[0], nil
}

func (r *YAMLRepository) loadManifest(path string) (*definition.Manifest, error) {
	node, err := r.parse(path)
	if err != nil {
		return nil, err
	}
	var ym yamlManifest
	if node != nil {
		if err := node.Decode(&ym); err != nil {
			return nil, fmt.Errorf("failed to decode manifest: %w", err)
		}
	}
	if ym.Name == "" {
		ym.Name = filepath.Base(r.rootDir)
	}
	return toManifest(&ym), nil
}

func (r *YAMLRepository) loadEndpoints(path string) ([]*definition.Endpoint, error) {
	node, err := r.parse(path)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}

	items := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		items = node.Content
	}

	endpoints := make([]*definition.Endpoint, 0, len(items))
	for i, item := range items {
		var ye yamlEndpoint
		if err := item.Decode(&ye); err != nil {
			return nil, fmt.Errorf("failed to decode endpoint %d: %w", i, err)
		}
		if ye.ID == "" {
			return nil, fmt.Errorf("endpoint %d (line %d) has no id", i, item.Line)
		}
		e := toEndpoint(&ye)
		e.SourceFile = path
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

func toManifest(ym *yamlManifest) *definition.Manifest {
	m := &definition.Manifest{Name: ym.Name}
	for _, f := range ym.Flags {
		m.Flags = append(m.Flags, definition.Flag{Name: f.Name, Default: f.Default, Description: f.Description})
	}
	for _, s := range ym.Scenarios {
		m.Scenarios = append(m.Scenarios, definition.Scenario{
			ID:              s.ID,
			Name:            s.Name,
			PluginIDs:       s.PluginIDs,
			FlagOverrides:   s.FlagOverrides,
			StatusOverrides: s.StatusOverrides,
		})
	}
	return m
}

func toEndpoint(ye *yamlEndpoint) *definition.Endpoint {
	e := &definition.Endpoint{
		ID:             ye.ID,
		Component:      ye.Component,
		Route:          ye.Route,
		Method:         ye.Method,
		DefaultStatus:  ye.DefaultStatus,
		Responses:      normalizeTable(ye.Responses),
		Flags:          ye.Flags,
		SwaggerURL:     ye.SwaggerURL,
		Disabled:       ye.Disabled,
		QueryResponses: normalizeMap(ye.QueryResponses),
	}

	for _, s := range ye.Scenarios {
		e.Scenarios = append(e.Scenarios, definition.EndpointScenario{
			ID:        s.ID,
			Label:     s.Label,
			Responses: normalizeTable(s.Responses),
		})
	}

	for _, t := range ye.Transform {
		e.Transform = append(e.Transform, definition.TransformRule{
			When:     t.When,
			Set:      t.Set,
			Template: t.Template,
			Engine:   t.Engine,
		})
	}

	if ye.Policy != nil {
		e.Policy = &definition.Policy{}
		if rl := ye.Policy.RateLimit; rl != nil {
			e.Policy.RateLimit = &definition.RateLimit{Rate: rl.Rate, Burst: rl.Burst, Key: rl.Key}
		}
		if lat := ye.Policy.Latency; lat != nil {
			e.Policy.Latency = &definition.Latency{FixedMs: lat.FixedMs, JitterMs: lat.JitterMs}
		}
	}

	return e
}

func normalizeTable(in map[int]any) map[int]any {
	if in == nil {
		return nil
	}
	out := make(map[int]any, len(in))
	for status, payload := range in {
		out[status] = normalize(payload)
	}
	return out
}

func normalizeMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalize(v)
	}
	return out
}

// normalize rewrites YAML mappings with non-string keys into map[string]any so
// payloads encode as JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	default:
		return v
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
