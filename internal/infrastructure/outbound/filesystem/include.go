package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// IncludeResolver resolves !include tags in YAML node trees.
//
// References are relative to the including file, or prefixed with @here/ (same)
// or @root/ (definition root). Included .yaml, .yml and .json files are spliced
// in as structured values so they can carry response payloads; any other file
// becomes a string.
type IncludeResolver struct {
	rootDir string
}

// NewIncludeResolver creates a resolver bound to rootDir for @root references.
func NewIncludeResolver(rootDir string) *IncludeResolver {
	return &IncludeResolver{rootDir: rootDir}
}

// ResolveIncludes replaces every !include node under node in place.
func (r *IncludeResolver) ResolveIncludes(node *yaml.Node, currentDir string) error {
	return r.walk(node, currentDir, 0)
}

func (r *IncludeResolver) walk(node *yaml.Node, currentDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("!include depth exceeds maximum of %d", maxIncludeDepth)
	}
	if node == nil {
		return nil
	}

	if node.Tag == "!include" {
		return r.include(node, currentDir, depth)
	}

	for _, child := range node.Content {
		if err := r.walk(child, currentDir, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *IncludeResolver) include(node *yaml.Node, currentDir string, depth int) error {
	ref := strings.TrimSpace(node.Value)
	if ref == "" {
		return fmt.Errorf("!include tag has empty value")
	}

	resolved, err := r.resolvePath(ref, currentDir)
	if err != nil {
		return fmt.Errorf("failed to resolve !include %q: %w", ref, err)
	}
	if err := r.validatePath(resolved); err != nil {
		return fmt.Errorf("!include path %q is not allowed: %w", ref, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("failed to read included file %q: %w", resolved, err)
	}

	if !isStructuredFile(resolved) {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(data)}
		return nil
	}

	// JSON is valid YAML, so both parse into the same node tree.
	var included yaml.Node
	if err := yaml.Unmarshal(data, &included); err != nil {
		return fmt.Errorf("failed to parse included file %q: %w", resolved, err)
	}
	if err := r.walk(&included, filepath.Dir(resolved), depth+1); err != nil {
		return err
	}
	if included.Kind == yaml.DocumentNode && len(included.Content) > 0 {
		*node = *included.Content[0]
	} else {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	}
	return nil
}

func (r *IncludeResolver) resolvePath(ref, currentDir string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "@root/"):
		return filepath.Join(r.rootDir, ref[len("@root/"):]), nil
	case strings.HasPrefix(ref, "@here/"):
		return filepath.Join(currentDir, ref[len("@here/"):]), nil
	case filepath.IsAbs(ref):
		return "", fmt.Errorf("absolute paths are not allowed in !include")
	default:
		return filepath.Join(currentDir, ref), nil
	}
}

func (r *IncludeResolver) validatePath(resolved string) error {
	realPath, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		realPath = resolved
	}
	realRoot, err := filepath.EvalSymlinks(r.rootDir)
	if err != nil {
		realRoot = r.rootDir
	}
	if !withinRoot(realRoot, realPath) {
		return fmt.Errorf("path escapes root directory")
	}
	return nil
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isStructuredFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
