package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includeResolver replaces !include tagged nodes with the referenced file:
// YAML files are spliced in as nodes, anything else becomes a string scalar.
// References may be relative to the including file, or start with @root/ or
// @here/. Nothing outside rootDir can be included.
type includeResolver struct {
	rootDir string
}

func (r *includeResolver) resolve(node *yaml.Node, dir string) error {
	return r.walk(node, dir, 0)
}

func (r *includeResolver) walk(node *yaml.Node, dir string, depth int) error {
	if node == nil {
		return nil
	}
	if depth > maxIncludeDepth {
		return fmt.Errorf("!include nested deeper than %d", maxIncludeDepth)
	}
	if node.Tag == "!include" {
		return r.splice(node, dir, depth)
	}
	for _, child := range node.Content {
		if err := r.walk(child, dir, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *includeResolver) splice(node *yaml.Node, dir string, depth int) error {
	ref := node.Value
	target, err := r.locate(ref, dir)
	if err != nil {
		return fmt.Errorf("!include %q: %w", ref, err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("!include %q: %w", ref, err)
	}

	if !isYAMLFile(target) {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(data)}
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("!include %q: parse: %w", ref, err)
	}
	if err := r.walk(&doc, filepath.Dir(target), depth+1); err != nil {
		return err
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		*node = *doc.Content[0]
	}
	return nil
}

func (r *includeResolver) locate(ref, dir string) (string, error) {
	var target string
	switch {
	case ref == "":
		return "", fmt.Errorf("empty reference")
	case strings.HasPrefix(ref, "@root/"):
		target = filepath.Join(r.rootDir, strings.TrimPrefix(ref, "@root/"))
	case strings.HasPrefix(ref, "@here/"):
		target = filepath.Join(dir, strings.TrimPrefix(ref, "@here/"))
	case filepath.IsAbs(ref):
		return "", fmt.Errorf("absolute paths are not allowed")
	default:
		target = filepath.Join(dir, ref)
	}
	if !within(r.rootDir, target) {
		return "", fmt.Errorf("path escapes root directory")
	}
	return target, nil
}

// within reports whether path, with symlinks resolved, lies under root.
func within(root, path string) bool {
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
