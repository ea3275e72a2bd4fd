package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// editSequence loads a YAML file whose top level is a sequence, lets edit
// rewrite the entries, and writes the result back. An empty result removes
// the file.
func editSequence(path string, edit func(items []*yaml.Node) ([]*yaml.Node, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.SequenceNode {
		return fmt.Errorf("%s is not a YAML sequence", path)
	}
	seq := doc.Content[0]

	items, err := edit(seq.Content)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return os.Remove(path)
	}
	seq.Content = items

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return atomicWriteFile(path, out)
}

// entryIdentity is the id and create time an entry of a sequence file has in
// the snapshot. Rewriting a file writes both back into every entry, since
// derived values depend on the entry position and the file mtime.
type entryIdentity struct {
	id      string
	created time.Time
}

func replaceInSequence(path string, index int, value any, pins map[int]entryIdentity) error {
	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	return editSequence(path, func(items []*yaml.Node) ([]*yaml.Node, error) {
		if index < 0 || index >= len(items) {
			return nil, fmt.Errorf("index %d out of range (file has %d entries)", index, len(items))
		}
		if err := pinEntries(items, pins); err != nil {
			return nil, err
		}
		items[index] = &node
		return items, nil
	})
}

func removeFromSequence(path string, index int, pins map[int]entryIdentity) error {
	return editSequence(path, func(items []*yaml.Node) ([]*yaml.Node, error) {
		if index < 0 || index >= len(items) {
			return nil, fmt.Errorf("index %d out of range (file has %d entries)", index, len(items))
		}
		if err := pinEntries(items, pins); err != nil {
			return nil, err
		}
		return append(items[:index], items[index+1:]...), nil
	})
}

// pinEntries writes id and create_time into the entries at the given
// positions. An entry that is not a mapping (a whole-entry !include) is left
// as written.
func pinEntries(items []*yaml.Node, pins map[int]entryIdentity) error {
	for i, pin := range pins {
		if i < 0 || i >= len(items) || items[i].Kind != yaml.MappingNode {
			continue
		}
		var id, created yaml.Node
		if err := id.Encode(pin.id); err != nil {
			return fmt.Errorf("failed to encode id: %w", err)
		}
		if err := created.Encode(pin.created); err != nil {
			return fmt.Errorf("failed to encode create_time: %w", err)
		}
		setMappingValue(items[i], "id", &id)
		setMappingValue(items[i], "create_time", &created)
	}
	return nil
}

func setMappingValue(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

// atomicWriteFile writes content to a temp file in the target directory then
// renames it over the target.
func atomicWriteFile(target string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), tempPrefix+"*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
