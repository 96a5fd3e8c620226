// Package corpus loads the existing hunts a candidate is compared against.
package corpus

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a-marczewski/huntdedup/internal/hunt"
)

// document is the keyed form of a corpus file.
type document struct {
	Hunts []hunt.Record `yaml:"hunts"`
}

// Load reads a corpus from path. A directory is scanned for markdown hunt
// files. A file is decoded as YAML, which also accepts JSON, holding either
// a top-level list of hunts or a "hunts" key.
func Load(path string) ([]hunt.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat corpus: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".md") {
		rec, err := ParseHunt(bytes.NewReader(data), path)
		if err != nil {
			return nil, err
		}
		return []hunt.Record{rec}, nil
	}
	return Parse(data, path)
}

// Parse decodes a YAML or JSON corpus document. name labels generated IDs
// and error messages.
func Parse(data []byte, name string) ([]hunt.Record, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &hunt.ValidationError{Field: "corpus", Value: name, Message: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var records []hunt.Record
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&records); err != nil {
			return nil, &hunt.ValidationError{Field: "corpus", Value: name, Message: err.Error()}
		}
	case yaml.MappingNode:
		var doc document
		if err := node.Decode(&doc); err != nil {
			return nil, &hunt.ValidationError{Field: "corpus", Value: name, Message: err.Error()}
		}
		records = doc.Hunts
	default:
		return nil, &hunt.ValidationError{Field: "corpus", Value: name, Message: "expected a list of hunts or a hunts key"}
	}

	return finalize(records, filepath.Base(name))
}

// LoadDir parses every markdown file under dir in lexical path order.
// Files without a hypothesis are skipped.
func LoadDir(dir string) ([]hunt.Record, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus directory: %w", err)
	}
	sort.Strings(paths)

	records := make([]hunt.Record, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		rec, err := ParseHunt(f, path)
		f.Close()
		if hunt.IsValidation(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return finalize(records, filepath.Base(dir))
}

// finalize fills missing IDs and rejects duplicates.
func finalize(records []hunt.Record, name string) ([]hunt.Record, error) {
	seen := make(map[string]int, len(records))
	for i := range records {
		rec := &records[i]
		rec.ID = strings.TrimSpace(rec.ID)
		if rec.ID == "" {
			rec.ID = name + "#" + strconv.Itoa(i+1)
		}
		if first, dup := seen[rec.ID]; dup {
			return nil, &hunt.ValidationError{
				Field:   "id",
				Value:   rec.ID,
				Message: fmt.Sprintf("duplicate hunt ID at positions %d and %d", first+1, i+1),
			}
		}
		seen[rec.ID] = i
	}
	return records, nil
}
