package navigation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ffcentral/protocol"

	"gopkg.in/yaml.v3"
)

// LoadLayout reads a layout file. Files ending in .json are decoded as JSON, anything else as YAML.
func LoadLayout(path string) (*protocol.Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	var layout protocol.Layout
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &layout)
	} else {
		err = yaml.Unmarshal(data, &layout)
	}
	if err != nil {
		return nil, fmt.Errorf("decode layout %s: %w", path, err)
	}
	return &layout, nil
}

// LoadGraph reads a layout file and builds its graph.
func LoadGraph(path string) (*FactoryGraph, error) {
	layout, err := LoadLayout(path)
	if err != nil {
		return nil, err
	}
	return NewFactoryGraph(layout)
}

// SaveLayout writes layout to path in the format LoadLayout expects for its extension.
func SaveLayout(path string, layout *protocol.Layout) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(layout, "", "  ")
	} else {
		data, err = yaml.Marshal(layout)
	}
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write layout: %w", err)
	}
	return nil
}
