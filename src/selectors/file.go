package selectors

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a selector override file:
//
//	editor: '.ProseMirror[contenteditable="true"]'
//	stop:
//	  - 'button[data-testid="stop-button"]'
//	send: [...]
//	voice: [...]
//	upload: [...]
//
// Roles that are absent keep their current chain.
type File struct {
	Editor string   `yaml:"editor"`
	Stop   []string `yaml:"stop"`
	Send   []string `yaml:"send"`
	Voice  []string `yaml:"voice"`
	Upload []string `yaml:"upload"`
}

// ParseFile decodes a selector override document.
func ParseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse selectors: %w", err)
	}
	return f, nil
}

// Apply merges f into the registry.
func (r *Registry) Apply(f File) {
	r.SetEditor(f.Editor)
	for role, chain := range map[Role][]string{
		RoleStop:   f.Stop,
		RoleSend:   f.Send,
		RoleVoice:  f.Voice,
		RoleUpload: f.Upload,
	} {
		if len(chain) > 0 {
			r.Set(role, chain)
		}
	}
}

// LoadFile reads path and applies it. A missing file is not an error.
func (r *Registry) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read selectors file %s: %w", path, err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return err
	}
	r.Apply(f)
	return nil
}
