/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a schema file:
//
//	models:
//	  - name: User
//	    properties:
//	      - {name: name, type: string, index: true}
//	relations:
//	  - {name: posts, type: hasMany, model: User, target: Post, foreignKey: userId}
type File struct {
	Models    []Model    `yaml:"models"`
	Relations []Relation `yaml:"relations,omitempty"`
}

// LoadFile reads a schema file from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes schema YAML.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &f, nil
}

// Apply defines the file's models and relations on r.
func (f *File) Apply(r *Registry) error {
	for _, m := range f.Models {
		if _, err := r.Define(m); err != nil {
			return err
		}
	}
	for _, rel := range f.Relations {
		var err error
		switch rel.Type {
		case HasMany:
			_, err = r.HasMany(rel.Model, rel.Target, rel.ForeignKey)
		case BelongsTo:
			_, err = r.BelongsTo(rel.Model, rel.Target, rel.ForeignKey)
		default:
			err = fmt.Errorf("relation %s.%s: unsupported type %s", rel.Model, rel.Name, rel.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Export captures the registry content as a File.
func Export(r *Registry) *File {
	models := r.Models()
	f := &File{Models: make([]Model, 0, len(models)), Relations: r.AllRelations()}
	for _, m := range models {
		f.Models = append(f.Models, *m)
	}
	return f
}

// Write encodes f as YAML to w.
func (f *File) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

// ExportFile writes the registry content to path.
func ExportFile(r *Registry, path string) error {
	var buf bytes.Buffer
	if err := Export(r).Write(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
