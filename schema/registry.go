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
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/inflection"
)

var defaultRegistry = NewRegistry()

// Default returns the process wide registry.
func Default() *Registry { return defaultRegistry }

// Relation describes a declared association between two models. For both
// kinds the foreign key lives on the child model.
type Relation struct {
	Name       string       `yaml:"name" json:"name" validate:"required"`
	Type       RelationType `yaml:"type" json:"type"`
	Model      string       `yaml:"model" json:"model" validate:"required"`
	Target     string       `yaml:"target" json:"target" validate:"required"`
	ForeignKey string       `yaml:"foreignKey" json:"foreignKey" validate:"required"`
}

// Child returns the name of the model holding the foreign key.
func (r Relation) Child() string {
	if r.Type == HasMany {
		return r.Target
	}
	return r.Model
}

// Parent returns the name of the referenced model.
func (r Relation) Parent() string {
	if r.Type == HasMany {
		return r.Model
	}
	return r.Target
}

// Registry stores model and relation descriptors.
type Registry struct {
	models    map[string]*Model
	relations map[string][]Relation
	validate  *validator.Validate
	mutex     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[string]*Model),
		relations: make(map[string][]Relation),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Define validates and registers a model descriptor.
func (r *Registry) Define(m Model) (*Model, error) {
	if err := r.check(m); err != nil {
		return nil, err
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.models[m.Name]; ok {
		return nil, fmt.Errorf("model %s already defined", m.Name)
	}
	model := m
	model.Properties = append([]Property(nil), m.Properties...)
	r.models[m.Name] = &model
	return &model, nil
}

// MustDefine is Define for package level declarations.
func (r *Registry) MustDefine(m Model) *Model {
	model, err := r.Define(m)
	if err != nil {
		panic(err)
	}
	return model
}

func (r *Registry) check(m Model) error {
	var problems []string
	if err := r.validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	if !m.IDType.IsValid() {
		problems = append(problems, "invalid id type")
	}
	seen := make(map[string]struct{}, len(m.Properties))
	for _, p := range m.Properties {
		if IsIDField(p.Name) {
			problems = append(problems, fmt.Sprintf("%s is reserved for the identifier", p.Name))
		}
		if _, dup := seen[p.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate property %s", p.Name))
		}
		seen[p.Name] = struct{}{}
		if !p.Type.IsValid() {
			problems = append(problems, fmt.Sprintf("%s has an invalid type", p.Name))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Model: m.Name, Problems: problems}
	}
	return nil
}

// Model returns the descriptor registered under name.
func (r *Registry) Model(name string) (*Model, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}

// Models returns all models sorted by ascending priority, then name.
func (r *Registry) Models() []*Model {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	result := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// HasMany declares that parent owns many child records and registers the
// inverse belongsTo. An empty foreignKey defaults to "<parent>Id"; the key is
// added to the child as an indexed property when missing.
func (r *Registry) HasMany(parent, child, foreignKey string) (Relation, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	p, ok := r.models[parent]
	if !ok {
		return Relation{}, fmt.Errorf("%w: %s", ErrUnknownModel, parent)
	}
	c, ok := r.models[child]
	if !ok {
		return Relation{}, fmt.Errorf("%w: %s", ErrUnknownModel, child)
	}
	if foreignKey == "" {
		foreignKey = lowerFirst(parent) + "Id"
	}
	many := Relation{
		Name:       inflection.Plural(lowerFirst(child)),
		Type:       HasMany,
		Model:      parent,
		Target:     child,
		ForeignKey: foreignKey,
	}
	one := Relation{
		Name:       lowerFirst(parent),
		Type:       BelongsTo,
		Model:      child,
		Target:     parent,
		ForeignKey: foreignKey,
	}
	if err := r.addRelation(many); err != nil {
		return Relation{}, err
	}
	if err := r.addRelation(one); err != nil {
		return Relation{}, err
	}
	ensureForeignKey(c, p, foreignKey)
	return many, nil
}

// BelongsTo declares only the child to parent direction.
func (r *Registry) BelongsTo(child, parent, foreignKey string) (Relation, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	c, ok := r.models[child]
	if !ok {
		return Relation{}, fmt.Errorf("%w: %s", ErrUnknownModel, child)
	}
	p, ok := r.models[parent]
	if !ok {
		return Relation{}, fmt.Errorf("%w: %s", ErrUnknownModel, parent)
	}
	if foreignKey == "" {
		foreignKey = lowerFirst(parent) + "Id"
	}
	rel := Relation{
		Name:       lowerFirst(parent),
		Type:       BelongsTo,
		Model:      child,
		Target:     parent,
		ForeignKey: foreignKey,
	}
	if err := r.addRelation(rel); err != nil {
		return Relation{}, err
	}
	ensureForeignKey(c, p, foreignKey)
	return rel, nil
}

// addRelation expects the write lock to be held. Re-declaring an identical
// relation is a no-op.
func (r *Registry) addRelation(rel Relation) error {
	if err := r.validate.Struct(rel); err != nil {
		return fmt.Errorf("invalid relation %s.%s: %w", rel.Model, rel.Name, err)
	}
	for _, existing := range r.relations[rel.Model] {
		if existing.Name != rel.Name {
			continue
		}
		if existing == rel {
			return nil
		}
		return fmt.Errorf("relation %s.%s already defined", rel.Model, rel.Name)
	}
	r.relations[rel.Model] = append(r.relations[rel.Model], rel)
	return nil
}

func ensureForeignKey(child, parent *Model, fk string) {
	if _, ok := child.Property(fk); ok {
		return
	}
	typ := ObjectIDType
	if parent.IDType == StringID {
		typ = StringType
	}
	child.Properties = append(child.Properties, Property{Name: fk, Type: typ, Index: true})
}

// Relations returns the relations declared on model.
func (r *Registry) Relations(model string) []Relation {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]Relation(nil), r.relations[model]...)
}

// Relation returns the named relation of model.
func (r *Registry) Relation(model, name string) (Relation, bool) {
	for _, rel := range r.Relations(model) {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}

// RelationBetween returns the first relation of the given type from model to
// target.
func (r *Registry) RelationBetween(model, target string, typ RelationType) (Relation, bool) {
	for _, rel := range r.Relations(model) {
		if rel.Target == target && rel.Type == typ {
			return rel, true
		}
	}
	return Relation{}, false
}

// AllRelations returns every declared relation ordered by model then name.
func (r *Registry) AllRelations() []Relation {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]Relation, 0)
	for _, rels := range r.relations {
		out = append(out, rels...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// ModelNames returns the registered model names, sorted.
func (r *Registry) ModelNames() []string {
	models := r.Models()
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	sort.Strings(names)
	return names
}

// Describe renders a one-line summary of a model for logs and the CLI.
func (m *Model) Describe() string {
	props := make([]string, 0, len(m.Properties))
	for _, p := range m.Properties {
		flags := ""
		if p.Unique {
			flags = ",unique"
		} else if p.Index {
			flags = ",index"
		}
		props = append(props, p.Name+":"+p.Type.Name()+flags)
	}
	return fmt.Sprintf("%s(%s, id=%s) {%s}", m.Name, m.CollectionName(), m.IDType.Name(), strings.Join(props, " "))
}
