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

package database

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/tomoncle/hummer-mongodb/types"
	"gopkg.in/yaml.v3"
)

const (
	commonFixtureDir   = "common"
	defaultFixtureRoot = "configs/data"
	unorderedFixture   = 999
)

var fixtureOrder = regexp.MustCompile(`^(\d+)_`)

// FixtureFile is one YAML file of seed records:
//
//	fixtures:
//	  - model: Post
//	    records:
//	      - {id: 5f1e..., title: Welcome}
type FixtureFile struct {
	Fixtures []Fixture `yaml:"fixtures"`
}

// Fixture lists records for one model.
type Fixture struct {
	Model   string           `yaml:"model"`
	Records []map[string]any `yaml:"records"`
}

// FixtureFileInfo describes a fixture file discovered on disk.
type FixtureFileInfo struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

// SeedResult is the outcome of applying one fixture file.
type SeedResult struct {
	File     string
	Records  int
	Duration time.Duration
	Error    error
}

// SeedManager applies YAML fixtures from <root>/common and
// <root>/environments/<env> through a Connector. Records with an id are
// upserted so reseeding is idempotent.
type SeedManager struct {
	connector   Connector
	registry    *schema.Registry
	environment string
	rootPath    string
	logger      Logger
}

func NewSeedManager(c Connector, r *schema.Registry, environment string) *SeedManager {
	return &SeedManager{
		connector:   c,
		registry:    r,
		environment: environment,
		rootPath:    defaultFixtureRoot,
		logger:      GetLogger(),
	}
}

// SetRootPath sets the directory fixtures are loaded from.
func (s *SeedManager) SetRootPath(path string) {
	s.rootPath = path
}

func (s *SeedManager) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Execute applies every fixture file in order and stops at the first
// failure.
func (s *SeedManager) Execute(ctx context.Context) ([]SeedResult, error) {
	s.logger.Info("Starting data seeding", "environment", s.environment, "path", s.rootPath)

	files, err := s.Files()
	if err != nil {
		return nil, fmt.Errorf("failed to get fixture files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No fixture files found")
		return nil, nil
	}

	results := make([]SeedResult, 0, len(files))
	for _, f := range files {
		res := s.apply(ctx, f)
		results = append(results, res)
		if res.Error != nil {
			s.logger.Error("Fixture file failed", "file", res.File, "error", res.Error)
			return results, fmt.Errorf("fixture file %s: %w", res.File, res.Error)
		}
		s.logger.Info("Fixture file applied", "file", res.File, "records", res.Records, "duration", res.Duration.String())
	}
	s.logger.Info("Data seeding completed", "files", len(results), "environment", s.environment)
	return results, nil
}

// Files returns the common fixtures followed by the environment fixtures,
// each group ordered by its NN_ prefix.
func (s *SeedManager) Files() ([]FixtureFileInfo, error) {
	var files []FixtureFileInfo

	common, err := s.filesFromDir(filepath.Join(s.rootPath, commonFixtureDir), commonFixtureDir)
	if err != nil {
		return nil, err
	}
	files = append(files, common...)

	if s.environment != "" {
		envPath := filepath.Join(s.rootPath, "environments", s.environment)
		if _, err := os.Stat(envPath); err == nil {
			envFiles, err := s.filesFromDir(envPath, s.environment)
			if err != nil {
				return nil, err
			}
			files = append(files, envFiles...)
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Environment != files[j].Environment {
			return files[i].Environment == commonFixtureDir
		}
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func (s *SeedManager) filesFromDir(dir, environment string) ([]FixtureFileInfo, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []FixtureFileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := strings.ToLower(d.Name())
		if d.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			return nil
		}
		files = append(files, FixtureFileInfo{
			Path:        path,
			Name:        d.Name(),
			Order:       parseFixtureOrder(d.Name()),
			Environment: environment,
		})
		return nil
	})
	return files, err
}

func parseFixtureOrder(name string) int {
	if m := fixtureOrder.FindStringSubmatch(name); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return unorderedFixture
}

func (s *SeedManager) apply(ctx context.Context, f FixtureFileInfo) SeedResult {
	start := time.Now()
	res := SeedResult{File: f.Path}

	content, err := os.ReadFile(f.Path)
	if err != nil {
		res.Error = fmt.Errorf("failed to read file: %w", err)
		return res
	}
	rendered, err := s.render(string(content))
	if err != nil {
		res.Error = err
		return res
	}
	var file FixtureFile
	if err := yaml.Unmarshal([]byte(rendered), &file); err != nil {
		res.Error = fmt.Errorf("failed to parse fixtures: %w", err)
		return res
	}

	for _, fx := range file.Fixtures {
		m, err := s.registry.Model(fx.Model)
		if err != nil {
			res.Error = err
			break
		}
		for _, raw := range fx.Records {
			rec := types.Record(raw)
			if _, hasID := rec[types.IDKey]; hasID {
				_, err = s.connector.UpdateOrCreate(ctx, m, rec)
			} else {
				_, err = s.connector.Create(ctx, m, rec)
			}
			if err != nil {
				res.Error = err
				break
			}
			res.Records++
		}
		if res.Error != nil {
			break
		}
	}
	res.Duration = time.Since(start)
	return res
}

// render substitutes {{.VAR}} with environment variables plus ENVIRONMENT
// and TIMESTAMP.
func (s *SeedManager) render(content string) (string, error) {
	tmpl, err := template.New("fixture").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
