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

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomoncle/hummer-mongodb/database"
	"github.com/tomoncle/hummer-mongodb/schema"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "hummerctl %s\n", Version)
			return nil
		},
	}
}

func newPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the data source is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Disconnect() }()

			status := m.HealthCheck(cmd.Context())
			if !status.Healthy {
				return fmt.Errorf("data source unhealthy: %s", status.LastError)
			}
			cfg := configFrom(cmd)
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s/%s in %s\n", cfg.ConnectionConfig.Type, cfg.ConnectionConfig.DBName, status.ResponseTime.Round(time.Microsecond))
			return nil
		},
	}
}

func newAutoupdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "autoupdate",
		Short: "Create collections, tables and indexes for the schema file models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, registry, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Disconnect() }()

			if err := m.SyncIndexes(cmd.Context(), registry); err != nil {
				return err
			}
			for _, model := range registry.Models() {
				fmt.Fprintf(cmd.OutOrStdout(), "synced %s\n", model.Name)
			}
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply YAML fixtures for the configured environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, registry, err := connect(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = m.Disconnect() }()

			if sync {
				if err := m.SyncIndexes(cmd.Context(), registry); err != nil {
					return err
				}
			}
			di := configFrom(cmd).DataInitConfig
			seeder := database.NewSeedManager(m.GetConnector(), registry, di.Environment)
			if di.Filepath != "" {
				seeder.SetRootPath(di.Filepath)
			}
			results, err := seeder.Execute(cmd.Context())
			for _, r := range results {
				status := "ok"
				if r.Error != nil {
					status = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s (%d records)\n", status, filepath.Base(r.File), r.Records)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "Sync indexes before seeding")
	return cmd
}

func newRelationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relations",
		Short: "Inspect declared relations",
	}
	var (
		output     string
		withModels bool
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the schema file relations as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(configFrom(cmd))
			if err != nil {
				return err
			}
			f := &schema.File{Models: []schema.Model{}, Relations: registry.AllRelations()}
			if withModels {
				f = schema.Export(registry)
			}
			if output == "" || output == "-" {
				return f.Write(cmd.OutOrStdout())
			}
			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			defer out.Close()
			if err := f.Write(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d relations to %s\n", len(f.Relations), output)
			return nil
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	export.Flags().BoolVar(&withModels, "models", false, "Include model descriptors")
	cmd.AddCommand(export)
	return cmd
}
