// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/lorebook/pkg/lore"
)

var exportCmd = &cobra.Command{
	Use:   "export <destination>",
	Short: "Export the configured templates to a lorefile",
	Long: `Loads the configured templates file and writes it to the destination in
the format chosen by its extension (.json, .yaml, .yml). Useful for sharing a
template set or converting between formats.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(args[0])
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(dest string) error {
	src := config.Templates.Path
	if src == "" {
		return fmt.Errorf("no templates path configured (set templates.path or --templates)")
	}
	templates, skipped, err := lore.LoadFile(src)
	if err != nil {
		return err
	}
	for _, sk := range skipped {
		fmt.Printf("warning: entry %s skipped: %s\n", sk.Name, sk.Reason)
	}
	if err := lore.SaveFile(dest, templates); err != nil {
		return err
	}
	fmt.Printf("exported %d templates to %s\n", len(templates), dest)
	return nil
}
