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
	"github.com/teradata-labs/lorebook/pkg/registry"
)

var checkCmd = &cobra.Command{
	Use:   "check <lorefile>",
	Short: "Validate a templates lorefile",
	Long: `Loads a lorefile the way the engine would: skipped entries and regex
patterns that fail to compile are reported as warnings, a duplicate template
name fails validation (exit code 1).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(path string) error {
	templates, skipped, err := lore.LoadFile(path)
	if err != nil {
		return err
	}
	for _, sk := range skipped {
		fmt.Printf("warning: entry %s skipped: %s\n", sk.Name, sk.Reason)
	}

	badPatterns := 0
	for _, t := range templates {
		for _, perr := range t.Clone().Compile(0) {
			badPatterns++
			fmt.Printf("warning: template %s: pattern %q does not compile: %v\n",
				perr.Template, perr.Pattern, perr.Err)
		}
	}

	logger, err := buildLogger(LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		return err
	}
	reg := registry.New(registry.Config{Logger: logger})
	if err := reg.Load(templates); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("%s: %d templates ok (%d entries skipped, %d patterns dropped)\n",
		path, len(templates), len(skipped), badPatterns)
	return nil
}
