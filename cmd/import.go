package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Serendipathy/cv-generation-system/pkg/record"
	"github.com/Serendipathy/cv-generation-system/pkg/renderer"
	"github.com/Serendipathy/cv-generation-system/pkg/summaries"
)

//nolint:gochecknoglobals // Cobra boilerplate
var importOutput string

//nolint:gochecknoglobals // Cobra boilerplate
var importCmd = &cobra.Command{
	Use:   "import <summaries-file>",
	Short: "Convert a structured summaries file into a master record",
	Long: `Convert a structured career summaries file (achievements, profile, skills,
open source projects) into a master record.

Achievements are grouped into work entries by company and role. The profile
block may carry an "email" field, which becomes basics.email. The result is
validated against the record schema before it is written.

Example:
  cvgen import structured-summaries.json -o master.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importOutput, "output", "o", "master.json", "Master record file to write")
}

func runImport(cmd *cobra.Command, args []string) (err error) {
	var data summaries.Data
	data, err = summaries.Load(args[0])
	if err != nil {
		return err
	}

	if getVerbose() {
		fmt.Printf("Loaded %d achievements for %s\n", len(data.Achievements), data.Profile.Name)
	}

	var content []byte
	content, err = json.MarshalIndent(summaries.ToMaster(data), "", "  ")
	if err != nil {
		err = errors.Wrap(err, "failed to marshal master record")
		return err
	}

	var schema *record.Schema
	schema, err = record.DefaultSchema()
	if err != nil {
		return err
	}

	_, err = record.Parse(importOutput, content, schema)
	if err != nil {
		err = errors.Wrap(err, "imported record does not match the schema")
		return err
	}

	err = renderer.WriteFile(append(content, '\n'), importOutput)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Master record written to %s\n", importOutput)
	return err
}
