package cmd

import (
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Serendipathy/cv-generation-system/pkg/profile"
)

//nolint:gochecknoglobals // Cobra boilerplate
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Inspect rendering profiles",
	Long: `List, show and describe rendering profiles.

Profiles come from the builtin set (balanced, minimal) plus every .json,
.yaml or .yml file in the profiles directory. Files override builtins with
the same profileId.`,
}

//nolint:gochecknoglobals // Cobra boilerplate
var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfilesList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var profilesShowCmd = &cobra.Command{
	Use:   "show <profile>",
	Short: "Print a profile with inheritance applied",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesShow,
}

//nolint:gochecknoglobals // Cobra boilerplate
var profilesSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of profile files",
	Long: `Print the JSON Schema of profile files. Point your editor at it for
completion and validation while writing profiles.

Example:
  cvgen profiles schema > profile.schema.json`,
	Args: cobra.NoArgs,
	RunE: runProfilesSchema,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesListCmd, profilesShowCmd, profilesSchemaCmd)
}

func runProfilesList(cmd *cobra.Command, args []string) (err error) {
	var a app
	a, err = newApp("")
	if err != nil {
		return err
	}

	registry := a.engine.Registry()
	for _, s := range registry.List() {
		marker := " "
		if s.ID == a.cfg.Defaults.Profile {
			marker = "*"
		}
		fmt.Printf("%s %-16s %-24s %-20s %s\n", marker, s.ID, s.Name, s.Template, s.Source)
	}

	problems := registry.Problems()
	if len(problems) == 0 {
		return err
	}

	names := make([]string, 0, len(problems))
	for name := range problems {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nSkipped %d profile(s):\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s: %v\n", name, problems[name])
	}

	return err
}

func runProfilesShow(cmd *cobra.Command, args []string) (err error) {
	var a app
	a, err = newApp("")
	if err != nil {
		return err
	}

	var p profile.Profile
	p, err = a.engine.Registry().Resolve(args[0])
	if err != nil {
		return err
	}

	var data []byte
	data, err = yaml.Marshal(p)
	if err != nil {
		err = errors.Wrapf(err, "failed to marshal profile %s", p.ID)
		return err
	}

	fmt.Printf("# source: %s\n%s", p.Source, data)
	return err
}

func runProfilesSchema(cmd *cobra.Command, args []string) (err error) {
	var data []byte
	data, err = profile.JSONSchema()
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return err
}
