package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/profile"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

//nolint:gochecknoglobals // Cobra boilerplate
var validateProfile string

//nolint:gochecknoglobals // Cobra boilerplate
var validateTemplate string

//nolint:gochecknoglobals // Cobra boilerplate
var validateCmd = &cobra.Command{
	Use:   "validate [master-record-file-or-url]",
	Short: "Check a master record, profile and template without writing output",
	Long: `Validate the master record against the schema, project it through the
profile and list the field paths the template would receive, then parse the
template and list its insertion points.

Example:
  cvgen validate master.json -p balanced
  cvgen validate -p ./profiles/academic.yaml -t academic.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateProfile, "profile", "p", "", "Profile id or profile file (default from config)")
	validateCmd.Flags().StringVarP(&validateTemplate, "template", "t", "", "Template file overriding the profile's template")
}

// insertionLister is implemented by templates that can enumerate their insertion points.
type insertionLister interface {
	InsertionPoints() []string
}

func runValidate(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	var a app
	a, err = newApp(validateTemplate)
	if err != nil {
		return err
	}

	var source string
	source, err = masterLocation(args, a.cfg)
	if err != nil {
		return err
	}

	name := validateProfile
	if name == "" {
		name = a.cfg.Defaults.Profile
	}

	var p profile.Profile
	p, err = a.engine.Registry().Resolve(name)
	if err != nil {
		return err
	}

	var v view.View
	v, err = a.engine.Preview(ctx, source, name)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Master record %s matches schema %s\n", source, a.engine.Schema().Location())
	fmt.Printf("✓ Profile %s (%s) from %s\n\n", p.ID, p.DisplayName(), p.Source)

	printViewPaths(v)

	ref := validateTemplate
	if ref == "" {
		ref = p.Template
	}
	if ref == "" {
		fmt.Println("\nProfile names no template; skipping template check")
		return err
	}

	var tpl binder.Template
	tpl, _, err = a.engine.Store().Load(ref)
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ Template %s (%s)\n", tpl.Name(), tpl.Format())
	if lister, ok := tpl.(insertionLister); ok {
		points := lister.InsertionPoints()
		fmt.Printf("Insertion points (%d):\n", len(points))
		for _, point := range points {
			fmt.Printf("  {{%s}}\n", point)
		}
	}

	return err
}

func printViewPaths(v view.View) {
	paths := v.Paths()
	fmt.Printf("Fields exposed (%d):\n", len(paths))

	width := 0
	for _, path := range paths {
		width = max(width, len(path))
	}

	for _, path := range paths {
		line := fmt.Sprintf("  %-*s", width, path)
		if origin, ok := originOf(v, path); ok && origin != view.OriginRecord {
			line += "  (" + string(origin) + ")"
		}
		if value, found := v.Lookup(path); found {
			if f, isFormatted := value.(view.Formatted); isFormatted {
				line += "  [" + string(f.Directive.Type) + "]"
			}
		}
		fmt.Println(strings.TrimRight(line, " "))
	}
}

// originOf finds the origin recorded for path or its closest recorded ancestor.
func originOf(v view.View, path string) (origin view.Origin, ok bool) {
	for candidate := path; candidate != ""; {
		origin, ok = v.Origins[candidate]
		if ok {
			return origin, ok
		}

		cut := strings.LastIndex(candidate, ".")
		if cut < 0 {
			break
		}
		candidate = candidate[:cut]
	}
	return origin, ok
}
