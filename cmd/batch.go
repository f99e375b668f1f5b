package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/renderer"
)

//nolint:gochecknoglobals // Cobra boilerplate
var batchProfiles []string

//nolint:gochecknoglobals // Cobra boilerplate
var batchTemplate string

//nolint:gochecknoglobals // Cobra boilerplate
var batchOutputDir string

//nolint:gochecknoglobals // Cobra boilerplate
var batchPDF bool

//nolint:gochecknoglobals // Cobra boilerplate
var batchKeepMarkdown bool

//nolint:gochecknoglobals // Cobra boilerplate
var batchCmd = &cobra.Command{
	Use:   "batch [master-record-file-or-url]",
	Short: "Render several CV variants at once",
	Long: `Render the master record through several profiles concurrently.

The record is loaded once. Without --profile every registered profile is
rendered. Nothing is written unless every profile renders successfully.

Example:
  cvgen batch master.json
  cvgen batch master.json -p balanced -p minimal --output-dir ./out`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringSliceVarP(&batchProfiles, "profile", "p", nil, "Profiles to render (default all registered profiles)")
	batchCmd.Flags().StringVarP(&batchTemplate, "template", "t", "", "Template file overriding every profile's template")
	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", "", "Output directory (default from config)")
	batchCmd.Flags().BoolVar(&batchPDF, "pdf", false, "Also convert Markdown output to PDF with pandoc")
	batchCmd.Flags().BoolVar(&batchKeepMarkdown, "keep-markdown", true, "Keep markdown files after PDF generation")
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	var a app
	a, err = newApp(batchTemplate)
	if err != nil {
		return err
	}

	var source string
	source, err = masterLocation(args, a.cfg)
	if err != nil {
		return err
	}

	names := batchProfiles
	if len(names) == 0 {
		names = a.engine.Registry().IDs()
	}

	var s *spinner
	if !getVerbose() {
		s = newSpinner(os.Stderr, fmt.Sprintf("Rendering %d profiles...", len(names)))
		s.start()
	}

	var docs []binder.Document
	docs, err = a.engine.RenderAll(ctx, source, names)

	if s != nil {
		s.stopSpinner()
	}
	if err != nil {
		return err
	}

	outDir := getOutputDir(batchOutputDir, a.cfg.Defaults.OutputDir)

	var total uint64
	for _, doc := range docs {
		outPath := filepath.Join(outDir, fileName(a.cfg.Name, doc))
		err = renderer.WriteDocument(doc, outPath)
		if err != nil {
			return err
		}
		total += uint64(doc.Size()) //nolint:gosec // G115: sizes are never negative
		fmt.Printf("✓ %-12s %s\n", doc.Profile, outPath)

		if batchPDF && doc.Format == binder.FormatMarkdown {
			err = convertToPDF(ctx, a, doc, outPath, batchKeepMarkdown)
			if err != nil {
				return err
			}
		}
	}

	fmt.Printf("\n%d documents, %s total\n", len(docs), humanize.Bytes(total))
	return err
}
