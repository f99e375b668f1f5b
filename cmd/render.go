package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/profile"
	"github.com/Serendipathy/cv-generation-system/pkg/renderer"
	"github.com/Serendipathy/cv-generation-system/pkg/watch"
)

// renderTimeout bounds one render, including remote master record fetches and pandoc.
const renderTimeout = 2 * time.Minute

//nolint:gochecknoglobals // Cobra boilerplate
var renderProfile string

//nolint:gochecknoglobals // Cobra boilerplate
var renderTemplate string

//nolint:gochecknoglobals // Cobra boilerplate
var renderOutput string

//nolint:gochecknoglobals // Cobra boilerplate
var renderOutputDir string

//nolint:gochecknoglobals // Cobra boilerplate
var renderPDF bool

//nolint:gochecknoglobals // Cobra boilerplate
var renderKeepMarkdown bool

//nolint:gochecknoglobals // Cobra boilerplate
var renderWatch bool

//nolint:gochecknoglobals // Cobra boilerplate
var renderInteractive bool

//nolint:gochecknoglobals // Cobra boilerplate
var renderCmd = &cobra.Command{
	Use:   "render [master-record-file-or-url]",
	Short: "Render one CV variant",
	Long: `Render the master record through a profile into its template.

The master record can be provided as:
- A JSON or YAML file path (e.g., master.json)
- A URL (e.g., https://example.com/cv/master.json)
- Nothing, in which case master_location from the config is used

The profile is a registered profile id or a path to a profile file. The
template named by the profile is looked up in the templates directory
unless --template overrides it.

Example:
  cvgen render master.json
  cvgen render master.json -p minimal -o ~/Documents/cv.docx
  cvgen render -p academic -t academic.md --pdf
  cvgen render master.json --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderProfile, "profile", "p", "", "Profile id or profile file (default from config)")
	renderCmd.Flags().StringVarP(&renderTemplate, "template", "t", "", "Template file overriding the profile's template")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Output file (default <output-dir>/<name>-<profile>.<ext>)")
	renderCmd.Flags().StringVar(&renderOutputDir, "output-dir", "", "Output directory (default from config)")
	renderCmd.Flags().BoolVar(&renderPDF, "pdf", false, "Also convert Markdown output to PDF with pandoc")
	renderCmd.Flags().BoolVar(&renderKeepMarkdown, "keep-markdown", true, "Keep markdown files after PDF generation")
	renderCmd.Flags().BoolVar(&renderWatch, "watch", false, "Re-render when the master record, profiles or templates change")
	renderCmd.Flags().BoolVarP(&renderInteractive, "interactive", "i", false, "Pick the profile from a list")
}

func runRender(cmd *cobra.Command, args []string) (err error) {
	var a app
	a, err = newApp(renderTemplate)
	if err != nil {
		return err
	}

	var source string
	source, err = masterLocation(args, a.cfg)
	if err != nil {
		return err
	}

	profileName := renderProfile
	if profileName == "" && renderInteractive {
		profileName, err = selectProfile(a.engine.Registry().List(), a.cfg.Defaults.Profile)
		if err != nil {
			return err
		}
	}
	if profileName == "" {
		profileName = a.cfg.Defaults.Profile
	}

	err = renderOnce(a, source, profileName)
	if err != nil || !renderWatch {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = watchAndRender(ctx, a, source, profileName)
	return err
}

func renderOnce(a app, source, profileName string) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	if getVerbose() {
		fmt.Printf("Rendering %s with profile %s\n", source, profileName)
	}

	var doc binder.Document
	doc, err = a.engine.Render(ctx, source, profileName)
	if err != nil {
		return err
	}

	outDir := getOutputDir(renderOutputDir, a.cfg.Defaults.OutputDir)
	outPath := outputPath(renderOutput, outDir, a.cfg.Name, doc)

	err = renderer.WriteDocument(doc, outPath)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s written to %s (%s)\n", doc.Profile, outPath, humanize.Bytes(uint64(doc.Size()))) //nolint:gosec // G115: sizes are never negative

	if !renderPDF {
		return err
	}

	err = convertToPDF(ctx, a, doc, outPath, renderKeepMarkdown)
	return err
}

func convertToPDF(ctx context.Context, a app, doc binder.Document, markdownPath string, keepMarkdown bool) (err error) {
	if doc.Format != binder.FormatMarkdown {
		fmt.Printf("Warning: PDF conversion needs a Markdown template, %s is %s\n", doc.Template, doc.Format)
		return err
	}

	pdfPath := strings.TrimSuffix(markdownPath, filepath.Ext(markdownPath)) + ".pdf"

	err = renderer.RenderPDF(ctx, markdownPath, pdfPath, a.cfg.Pandoc.TemplatePath, a.cfg.Pandoc.ClassFile)
	if err != nil {
		fmt.Printf("Warning: Failed to render PDF: %v\n", err)
		fmt.Printf("Markdown saved at: %s\n", markdownPath)
		return err
	}
	fmt.Printf("✓ PDF saved at: %s\n", pdfPath)

	// Clean up markdown files unless --keep-markdown is set
	if !keepMarkdown {
		err = renderer.Cleanup(markdownPath)
		if err != nil {
			fmt.Printf("Warning: Failed to clean up markdown files: %v\n", err)
		}
	}

	return err
}

func watchAndRender(ctx context.Context, a app, source, profileName string) (err error) {
	var w *watch.Watcher
	w, err = watch.New(a.logger, 0)
	if err != nil {
		return err
	}
	defer func() {
		_ = w.Close()
	}()

	err = w.Add(source, a.cfg.ProfilesDir, a.cfg.TemplatesDir, renderTemplate, profileName)
	if err != nil {
		return err
	}

	fmt.Println("Watching for changes (Ctrl-C to stop)...")

	err = w.Run(ctx, func(_ context.Context, changed string) (renderErr error) {
		fmt.Printf("Changed: %s\n", changed)

		// Rebuild so edited profiles and templates are reloaded.
		var fresh app
		fresh, renderErr = newApp(renderTemplate)
		if renderErr != nil {
			return renderErr
		}

		renderErr = renderOnce(fresh, source, profileName)
		if renderErr != nil {
			fmt.Printf("Render failed: %v\n", renderErr)
		}
		return renderErr
	})
	return err
}

func selectProfile(summaries []profile.Summary, preselect string) (name string, err error) {
	if len(summaries) == 0 {
		err = errors.New("no profiles available")
		return name, err
	}

	options := make([]huh.Option[string], 0, len(summaries))
	for _, s := range summaries {
		label := s.ID
		if s.Description != "" {
			label += " - " + s.Description
		}
		options = append(options, huh.NewOption(label, s.ID).Selected(s.ID == preselect))
	}

	err = huh.NewSelect[string]().
		Title("Select a rendering profile").
		Options(options...).
		Value(&name).
		Run()
	if err != nil {
		err = errors.Wrap(err, "profile selection cancelled")
		return name, err
	}

	return name, err
}

func fileName(name string, doc binder.Document) (file string) {
	file = renderer.FileName(name, doc.Profile, doc.Extension())
	return file
}
