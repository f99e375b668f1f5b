package renderer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// RenderPDF converts a bound Markdown document to PDF with pandoc. templatePath and classPath are
// optional; when classPath is set its directory is added to TEXINPUTS.
func RenderPDF(ctx context.Context, markdownPath, outputPath, templatePath, classPath string) (err error) {
	// Validate pandoc exists
	err = checkPandocExists(ctx)
	if err != nil {
		return err
	}

	// Validate input files exist
	err = validateFiles(nonEmpty(markdownPath, templatePath, classPath)...)
	if err != nil {
		return err
	}

	// Ensure output directory exists
	outputDir := filepath.Dir(outputPath)
	err = os.MkdirAll(outputDir, 0750)
	if err != nil {
		err = errors.Wrapf(err, "failed to create output directory: %s", outputDir)
		return err
	}

	cmd := exec.CommandContext(ctx, "pandoc", pandocArgs(markdownPath, outputPath, templatePath)...)

	if classPath != "" {
		classDir := filepath.Dir(classPath)
		texinputs := classDir + ":" + os.Getenv("TEXINPUTS")
		cmd.Env = append(os.Environ(), "TEXINPUTS="+texinputs)
	}

	// Capture output
	var output []byte
	output, err = cmd.CombinedOutput()
	if err != nil {
		err = errors.Wrapf(err, "pandoc failed: %s", string(output))
		return err
	}

	return err
}

func pandocArgs(markdownPath, outputPath, templatePath string) (args []string) {
	args = []string{"-f", "markdown", "-t", "pdf", "-o", outputPath}
	if templatePath != "" {
		args = append(args, "--template", templatePath)
	}
	args = append(args, "--number-sections=false", markdownPath)
	return args
}

// checkPandocExists verifies pandoc is installed.
func checkPandocExists(ctx context.Context) (err error) {
	cmd := exec.CommandContext(ctx, "pandoc", "--version")
	err = cmd.Run()
	if err != nil {
		err = errors.New("pandoc not found in PATH (install pandoc to generate PDFs)")
		return err
	}
	return err
}

// validateFiles checks that required files exist.
func validateFiles(paths ...string) (err error) {
	for _, path := range paths {
		_, err = os.Stat(path)
		if os.IsNotExist(err) {
			err = errors.Errorf("file not found: %s", path)
			return err
		}
	}
	return err
}

func nonEmpty(paths ...string) (kept []string) {
	for _, path := range paths {
		if path != "" {
			kept = append(kept, path)
		}
	}
	return kept
}
