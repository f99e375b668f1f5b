// Package renderer writes bound documents to disk and converts Markdown output to PDF.
package renderer

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
)

// WriteDocument writes the document to outputPath. The bytes go to a temporary file in the same
// directory which is renamed into place, so a failed write leaves nothing behind.
func WriteDocument(doc binder.Document, outputPath string) (err error) {
	err = WriteFile(doc.Bytes(), outputPath)
	return err
}

// WriteFile writes data to outputPath atomically, creating the directory as needed.
func WriteFile(data []byte, outputPath string) (err error) {
	// Ensure output directory exists
	outputDir := filepath.Dir(outputPath)
	err = os.MkdirAll(outputDir, 0750)
	if err != nil {
		err = errors.Wrapf(err, "failed to create output directory: %s", outputDir)
		return err
	}

	tmp, err := os.CreateTemp(outputDir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		err = errors.Wrapf(err, "failed to create temporary file in %s", outputDir)
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		err = errors.Wrapf(err, "failed to write %s", tmpName)
		return err
	}

	err = tmp.Close()
	if err != nil {
		err = errors.Wrapf(err, "failed to close %s", tmpName)
		return err
	}

	err = os.Chmod(tmpName, 0600)
	if err != nil {
		err = errors.Wrapf(err, "failed to set permissions on %s", tmpName)
		return err
	}

	err = os.Rename(tmpName, outputPath)
	if err != nil {
		err = errors.Wrapf(err, "failed to move document into place: %s", outputPath)
		return err
	}

	return err
}

// Cleanup removes intermediate files such as Markdown kept for PDF conversion.
func Cleanup(paths ...string) (err error) {
	for _, path := range paths {
		err = os.Remove(path)
		if err != nil {
			err = errors.Wrapf(err, "failed to remove file: %s", path)
			return err
		}
	}
	return err
}

// FileName builds "<name>-<profile><ext>" with accents folded and anything outside [A-Za-z0-9._-]
// replaced by underscores.
func FileName(name, profileID, ext string) (fileName string) {
	base := SanitizeFilename(profileID)
	if name != "" {
		base = SanitizeFilename(name) + "-" + base
	}
	fileName = base + ext
	return fileName
}

// SanitizeFilename makes s safe to use as a file name component.
func SanitizeFilename(s string) (sanitized string) {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	sanitized = strings.Trim(b.String(), "_.")
	if sanitized == "" {
		sanitized = "document"
	}
	return sanitized
}
