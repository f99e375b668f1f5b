package record

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// fetchTimeout caps remote master record downloads.
const fetchTimeout = 30 * time.Second

// Load reads the master record from a file path or an http(s) URL and validates it against schema.
// A nil schema only checks that the document is a JSON object.
func Load(ctx context.Context, location string, schema *Schema) (rec Record, err error) {
	var data []byte
	if isURL(location) {
		data, err = fetchFromURL(ctx, location)
	} else {
		data, err = readFromFile(location)
	}
	if err != nil {
		return rec, err
	}

	rec, err = Parse(location, data, schema)
	return rec, err
}

// Parse decodes raw master record content. YAML is accepted when location ends in .yaml or .yml.
func Parse(location string, data []byte, schema *Schema) (rec Record, err error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		err = &SourceFormatError{Location: location, Err: errors.New("content is empty")}
		return rec, err
	}

	if isYAML(location) {
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			err = &SourceFormatError{Location: location, Err: errors.Wrap(err, "failed to convert YAML")}
			return rec, err
		}
	}

	var document any
	err = json.Unmarshal(data, &document)
	if err != nil {
		err = &SourceFormatError{Location: location, Err: errors.Wrap(err, "failed to parse JSON")}
		return rec, err
	}

	object, ok := document.(map[string]any)
	if !ok {
		err = &SourceFormatError{Location: location, Err: errors.New("top level must be an object")}
		return rec, err
	}

	if schema != nil {
		problems := schema.Validate(document)
		if len(problems) > 0 {
			err = &SourceFormatError{Location: location, Problems: problems, Err: errors.Errorf("does not match schema %s", schema.Location())}
			return rec, err
		}
	}

	rec = Record{
		Source: location,
		Data:   object,
	}

	return rec, err
}

func isURL(location string) (ok bool) {
	parsedURL, urlErr := url.Parse(location)
	ok = urlErr == nil && (parsedURL.Scheme == "http" || parsedURL.Scheme == "https")
	return ok
}

func isYAML(location string) (ok bool) {
	name := location
	if isURL(location) {
		parsedURL, _ := url.Parse(location)
		name = path.Base(parsedURL.Path)
	}

	ext := strings.ToLower(filepath.Ext(name))
	ok = ext == ".yaml" || ext == ".yml"
	return ok
}

// readFromFile reads the master record from disk.
func readFromFile(path string) (data []byte, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		err = &SourceNotFoundError{Location: path, Err: err}
		return data, err
	}

	return data, err
}

// fetchFromURL downloads the master record.
func fetchFromURL(ctx context.Context, urlStr string) (data []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		err = &SourceNotFoundError{Location: urlStr, Err: errors.Wrap(err, "failed to create HTTP request")}
		return data, err
	}

	req.Header.Set("User-Agent", "cvgen/1.0")
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	client := &http.Client{
		Timeout: fetchTimeout,
	}

	var resp *http.Response
	resp, err = client.Do(req)
	if err != nil {
		err = &SourceNotFoundError{Location: urlStr, Err: errors.Wrap(err, "HTTP request failed")}
		return data, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = &SourceNotFoundError{Location: urlStr, Err: errors.Errorf("HTTP request failed with status: %d", resp.StatusCode)}
		return data, err
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		err = &SourceNotFoundError{Location: urlStr, Err: errors.Wrap(err, "failed to read response body")}
		return data, err
	}

	return data, err
}
