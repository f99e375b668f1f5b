package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/config"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

func TestMasterLocation(t *testing.T) {
	cfg := config.Config{MasterLocation: "/cfg/master.json"}

	tests := []struct {
		name      string
		args      []string
		cfg       config.Config
		want      string
		wantError bool
	}{
		{name: "argument wins", args: []string{"cli.json"}, cfg: cfg, want: "cli.json"},
		{name: "config fallback", cfg: cfg, want: "/cfg/master.json"},
		{name: "nothing given", cfg: config.Config{}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := masterLocation(tt.args, tt.cfg)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	doc := binder.NewDocument("minimal", "minimal.docx", binder.FormatDOCX, nil)

	if got := outputPath("explicit.docx", "out", "Jane", doc); got != "explicit.docx" {
		t.Errorf("Expected explicit path, got %s", got)
	}
	if got := outputPath("", "out", "Jane Doe", doc); got != filepath.Join("out", "Jane_Doe-minimal.docx") {
		t.Errorf("Unexpected derived path %s", got)
	}
	if got := getOutputDir("", "./output"); got != "./output" {
		t.Errorf("Expected config output dir, got %s", got)
	}
}

func TestOriginOf(t *testing.T) {
	v := view.View{Origins: map[string]view.Origin{
		"basics.phone": view.OriginDefault,
		"work":         view.OriginRecord,
	}}

	tests := []struct {
		path   string
		want   view.Origin
		wantOK bool
	}{
		{path: "basics.phone", want: view.OriginDefault, wantOK: true},
		{path: "work.position", want: view.OriginRecord, wantOK: true},
		{path: "basics.name"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := originOf(v, tt.path)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Expected (%q, %v), got (%q, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(&buf, "Working")

	s.start()
	s.start()
	time.Sleep(150 * time.Millisecond)
	s.stopSpinner()
	s.stopSpinner()

	if !bytes.Contains(buf.Bytes(), []byte("Working")) {
		t.Errorf("Expected spinner message, got %q", buf.String())
	}
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	templates := filepath.Join(dir, "templates")
	err := os.MkdirAll(templates, 0750)
	if err != nil {
		t.Fatalf("Failed to create templates dir: %v", err)
	}

	master := filepath.Join(dir, "master.yaml")
	err = os.WriteFile(master, []byte("basics:\n  name: Jane Doe\n  label: Engineer\n  email: jane@example.com\n  phone: \"+1 555\"\n"), 0600)
	if err != nil {
		t.Fatalf("Failed to write master: %v", err)
	}

	err = os.WriteFile(filepath.Join(templates, "cv.md"), []byte("# {{ basics.name }}\n{{ basics.email }}\n{{ basics.phone }}"), 0600)
	if err != nil {
		t.Fatalf("Failed to write template: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.json")
	cfg := config.Config{
		Name:         "Jane Doe",
		ProfilesDir:  filepath.Join(dir, "profiles"),
		TemplatesDir: templates,
		Defaults:     config.DefaultConfig{OutputDir: filepath.Join(dir, "out"), Profile: "minimal"},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	err = os.WriteFile(cfgPath, data, 0600)
	if err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	rootCmd.SetArgs([]string{"render", master, "--config", cfgPath, "-t", "cv.md"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		renderTemplate = ""
		configFile = ""
	})

	err = rootCmd.Execute()
	if err != nil {
		t.Fatalf("Render command failed: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "out", "Jane_Doe-minimal.md"))
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}

	want := "# Jane Doe\n[jane@example.com](mailto:jane@example.com)\n"
	if string(out) != want {
		t.Errorf("Expected %q, got %q", want, string(out))
	}
}
