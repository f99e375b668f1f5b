package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Serendipathy/cv-generation-system/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long: `Create a default config file plus empty profiles and templates directories
next to it.

Example:
  cvgen init
  cvgen init --config ./cvgen.json`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) (err error) {
	path := getConfigFile()
	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	err = config.InitConfig(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	for _, sub := range []string{"profiles", "templates"} {
		err = os.MkdirAll(filepath.Join(dir, sub), 0750)
		if err != nil {
			err = errors.Wrapf(err, "failed to create %s directory", sub)
			return err
		}
	}

	fmt.Printf("✓ Config written to %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Put your master record at %s\n", filepath.Join(dir, "master.json"))
	fmt.Printf("  2. Add .docx or .md templates to %s\n", filepath.Join(dir, "templates"))
	fmt.Println("  3. Run 'cvgen profiles list' and 'cvgen render'")

	return err
}
