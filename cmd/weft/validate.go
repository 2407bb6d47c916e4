package main

import (
	"fmt"
	"os"

	fileadapter "github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Compile and check the flow files",
	Long:  `Compiles every flow file in the directory and reports syntax errors, bad expressions, duplicate flow ids and references to undefined flows.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		n, err := runValidate(dir)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Flows are valid! ✅ (%d compiled)\n", n)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(dir string) (int, error) {
	sources, err := fileadapter.NewLoader(dir).Load()
	if err != nil {
		return 0, err
	}
	if len(sources) == 0 {
		return 0, fmt.Errorf("no flow files found in %s", dir)
	}
	defs, err := compiler.New().CompileSources(sources)
	if err != nil {
		return 0, err
	}
	if err := validator.Check(defs); err != nil {
		return 0, err
	}
	return len(defs), nil
}
