package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/algo-modular/bridge"
	"github.com/cwbudde/algo-modular/codegen"
	"github.com/cwbudde/algo-modular/nodes"
	"github.com/cwbudde/algo-modular/patch"
)

func main() {
	patchPath := flag.String("patch", "patch.json", "Patch JSON file path")
	uid := flag.String("uid", "", "Node uid for the compiled patch (default patch.<file name>)")
	pkg := flag.String("package", "patches", "Package name of the generated file")
	typeName := flag.String("type", "", "Go type name (default derived from the uid)")
	output := flag.String("out", "", "Output .go file path (default stdout)")
	flag.Parse()

	p, err := patch.Load(*patchPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading patch %q: %v\n", *patchPath, err)
		os.Exit(1)
	}
	if *uid == "" {
		*uid = bridge.PatchUID(*patchPath)
	}
	plan, err := patch.Compile(p, nodes.NewCatalog(), *uid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error compiling patch: %v\n", err)
		os.Exit(1)
	}
	src, err := codegen.Generate(plan, codegen.Options{
		Package:  *pkg,
		TypeName: *typeName,
		Source:   filepath.Base(*patchPath),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating code: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		os.Stdout.Write(src)
		return
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, src, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d steps)\n", *output, len(plan.Steps))
}
