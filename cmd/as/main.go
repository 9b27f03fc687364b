// Command as is the assembler CLI: `as [-o OUT] [-s] [-r] IN`.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/albatros064/asnp/internal/arch"
	"github.com/albatros064/asnp/internal/asmcore"
	"github.com/albatros064/asnp/internal/diag"
)

var (
	outPath    string
	symDump    bool
	rawOutput  bool
	archDir    string
)

func main() {
	root := &cobra.Command{
		Use:   "as [flags] IN",
		Short: "Assemble a single source file into an ELF32 relocatable object",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&outPath, "output", "o", "", "output path (default: IN.o)")
	root.Flags().BoolVarP(&symDump, "symbols", "s", false, "write OUT.sym with resolved symbol addresses")
	root.Flags().BoolVarP(&rawOutput, "raw", "r", false, "emit raw concatenated segment bytes instead of ELF")
	root.Flags().StringVar(&archDir, "arch-dir", "arches", "directory to search for NAME.arch.yaml")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	in := args[0]
	out := outPath
	if out == "" {
		out = in + ".o"
	}

	a := asmcore.New(arch.Load, archDir)
	if err := a.AssembleFile(in); err != nil {
		report(err)
		os.Exit(-1)
	}

	unresolved, err := a.Resolve(!rawOutput)
	if err != nil {
		report(err)
		os.Exit(-1)
	}

	if rawOutput {
		if err := os.WriteFile(out, a.RawOutput(), 0644); err != nil {
			report(err)
			os.Exit(-1)
		}
	} else {
		obj, err := a.BuildObject(unresolved)
		if err != nil {
			report(err)
			os.Exit(-1)
		}
		if err := obj.Write(out); err != nil {
			report(err)
			os.Exit(-1)
		}
	}

	if symDump {
		symPath := out + ".sym"
		if err := os.WriteFile(symPath, []byte(a.SymbolDump()), 0644); err != nil {
			report(err)
			os.Exit(-1)
		}
	}

	return nil
}

func report(err error) {
	if de, ok := err.(*diag.Error); ok {
		fmt.Fprint(os.Stderr, diag.Render(de, ""))
		return
	}
	fmt.Fprintln(os.Stderr, err)
}
