// Command ld is the linker CLI: `ld [-o OUT] [-s] [-r] IN...`.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albatros064/asnp/internal/elf"
	"github.com/albatros064/asnp/internal/linker"
)

var (
	outPath string
	symDump bool
	rawOut  bool
)

func main() {
	root := &cobra.Command{
		Use:          "ld [flags] IN...",
		Short:        "Link ELF32 relocatable objects into an executable",
		Args:         cobra.MinimumNArgs(1),
		RunE:         run,
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&outPath, "output", "o", "a.out", "output path")
	root.Flags().BoolVarP(&symDump, "symbols", "s", false, "write OUT.sym with linked symbol addresses")
	root.Flags().BoolVarP(&rawOut, "raw", "r", false, "emit raw concatenated segment bytes instead of an ELF executable")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	l := linker.New()

	if err := l.Load(args); err != nil {
		fmt.Fprintf(os.Stderr, "ld: %v\n", err)
		os.Exit(-1)
	}

	out, err := l.Link()
	if err != nil {
		reportLinkError(err)
		os.Exit(-1)
	}

	if rawOut {
		var raw []byte
		for _, sec := range out.Sections {
			if sec.Type == elf.SHT_NOBITS {
				continue
			}
			raw = append(raw, sec.Data...)
		}
		if err := os.WriteFile(outPath, raw, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "ld: %v\n", err)
			os.Exit(-1)
		}
	} else if err := out.Write(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "ld: %v\n", err)
		os.Exit(-1)
	}

	if symDump {
		if err := writeSymbolDump(l, outPath+".sym"); err != nil {
			fmt.Fprintf(os.Stderr, "ld: %v\n", err)
			os.Exit(-1)
		}
	}

	return nil
}

func writeSymbolDump(l *linker.Linker, path string) error {
	syms := l.Symbols()
	names := make([]string, 0, len(syms))
	for name := range syms {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "0x%08X %s\n", syms[name], name)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

func reportLinkError(err error) {
	switch e := err.(type) {
	case *linker.DuplicateSymbolError:
		for _, name := range e.Names {
			fmt.Fprintf(os.Stderr, "ld: multiple definition of symbol '%s'\n", name)
		}
	case *linker.UndefinedSymbolError:
		for _, name := range e.Names {
			fmt.Fprintf(os.Stderr, "ld: undefined symbol '%s'\n", name)
		}
	default:
		fmt.Fprintf(os.Stderr, "ld: %v\n", err)
	}
}
