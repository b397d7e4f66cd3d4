package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/log"
	"fortio.org/struct2env"
	"fortio.org/version"
	"github.com/teris-io/cli"

	"mppl.dev/mpplc/pkg/casl2"
	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/ir"
	"mppl.dev/mpplc/pkg/llvm"
	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/pretty"
	"mppl.dev/mpplc/pkg/source"
	"mppl.dev/mpplc/pkg/xref"
)

var Description = strings.ReplaceAll(`
The MPPL compiler translates a single source file into CASL2 assembly (the
default) or LLVM IR, with auxiliary outputs for the syntax tree, a
pretty-printed reformat and a cross-reference of identifiers. Diagnostics go
to stderr as annotated source excerpts; the exit code is non-zero whenever an
error was reported.
`, "\n", " ")

// Config holds the MPPLC_* environment knobs; command line options win over
// the environment.
type Config struct {
	LogLevel   string // MPPLC_LOG_LEVEL: debug, verbose, info, warning
	ForceColor bool   // MPPLC_FORCE_COLOR: ANSI styling even when not a tty
}

var Mpplc = cli.New(Description).
	// 'AsOptional()' so that --version works without an input file; the
	// Handler reports the missing argument itself otherwise.
	WithArg(cli.NewArg("file", "The source (.mpl) file to be compiled").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("dump-syntax", "Print the concrete syntax tree as an indented listing").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("pretty-print", "Emit the reformatted source").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("syntax-only", "Stop after parsing").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("emit-llvm", "Produce FILE.ll (LLVM IR)").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("emit-casl2", "Produce FILE.cas (CASL2, the default)").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("cross-ref", "Print the identifier cross-reference after checking").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("dump-ir", "Print the lowered IR listing").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("color", "Force ANSI styling of diagnostics and pretty output").
		WithType(cli.TypeBool)).
	WithOption(cli.NewOption("version", "Print the compiler version and exit").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	cfg := Config{}
	struct2env.SetFromEnv("MPPLC_", &cfg)
	applyLogLevel(cfg.LogLevel)

	if _, asked := options["version"]; asked {
		short, _, _ := version.FromBuildInfo()
		fmt.Println(short)
		return 0
	}
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "ERROR: no input file provided, use --help\n")
		return 1
	}

	_, color := options["color"]
	color = color || cfg.ForceColor
	renderer := diag.Renderer{Color: color}

	content, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: unable to open input file: %s\n", err)
		return 1
	}
	src := source.New(args[0], string(content))
	bag := diag.NewBag()

	// The pipeline runs one stage at a time; diagnostics render at each
	// boundary and an error stops before the next stage starts.
	sink := diagSink{bag: bag, renderer: renderer, src: src}

	log.LogVf("parsing %s (%d bytes)", src.Name, src.Len())
	tree := mppl.Parse(src, bag)

	if _, asked := options["dump-syntax"]; asked {
		tree.Dump(os.Stdout)
	}
	if _, asked := options["pretty-print"]; asked {
		pretty.Print(os.Stdout, tree, pretty.Options{Color: color})
	}
	if sink.flush() {
		return 1
	}
	if _, asked := options["syntax-only"]; asked {
		return 0
	}

	log.LogVf("resolving names")
	events := mppl.Resolve(tree, bag)
	sems := mppl.BuildSemantics(tree, events)
	if sink.flush() {
		return 1
	}

	log.LogVf("checking types over %d bindings", len(sems.Bindings))
	info, types := mppl.Check(tree, sems, bag)
	if sink.flush() {
		return 1
	}

	if _, asked := options["cross-ref"]; asked {
		xref.Print(os.Stdout, src, sems, info)
	}

	log.LogVf("lowering to IR")
	program := ir.NewLowerer(sems, info, types).Lower(tree)
	if _, asked := options["dump-ir"]; asked {
		program.Dump(os.Stdout)
	}

	_, wantLLVM := options["emit-llvm"]
	_, wantCASL2 := options["emit-casl2"]
	if !wantLLVM {
		wantCASL2 = true // CASL2 is the default backend
	}
	stem := strings.TrimSuffix(args[0], filepath.Ext(args[0]))

	if wantCASL2 {
		assembly := casl2.NewGenerator(program, types).Generate()
		if err := casl2.Validate(assembly); err != nil {
			log.Fatalf("internal error: emitted assembly failed validation: %v", err)
		}
		if err := writeOutput(stem+".cas", func(f *os.File) error {
			return assembly.Write(f)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: unable to write output file: %s\n", err)
			return 1
		}
		log.LogVf("wrote %s.cas (%d rows)", stem, len(assembly.Rows))
	}

	if wantLLVM {
		if err := writeOutput(stem+".ll", func(f *os.File) error {
			return llvm.NewGenerator(program, types).Generate(f)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: unable to write output file: %s\n", err)
			return 1
		}
		log.LogVf("wrote %s.ll", stem)
	}

	return 0
}

func writeOutput(path string, emit func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return emit(f)
}

// diagSink renders diagnostics incrementally so each stage boundary reports
// only its own findings.
type diagSink struct {
	bag      *diag.Bag
	renderer diag.Renderer
	src      *source.Source
	rendered int
}

// flush renders everything new and reports whether any error severity has
// been seen so far.
func (d *diagSink) flush() bool {
	all := d.bag.All()
	for _, found := range all[d.rendered:] {
		d.renderer.Render(os.Stderr, d.src, found)
	}
	d.rendered = len(all)
	return d.bag.HasErrors()
}

func applyLogLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		log.SetLogLevel(log.Debug)
	case "verbose":
		log.SetLogLevel(log.Verbose)
	case "warning":
		log.SetLogLevel(log.Warning)
	case "", "info":
		// Default level stays as configured by fortio/log.
	}
}

// Main exists so the end-to-end test scripts can run the binary in-process.
func Main() int { return Mpplc.Run(os.Args, os.Stdout) }

func main() { os.Exit(Main()) }
