// Command pegc is the PEG toolchain's CLI driver: parse a grammar file
// and either match it against a data file (by compiling it and running
// the reference VM), or compile it to a serialized bytecode program
// (spec.md §6).
//
// Grounded on the teacher's cmd/smog/main.go for the run/compile/
// disassemble command shape, restructured onto cobra/pflag the way
// open-policy-agent-opa's cmd package builds its root command.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	humanize "github.com/dustin/go-humanize"

	"github.com/arkenfold/pegc/pkg/ast"
	"github.com/arkenfold/pegc/pkg/bytecode"
	"github.com/arkenfold/pegc/pkg/compiler"
	"github.com/arkenfold/pegc/pkg/logging"
	"github.com/arkenfold/pegc/pkg/matcher"
	"github.com/arkenfold/pegc/pkg/parser"
	"github.com/arkenfold/pegc/pkg/report"
	"github.com/arkenfold/pegc/pkg/vm"
)

type params struct {
	grammarPath string
	dataPath    string
	startRule   string
	compileOnly bool
	outPath     string
	emitCapture bool
	quiet       bool
	runTests    bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	p := &params{}

	root := &cobra.Command{
		Use:           "pegc",
		Short:         "Parse, match, and compile Parsing Expression Grammars",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, p)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&p.grammarPath, "grammar", "g", "", "grammar file (required)")
	flags.StringVarP(&p.dataPath, "data", "d", "", "data file to match against (required unless -c)")
	flags.StringVarP(&p.startRule, "start", "s", "", "start rule name")
	flags.BoolVarP(&p.compileOnly, "compile", "c", false, "compile only; write binary program")
	flags.StringVarP(&p.outPath, "out", "o", "", "output path for compiled program (default: grammar path with .bin extension)")
	flags.BoolVarP(&p.emitCapture, "capture", "p", false, "verbose compiler/VM debug logging (capture instructions are emitted whenever the grammar uses capture operators, with or without -p)")
	flags.BoolVarP(&p.quiet, "quiet", "q", false, "suppress debug dump")
	flags.BoolVarP(&p.runTests, "test", "t", false, "run built-in tests")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return 0
}

// exitErr carries a specific process exit code alongside its message.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee *exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func execute(cmd *cobra.Command, p *params) error {
	log := logging.NoOp()
	if p.emitCapture {
		log = logging.New()
		_ = log.SetLevel("debug")
	}

	if p.runTests {
		return runBuiltinTests(cmd, log)
	}

	if p.grammarPath == "" {
		return &exitErr{code: 2, err: errors.New("pegc: -g PATH is required")}
	}

	src, err := os.ReadFile(p.grammarPath)
	if err != nil {
		return &exitErr{code: 2, err: errors.Wrap(err, "pegc: reading grammar file")}
	}

	grammar, err := parseGrammar(string(src))
	if err != nil {
		fmt.Fprintln(cmd.OutOrStderr(), report.Format(err, string(src)))
		return &exitErr{code: 1, err: err}
	}

	if p.compileOnly {
		return doCompile(cmd, p, grammar, log)
	}
	return doMatch(cmd, p, grammar, log)
}

func parseGrammar(src string) (*ast.Grammar, error) {
	p, err := parser.New(src)
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

func doCompile(cmd *cobra.Command, p *params, grammar *ast.Grammar, log logging.Logger) error {
	if p.startRule == "" {
		return &exitErr{code: 2, err: errors.New("pegc: -s NAME is required to compile")}
	}

	prog, err := compiler.Compile(grammar, p.startRule, log)
	if err != nil {
		return &exitErr{code: 3, err: errors.Wrap(err, "pegc: compile failed")}
	}

	out := p.outPath
	if out == "" {
		out = defaultOutPath(p.grammarPath)
	}

	f, err := os.Create(out)
	if err != nil {
		return &exitErr{code: 3, err: errors.Wrap(err, "pegc: creating output file")}
	}
	defer f.Close()

	if err := bytecode.Encode(f, prog); err != nil {
		return &exitErr{code: 3, err: errors.Wrap(err, "pegc: encoding program")}
	}

	if !p.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "compiled %s -> %s (%s, %d instructions)\n",
			p.grammarPath, out, humanize.Bytes(uint64(len(prog.Code)*4)), len(prog.Code))
	}
	return nil
}

func doMatch(cmd *cobra.Command, p *params, grammar *ast.Grammar, log logging.Logger) error {
	if p.startRule == "" {
		return &exitErr{code: 2, err: errors.New("pegc: -s NAME is required to match")}
	}
	if p.dataPath == "" {
		return &exitErr{code: 2, err: errors.New("pegc: -d PATH is required to match")}
	}

	data, err := os.ReadFile(p.dataPath)
	if err != nil {
		return &exitErr{code: 2, err: errors.Wrap(err, "pegc: reading data file")}
	}

	prog, err := compiler.Compile(grammar, p.startRule, log)
	if err != nil {
		return &exitErr{code: 3, err: errors.Wrap(err, "pegc: compile failed")}
	}

	res, err := vm.Run(prog, string(data), log)
	if err != nil {
		return &exitErr{code: 4, err: errors.Wrap(err, "pegc: match failed")}
	}

	if !p.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "matched=%v pos=%d\n", res.Matched, res.Pos)
	}
	if !res.Matched {
		return &exitErr{code: 5, err: errors.New("pegc: no match")}
	}
	return nil
}

func defaultOutPath(grammarPath string) string {
	ext := filepath.Ext(grammarPath)
	if ext == "" {
		return grammarPath + ".bin"
	}
	return strings.TrimSuffix(grammarPath, ext) + ".bin"
}

// runBuiltinTests runs six small grammars end to end (parse, direct
// match, compile, and VM execution) and reports any disagreement, for
// the -t flag's "run built-in tests" contract. S1-S3 are a plain
// sequence, a repetition and a predicate; S4-S6 are the ordered-choice,
// not and labeled-failure grammars that pkg/compiler's tests compile.
func runBuiltinTests(cmd *cobra.Command, log logging.Logger) error {
	scenarios := []struct {
		name  string
		src   string
		start string
		input string
		want  bool
	}{
		{"S1-sequence", `S <- 'a' 'b' 'c'`, "S", "abc", true},
		{"S2-repetition", `S <- 'a'+ 'b'`, "S", "aaab", true},
		{"S3-predicate", `S <- &'a' 'a' 'b'`, "S", "ab", true},
		{"S4-ordered-choice", `S <- 'a' / 'b'`, "S", "b", true},
		{"S5-not", `S <- !'a'`, "S", "b", true},
		{"S6-labeled-failure", `S <- 'a'^f`, "S", "a", true},
	}

	failures := 0
	for _, sc := range scenarios {
		grammar, err := parseGrammar(sc.src)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: parse error: %v\n", sc.name, err)
			failures++
			continue
		}

		matched, _, err := matcher.Match(grammar, sc.start, sc.input)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: matcher error: %v\n", sc.name, err)
			failures++
			continue
		}

		prog, err := compiler.Compile(grammar, sc.start, log)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: compile error: %v\n", sc.name, err)
			failures++
			continue
		}

		res, err := vm.Run(prog, sc.input, log)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: vm error: %v\n", sc.name, err)
			failures++
			continue
		}

		if matched != sc.want || res.Matched != sc.want {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: matcher=%v vm=%v want=%v\n", sc.name, matched, res.Matched, sc.want)
			failures++
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", sc.name)
	}

	if failures > 0 {
		return &exitErr{code: 6, err: errors.Errorf("pegc: %d built-in test(s) failed", failures)}
	}
	return nil
}
