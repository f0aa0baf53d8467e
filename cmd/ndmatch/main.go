// Package main provides ndmatch, which resolves the tensors of a SafeTensors
// file against an overload table.
//
// Usage:
//
//	ndmatch -config overloads.toml model.safetensors [tensor ...]
//	ndmatch version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/born-ml/ndbridge/internal/config"
	"github.com/born-ml/ndbridge/internal/logging"
	"github.com/born-ml/ndbridge/loader"
	"github.com/born-ml/ndbridge/ndarray"
)

const version = "v0.1.0-dev"

// errMisses is returned when at least one tensor matched no overload.
var errMisses = errors.New("some tensors matched no overload")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "version" {
		fmt.Fprintf(stdout, "ndmatch %s\n", version)
		return nil
	}

	fs := flag.NewFlagSet("ndmatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML file with [bind] settings and [[overload]] tables")
	verbose := fs.Bool("v", false, "debug logging")
	noColor := fs.Bool("no-color", false, "disable colored output")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: ndmatch -config overloads.toml file.safetensors [tensor ...]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("missing safetensors file")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	sigs, err := cfg.Signatures()
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		return fmt.Errorf("no overloads configured")
	}

	logCfg := cfg.Log.Logging(logging.ProfileRuntime)
	logCfg.App = "ndmatch"
	logCfg.Out = stderr
	logging.ApplyEnv(&logCfg)
	if *verbose {
		logCfg.Level = zerolog.DebugLevel
	}
	logger := logging.New(logCfg)

	p := newPrinter(stdout, *noColor || cfg.Log.NoColor)

	f, err := loader.OpenWithLogger(fs.Arg(0), &logger)
	if err != nil {
		return err
	}
	defer f.Close()

	names := fs.Args()[1:]
	if len(names) == 0 {
		names = f.Names()
	}

	binder := ndarray.NewBinder(cfg.Bind.Options(&logger))
	misses := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := bindOne(binder, f, name, sigs, p)
		if err != nil {
			return err
		}
		if !ok {
			misses++
		}
	}
	logger.Debug().Int("tensors", len(names)).Int("misses", misses).Msg("done")
	if misses > 0 {
		return fmt.Errorf("%w: %d of %d", errMisses, misses, len(names))
	}
	return nil
}

// bindOne reports false for a clean miss; any other failure is returned.
func bindOne(binder *ndarray.Binder, f *loader.File, name string, sigs []ndarray.Signature, p *printer) (bool, error) {
	arr, err := f.Tensor(name)
	if err != nil {
		return false, err
	}
	b, err := binder.Bind(arr, sigs)
	if err != nil {
		var miss *ndarray.NoOverloadError
		if errors.As(err, &miss) {
			p.miss(name, miss)
			return false, nil
		}
		if errors.Is(err, ndarray.ErrFormat) {
			p.unsupported(name, err)
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", name, err)
	}
	defer b.Close()
	p.hit(name, b)
	return true, nil
}

type printer struct {
	out   io.Writer
	name  func(a ...any) string
	ok    func(a ...any) string
	fail  func(a ...any) string
	faint func(a ...any) string
}

func newPrinter(out io.Writer, noColor bool) *printer {
	if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		noColor = true
	}
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
		return c.SprintFunc()
	}
	return &printer{
		out:   out,
		name:  mk(color.Bold),
		ok:    mk(color.FgGreen),
		fail:  mk(color.FgRed),
		faint: mk(color.Faint),
	}
}

func (p *printer) hit(name string, b *ndarray.Binding) {
	how := "direct"
	if b.Converted {
		how = "converted"
	}
	sig := b.Signature.Name
	if sig == "" {
		sig = fmt.Sprintf("#%d", b.Index+1)
	}
	fmt.Fprintf(p.out, "%s %s -> %s (%s) %s\n", p.ok("ok"), p.name(name), sig, how, p.faint(b.Handle.String()))
}

func (p *printer) miss(name string, err *ndarray.NoOverloadError) {
	fmt.Fprintf(p.out, "%s %s: no overload\n", p.fail("miss"), p.name(name))
	for _, line := range strings.Split(err.Diagnostic(), "\n") {
		fmt.Fprintf(p.out, "  %s\n", p.faint(line))
	}
}

func (p *printer) unsupported(name string, err error) {
	fmt.Fprintf(p.out, "%s %s: %v\n", p.fail("skip"), p.name(name), err)
}
