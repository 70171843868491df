package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/extbind/classdb"
	"github.com/wippyai/extbind/examples/classes"
	"github.com/wippyai/extbind/foreign"
	"github.com/wippyai/extbind/metrics"
	"github.com/wippyai/extbind/scenario"
	"github.com/wippyai/extbind/storage"
	"github.com/wippyai/extbind/wasmhost"
)

func main() {
	var (
		config      = flag.String("config", "", "Scenario file (YAML); the built-in demo when empty")
		layout      = flag.Bool("layout", false, "Print descriptor layouts and exit")
		schema      = flag.Bool("schema", false, "Print the JSON Schema of scenario files and exit")
		wasmDemo    = flag.Bool("wasm", false, "Drive the example classes from a WebAssembly guest")
		showMetrics = flag.Bool("metrics", false, "Print lifecycle metrics after the run")
		verbose     = flag.Bool("v", false, "Verbose development logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *verbose {
		if err := setupLogging(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	styled := term.IsTerminal(int(os.Stdout.Fd()))

	var err error
	switch {
	case *schema:
		err = printSchema()
	case *interactive:
		if !styled {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		err = runInteractive(*config)
	case *wasmDemo:
		err = runWasm(styled)
	default:
		err = run(*config, *layout, *showMetrics, styled)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	l, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	classdb.SetLogger(l.Named("classdb"))
	storage.SetLogger(l.Named("storage"))
	foreign.SetLogger(l.Named("foreign"))
	wasmhost.SetLogger(l.Named("wasmhost"))
	scenario.SetLogger(l.Named("scenario"))
	classes.SetLogger(l.Named("classes"))
	return nil
}

// session is a foreign runtime with the example classes registered.
type session struct {
	rt       *foreign.Runtime
	registry *classdb.Registry
}

func newSession(opts ...foreign.Option) (*session, error) {
	rt := foreign.New(opts...)
	reg := classdb.New(1, rt)
	if err := classes.RegisterAll(reg); err != nil {
		return nil, fmt.Errorf("register classes: %w", err)
	}
	return &session{rt: rt, registry: reg}, nil
}

func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(path)
}

func printSchema() error {
	data, err := scenario.Schema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

func run(configPath string, layoutOnly, showMetrics, styled bool) error {
	s, err := loadScenario(configPath)
	if err != nil {
		return err
	}

	sess, err := newSession(s.RuntimeOptions()...)
	if err != nil {
		return err
	}

	out := newPrinter(styled)
	out.classes(sess.registry.Classes())
	if layoutOnly {
		return nil
	}

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)
	detach := collector.Attach(storage.Default())
	defer detach()

	tr, runErr := scenario.Run(context.Background(), s, sess.rt)
	if tr != nil {
		out.transcript(tr)
	}
	if showMetrics {
		if err := out.metrics(promReg); err != nil {
			return err
		}
	}
	return runErr
}
