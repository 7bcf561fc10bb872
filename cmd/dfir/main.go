// Command dfir builds a demonstration dataflow graph (a sparse
// matrix-vector product), runs the transformation passes over it, and
// optionally persists snapshots of the IR to a graph database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dusk-indust/dfir/internal/config"
	"github.com/dusk-indust/dfir/internal/export"
	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/xform"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ProjectRoot string
	Offload     bool
	Snapshot    bool
	Verbose     bool
	Version     bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("dfir", flag.ContinueOnError)
	fs.StringVar(&flags.ProjectRoot, "project-root", ".", "directory containing dfir.yml")
	fs.BoolVar(&flags.Offload, "offload", false, "run the device-offload pass as well")
	fs.BoolVar(&flags.Snapshot, "snapshot", false, "persist IR snapshots to the configured store")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable verbose output")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(flags.ProjectRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	g, err := buildSpmvGraph()
	if err != nil {
		return fmt.Errorf("build demo graph: %w", err)
	}
	if err := ir.Validate(g); err != nil {
		return fmt.Errorf("initial graph invalid: %w", err)
	}

	limit := cfg.PassLimit
	applied, err := xform.ApplyRepeated(g, xform.NewConstSymbolToMap(), false, limit)
	if err != nil {
		return fmt.Errorf("const-symbol-to-map: %w", err)
	}
	if flags.Verbose {
		log.Printf("const-symbol-to-map applied %d time(s)", applied)
	}

	if flags.Offload {
		off := &xform.Offload{Config: offloadConfig(cfg)}
		ok, err := xform.ApplyOnce(g, off, false)
		if err != nil {
			return fmt.Errorf("offload: %w", err)
		}
		if flags.Verbose {
			log.Printf("offload applied: %v", ok)
		}
	}

	xform.SimplifyGraph(g)
	if err := ir.Validate(g); err != nil {
		return fmt.Errorf("transformed graph invalid: %w", err)
	}

	fmt.Printf("graph %s: %d state(s), %d descriptor(s), arglist %v\n",
		g.Name(), len(g.States()), len(g.DataNames()), g.Arglist())

	if flags.Snapshot {
		if err := snapshot(g, cfg); err != nil {
			return err
		}
	}
	return nil
}

// offloadConfig resolves the file settings against the pass defaults.
func offloadConfig(cfg *config.ProjectConfig) xform.OffloadConfig {
	def := xform.DefaultOffloadConfig()
	s := cfg.Offload
	return xform.OffloadConfig{
		ToplevelTransients:  config.Enabled(s.ToplevelTransients, def.ToplevelTransients),
		RegisterTransients:  config.Enabled(s.RegisterTransients, def.RegisterTransients),
		SequentialInnerMaps: config.Enabled(s.SequentialInnerMaps, def.SequentialInnerMaps),
		SkipScalarTasklets:  config.Enabled(s.SkipScalarTasklets, def.SkipScalarTasklets),
		Simplify:            config.Enabled(s.Simplify, def.Simplify),
		ExcludeCopyIn:       s.ExcludeCopyIn,
		ExcludeCopyOut:      s.ExcludeCopyOut,
		ExcludeTasklets:     s.ExcludeTasklets,
		HostMaps:            s.HostMaps,
		HostData:            s.HostData,
	}
}

func snapshot(g *ir.Graph, cfg *config.ProjectConfig) error {
	ctx := context.Background()
	store, err := openStore(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	if err := export.Snapshot(ctx, g, store); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("stored %d graph(s), %d block(s), %d descriptor(s), %d control edge(s)\n",
		stats.Graphs, stats.Blocks, stats.Descriptors, stats.ControlEdges)
	return nil
}
