package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/dynsph/internal/autotune"
	"github.com/san-kum/dynsph/internal/config"
	"github.com/san-kum/dynsph/internal/sim"
	"github.com/san-kum/dynsph/internal/storage"
	"github.com/san-kum/dynsph/internal/tui"
	"github.com/spf13/cobra"
)

func runCase(cmd *cobra.Command, args []string) error {
	cfg, preset, err := resolveConfig(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}

	logOut := io.Writer(os.Stderr)
	if live {
		logOut = io.Discard
	}
	log, err := newLogger(logOut)
	if err != nil {
		return err
	}

	r, err := sim.Build(cfg, log)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var st *storage.Store
	runID := storage.NewRunID(cfg.Case.Name)
	if cfg.Output.Save {
		st = storage.New(cfg.Output.DataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if r.Config.PartEvery > 0 {
			r.Sim.AddPartObserver(st.PartWriter(runID))
		}
	}

	var res *sim.Result
	var runErr error
	if live {
		if r.Config.PartEvery == 0 && cfg.Integration.Duration > 0 {
			r.Config.PartEvery = cfg.Integration.Duration / 200
		}
		view := tui.NewLive(fmt.Sprintf("%s  %s", cfg.Case.Name, r.Runtime.Mode),
			cfg.Integration.Duration, cfg.Integration.MaxSteps, cancel, tea.WithAltScreen())
		r.Sim.AddObserver(view)
		r.Sim.AddPartObserver(view.OnPart)

		done := make(chan struct{})
		go func() {
			defer close(done)
			res, runErr = r.Sim.Run(ctx, r.Config)
			view.Done(res, runErr)
		}()
		if err := view.Run(); err != nil {
			cancel()
			<-done
			return err
		}
		<-done
	} else {
		res, runErr = r.Sim.Run(ctx, r.Config)
	}

	stopped := errors.Is(runErr, context.Canceled)
	if (runErr != nil && !stopped) || res == nil {
		return runErr
	}

	meta := storage.RunMetadata{
		ID:      runID,
		Case:    cfg.Case.Name,
		Preset:  preset,
		Scheme:  cfg.Integration.Scheme,
		Device:  r.Runtime.Device.Name(),
		Dp:      cfg.Case.Dp,
		H:       cfg.H(),
		Np:      res.Counts.Np,
		Npb:     res.Counts.Npb,
		Steps:   res.Steps,
		Time:    res.Time,
		Parts:   res.Parts,
		Clamps:  res.Clamps,
		Metrics: res.Metrics,
	}
	if st != nil {
		if _, err := st.Save(meta, res.Series); err != nil {
			return err
		}
	}

	if jsonOut {
		return storage.ExportJSON(os.Stdout, meta, res.Series)
	}
	printSummary(meta, res, stopped)
	if st != nil {
		fmt.Printf("\n%s %s\n", labelStyle.Render("saved"), valueStyle.Render(runID))
	}
	return nil
}

func printSummary(meta storage.RunMetadata, res *sim.Result, stopped bool) {
	status := titleStyle.Render("done")
	if stopped {
		status = warnStyle.Render("stopped")
	}
	fmt.Printf("\n%s %s\n\n", titleStyle.Render(meta.Case), status)

	row := func(label, value string) {
		fmt.Printf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label)), valueStyle.Render(value))
	}
	row("device", meta.Device)
	row("scheme", meta.Scheme)
	row("particles", fmt.Sprintf("%d (%d boundary)", meta.Np, meta.Npb))
	row("steps", fmt.Sprintf("%d", meta.Steps))
	row("time", fmt.Sprintf("%.5f s", meta.Time))
	row("parts", fmt.Sprintf("%d", meta.Parts))
	if meta.Clamps > 0 {
		row("dt clamps", warnStyle.Render(fmt.Sprintf("%d", meta.Clamps)))
	}

	names := make([]string, 0, len(meta.Metrics))
	for name := range meta.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row(name, fmt.Sprintf("%.6g", meta.Metrics[name]))
	}
	if res.Timers != "" {
		fmt.Printf("\n%s\n%s", labelStyle.Render("  timers"), res.Timers)
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	configs := make([]*config.Config, len(args))
	for i, arg := range args {
		cfg, _, err := resolveConfig(cmd, arg)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		configs[i] = cfg
	}
	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	devices := make([]string, len(args))
	results, err := sim.NewEnsemble(configs, parallel, log).Run(ctx, func(i int, r *sim.Run) {
		devices[i] = r.Runtime.Mode
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CASE\tMODE\tNP\tSTEPS\tTIME\tPEAK VEL\tMEAN DT")
	for i, res := range results {
		if res == nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t-\n", args[i], devices[i])
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.4f\t%.4f\t%.3e\n", args[i], devices[i],
			res.Counts.Np, res.Steps, res.Time, res.Metrics["peak_velocity"], res.Metrics["mean_dt"])
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	cfg.Tuning.Mode = "auto"
	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	r, err := sim.Build(cfg, log)
	if err != nil {
		return err
	}
	defer r.Close()

	key := autotune.Key{
		Periodic: r.Config.Periodic.Enabled(),
		Symmetry: cfg.Integration.Symmetry,
		Dem:      cfg.Physics.Dem,
	}
	if err := r.Pipeline.Tune(cmd.Context(), key); err != nil {
		return err
	}

	t := r.Pipeline.Tuner()
	sizes := t.Current()
	fmt.Printf("\n%s %s\n\n", titleStyle.Render(cfg.Case.Name), labelStyle.Render(r.Runtime.Mode))
	for _, cat := range []autotune.Category{autotune.ForcesFluid, autotune.ForcesBound, autotune.ForcesDem} {
		timings := t.Timings(cat)
		if len(timings) == 0 {
			continue
		}
		fmt.Printf("  %s %s\n", labelStyle.Render(fmt.Sprintf("%-6s", cat)), valueStyle.Render(fmt.Sprintf("block %d", sizes.For(cat))))
		blocks := make([]int, 0, len(timings))
		for b := range timings {
			blocks = append(blocks, b)
		}
		sort.Ints(blocks)
		for _, b := range blocks {
			fmt.Printf("    %5d  %v\n", b, timings[b])
		}
	}
	fmt.Printf("\n  %s %d\n", labelStyle.Render("benchmarks"), t.Benchmarks())
	return nil
}

func runMem(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolveConfig(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	log, err := newLogger(io.Discard)
	if err != nil {
		return err
	}

	r, err := sim.Build(cfg, log)
	if err != nil {
		return err
	}
	defer r.Close()

	host, device := r.Store.MemoryUsage()
	c := r.Store.Counts()
	mb := func(b int64) string { return fmt.Sprintf("%.2f MB", float64(b)/(1<<20)) }

	fmt.Printf("\n%s %s\n\n", titleStyle.Render(cfg.Case.Name), labelStyle.Render(r.Runtime.Device.Name()))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  particles\t%d\t(%d boundary, %d fluid)\n", c.Np, c.Npb, c.Nfluid())
	fmt.Fprintf(w, "  host capacity\t%d\t%s\n", r.Store.HostCapacity(), mb(host))
	fmt.Fprintf(w, "  device capacity\t%d\t%s\n", r.Store.DeviceCapacity(), mb(device))
	fmt.Fprintf(w, "  margin\t%d\t\n", r.Store.Margin())
	fmt.Fprintf(w, "  bodies\t%d\t\n", len(r.Case.Bodies))
	return w.Flush()
}
