package main

import (
	"fmt"
	"math"
	"os"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/dynsph/internal/export"
	"github.com/san-kum/dynsph/internal/metrics"
	"github.com/san-kum/dynsph/internal/storage"
	"github.com/spf13/cobra"
)

func loadRun(runID string) (*storage.RunMetadata, *metrics.Series, error) {
	st := runStore()
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return nil, nil, fmt.Errorf("load series %s: %w", runID, err)
	}
	return meta, series, nil
}

// bodyIds lists the floating bodies present in the series.
func bodyIds(series *metrics.Series) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, s := range series.Samples() {
		for _, b := range s.Bodies {
			if !seen[b.Id] {
				seen[b.Id] = true
				ids = append(ids, b.Id)
			}
		}
	}
	return ids
}

func plot(data []float64, caption string) {
	if len(data) < 2 {
		return
	}
	fmt.Println(asciigraph.Plot(data, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption(caption)))
	fmt.Println()
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if series.Len() < 2 {
		return fmt.Errorf("run %s has %d samples", meta.ID, series.Len())
	}

	fmt.Printf("\n%s %s\n\n", titleStyle.Render(meta.ID), labelStyle.Render(fmt.Sprintf("%d steps, t=%.4fs", meta.Steps, meta.Time)))
	for _, col := range []string{"dt", "velmax", "np"} {
		data, err := series.Column(col)
		if err != nil {
			return err
		}
		plot(data, col)
	}
	for _, id := range bodyIds(series) {
		_, z := series.BodyZ(id)
		plot(z, fmt.Sprintf("body %d z", id))
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("\n%s %s\n\n", titleStyle.Render(meta.ID), labelStyle.Render(meta.Case))

	dts, err := series.Column("dt")
	if err != nil {
		return err
	}
	vels, err := series.Column("velmax")
	if err != nil {
		return err
	}
	var sum, peak float64
	minDt, maxDt := math.Inf(1), 0.0
	for i, dt := range dts {
		sum += dt
		minDt, maxDt = math.Min(minDt, dt), math.Max(maxDt, dt)
		peak = math.Max(peak, vels[i])
	}
	if len(dts) > 0 {
		fmt.Printf("  %s %.3e (min %.3e, max %.3e)\n", labelStyle.Render("mean dt   "), sum/float64(len(dts)), minDt, maxDt)
	}
	fmt.Printf("  %s %.4f m/s\n", labelStyle.Render("peak vel  "), peak)
	if meta.Clamps > 0 {
		fmt.Printf("  %s %s\n", labelStyle.Render("dt clamps "), warnStyle.Render(fmt.Sprint(meta.Clamps)))
	}

	ids := bodyIds(series)
	if len(ids) == 0 {
		fmt.Println("\n  no floating bodies in this run")
		return nil
	}
	for _, id := range ids {
		times, z := series.BodyZ(id)
		freq, err := metrics.DominantFrequency(times, z)
		if err != nil {
			fmt.Printf("\n  body %d: %v\n", id, err)
			continue
		}
		fmt.Printf("\n  %s dominant frequency: %.3f hz\n", valueStyle.Render(fmt.Sprintf("body %d", id)), freq)

		uniform, _ := metrics.Resample(times, z, 256)
		ps := metrics.PowerSpectrum(uniform)
		if len(ps) > 64 {
			ps = ps[:64]
		}
		fmt.Println()
		plot(ps, fmt.Sprintf("body %d heave spectrum", id))
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	if partNum >= 0 {
		return exportPart(args[0])
	}
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outFile == "" {
		return storage.ExportJSON(os.Stdout, *meta, series)
	}
	if err := storage.ExportJSONFile(outFile, *meta, series); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", meta.ID, outFile)
	return nil
}

func exportPart(runID string) error {
	st := runStore()
	meta, err := st.Load(runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	t, parts, err := st.LoadPart(runID, partNum)
	if err != nil {
		return err
	}
	path := svgFile
	if path == "" {
		path = fmt.Sprintf("%s_part_%04d.svg", runID, partNum)
	}
	opts := export.DefaultSVGOptions()
	opts.Dp = meta.Dp
	opts.Title = fmt.Sprintf("%s  part %d  t=%.4fs", meta.Case, partNum, t)
	if err := export.PartSVGFile(path, parts, opts); err != nil {
		return err
	}
	fmt.Printf("rendered %d particles to %s\n", len(parts), path)
	return nil
}
