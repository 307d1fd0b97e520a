package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/dynsph/internal/cases"
	"github.com/san-kum/dynsph/internal/config"
	"github.com/san-kum/dynsph/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	duration   float64
	maxSteps   int
	scheme     string
	tuner      string
	backend    string
	workers    int
	dp         float64
	partEvery  float64
	live       bool
	save       bool
	jsonOut    bool
	parallel   int
	outFile    string
	partNum    int
	svgFile    string
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "dynsph",
		Short:        "particle fluid simulation runner",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (.yaml or .ini)")

	runCmd := &cobra.Command{
		Use:   "run [case[/preset]]",
		Short: "run a case",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCase,
	}
	caseFlags(runCmd)
	runCmd.Flags().BoolVar(&live, "live", false, "live progress view")
	runCmd.Flags().BoolVar(&save, "save", false, "save the run into the data directory")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "print the run as json")

	sweepCmd := &cobra.Command{
		Use:   "sweep [case/preset...]",
		Short: "run several cases side by side",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSweep,
	}
	caseFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&parallel, "parallel", 0, "members run at once (0 = all)")

	tuneCmd := &cobra.Command{
		Use:   "tune [case[/preset]]",
		Short: "benchmark kernel block sizes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	caseFlags(tuneCmd)

	memCmd := &cobra.Command{
		Use:   "mem [case[/preset]]",
		Short: "show particle memory for a case",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMem,
	}
	caseFlags(memCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot dt and velocity history",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "heave frequency and step statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json, or one particle part as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().IntVar(&partNum, "part", -1, "particle part to render")
	exportCmd.Flags().StringVar(&svgFile, "svg", "", "svg file for --part")

	presetsCmd := &cobra.Command{
		Use:   "presets [case]",
		Short: "list case presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, sweepCmd, tuneCmd, memCmd, listCmd, plotCmd, analyzeCmd, exportCmd, presetsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func caseFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&duration, "time", 0, "simulated duration in seconds")
	cmd.Flags().IntVar(&maxSteps, "steps", 0, "maximum number of steps")
	cmd.Flags().StringVar(&scheme, "scheme", "", "time integration scheme (symplectic, verlet)")
	cmd.Flags().StringVar(&tuner, "tuner", "", "block size selection (fixed, auto)")
	cmd.Flags().StringVar(&backend, "backend", "", "compute backend (auto, cpu, cuda)")
	cmd.Flags().IntVar(&workers, "workers", 0, "cpu backend workers")
	cmd.Flags().Float64Var(&dp, "dp", 0, "particle spacing")
	cmd.Flags().Float64Var(&partEvery, "part-every", 0, "seconds between particle snapshots")
}

func newLogger(out io.Writer) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	return logrus.NewEntry(log), nil
}

// splitCase parses "case" or "case/preset".
func splitCase(arg string) (string, string) {
	name, preset, _ := strings.Cut(arg, "/")
	return name, preset
}

// baseConfig returns the configuration a case argument names: a preset, a
// config file or the defaults.
func baseConfig(arg string) (*config.Config, string, error) {
	name, preset := splitCase(arg)
	var cfg *config.Config
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
		if name != "" {
			cfg.Case.Name = name
		}
	case preset != "":
		cfg = config.GetPreset(name, preset)
		if cfg == nil {
			return nil, "", fmt.Errorf("unknown preset %s/%s", name, preset)
		}
	default:
		cfg = config.DefaultConfig()
		if name != "" {
			cfg.Case.Name = name
		}
	}
	return cfg, preset, nil
}

// resolveConfig layers flags and DYNSPH_* environment variables over the
// base configuration.
func resolveConfig(cmd *cobra.Command, arg string) (*config.Config, string, error) {
	cfg, preset, err := baseConfig(arg)
	if err != nil {
		return nil, "", err
	}

	v := viper.New()
	v.SetEnvPrefix("DYNSPH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, "", err
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return nil, "", err
	}

	if v.IsSet("time") {
		cfg.Integration.Duration = v.GetFloat64("time")
	}
	if v.IsSet("steps") {
		cfg.Integration.MaxSteps = v.GetInt("steps")
	}
	if v.IsSet("scheme") {
		cfg.Integration.Scheme = v.GetString("scheme")
	}
	if v.IsSet("tuner") {
		cfg.Tuning.Mode = v.GetString("tuner")
	}
	if v.IsSet("backend") {
		cfg.Memory.Backend = v.GetString("backend")
	}
	if v.IsSet("workers") {
		cfg.Memory.Workers = v.GetInt("workers")
	}
	if v.IsSet("dp") {
		cfg.Case.Dp = v.GetFloat64("dp")
	}
	if v.IsSet("part-every") {
		cfg.Output.PartEvery = v.GetFloat64("part-every")
	}
	if v.IsSet("save") {
		cfg.Output.Save = v.GetBool("save")
	}
	if v.IsSet("data") {
		cfg.Output.DataDir = v.GetString("data")
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, preset, nil
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func runStore() *storage.Store {
	dir := dataDir
	if dir == "" {
		dir = config.DefaultConfig().Output.DataDir
	}
	return storage.New(dir)
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := runStore().List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCASE\tSCHEME\tNP\tSTEPS\tTIME\tDATE")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4f\t%s\n",
			r.ID, r.Case, r.Scheme, r.Np, r.Steps, r.Time, r.Timestamp.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	names := cases.NewRegistry().List()
	if len(args) == 1 {
		if config.ListPresets(args[0]) == nil {
			return fmt.Errorf("unknown case: %s", args[0])
		}
		names = args
	}
	for _, name := range names {
		presets := config.ListPresets(name)
		sort.Strings(presets)
		fmt.Printf("%s\n", titleStyle.Render(name))
		for _, p := range presets {
			fmt.Printf("  %s/%s\n", name, p)
		}
	}
	return nil
}
