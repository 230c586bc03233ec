package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/i474232898/pasture-risk/internal/explain"
	"github.com/i474232898/pasture-risk/internal/params"
	"github.com/i474232898/pasture-risk/internal/scoring"
	"github.com/i474232898/pasture-risk/internal/store"
	"github.com/i474232898/pasture-risk/internal/turnout"
)

var rootCmd = &cobra.Command{
	Use:   "pasturectl",
	Short: "Pasture fructan risk toolbox",
	Long: `pasturectl scores weather windows for pasture fructan risk and turns
scores into per-horse turnout minutes, without any network access.
Inputs are the same aggregated window values the service computes.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PASTURE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("ems", true, "classify with EMS thresholds")
	rootCmd.PersistentFlags().StringToString("set", nil, "parameter overrides, key=value (repeatable)")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("ems", rootCmd.PersistentFlags().Lookup("ems"))
}

func registerCommands() {
	rootCmd.AddCommand(paramsCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(sensitivityCmd())
	rootCmd.AddCommand(turnoutCmd())
	rootCmd.AddCommand(horsesCmd())
}

// overrides parses the --set flag.
func overrides(cmd *cobra.Command) (map[string]float64, error) {
	raw, err := cmd.Flags().GetStringToString("set")
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %q", k, v)
		}
		out[k] = f
	}
	return out, nil
}

// registry returns the default parameters with any --set overrides applied.
// The result is not validated.
func registry(cmd *cobra.Command) (*params.Registry, error) {
	reg := params.Default()
	ov, err := overrides(cmd)
	if err != nil || len(ov) == 0 {
		return reg, err
	}
	return reg.With(reg.Version()+"+local", ov)
}

func engine(cmd *cobra.Command) (*scoring.Engine, error) {
	reg, err := registry(cmd)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return scoring.NewEngine(reg)
}

func paramsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "params", Short: "Inspect the parameter registry"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every parameter with range and provenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry(cmd)
			if err != nil {
				return err
			}
			specs := reg.Specs()
			if viper.GetBool("json") {
				return printJSON(specs)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Key", "Value", "Range", "Source", "Version"})
			for _, s := range specs {
				rng := ""
				if s.Range != nil {
					rng = fmt.Sprintf("[%g, %g]", s.Range.Min, s.Range.Max)
				}
				tw.AppendRow(table.Row{s.Key, s.Value, rng, s.Source, s.Version})
			}
			tw.Render()
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run the registry self-check",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry(cmd)
			if err != nil {
				return err
			}
			res := reg.SelfCheck()
			if viper.GetBool("json") {
				return printJSON(res)
			}
			if res.Valid {
				fmt.Printf("registry %s: %d parameters, ok\n", reg.Version(), reg.Len())
				return nil
			}
			for _, e := range res.Errors {
				fmt.Println("-", e)
			}
			return fmt.Errorf("registry %s failed self-check", reg.Version())
		},
	})
	return cmd
}

// inputFlags binds the window input and pasture adjustment to cmd's flags.
func inputFlags(cmd *cobra.Command, in *scoring.Input, adj *scoring.PastureAdjustment) {
	f := cmd.Flags()
	f.Float64Var(&in.TempMin, "tmin", 0, "daily minimum temperature (°C)")
	f.Float64Var(&in.TempMax, "tmax", 0, "daily maximum temperature (°C)")
	f.Float64Var(&in.RadiationMorning, "rad", 0, "mean morning radiation (W/m²)")
	f.Float64Var(&in.CloudCoverSlot, "cloud", 0, "mean slot cloud cover (%)")
	f.Float64Var(&in.Precip7dSum, "precip", 0, "7-day precipitation sum (mm)")
	f.Float64Var(&in.Wind3dAvg, "wind", 0, "3-day mean wind (km/h)")
	f.Float64Var(&in.RelativeHumidityMorning, "rh", 0, "mean morning relative humidity (%)")
	f.Float64Var(&in.ET07dAvg, "et0", 0, "7-day mean daily ET0 (mm)")
	f.Float64Var(&adj.Multiplier, "multiplier", 1, "pasture adjustment multiplier")
	f.Float64Var(&adj.Offset, "offset", 0, "pasture adjustment offset")
	f.String("slot", string(scoring.SlotMorning), "time slot: morning, noon or evening")
	_ = cmd.MarkFlagRequired("tmin")
	_ = cmd.MarkFlagRequired("tmax")
}

func resolveInput(in scoring.Input, slot string) (scoring.Input, error) {
	s, err := scoring.ParseSlot(slot)
	if err != nil {
		return scoring.Input{}, err
	}
	in.Slot = s
	return scoring.NewInput(in)
}

func scoreCmd() *cobra.Command {
	var (
		in  scoring.Input
		adj scoring.PastureAdjustment
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one window",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine(cmd)
			if err != nil {
				return err
			}
			slot, _ := cmd.Flags().GetString("slot")
			valid, err := resolveInput(in, slot)
			if err != nil {
				return err
			}
			b := e.Contributions(valid, adj)
			score := b.Final()
			level := e.RiskLevel(score, viper.GetBool("ems"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{
					"score":          score,
					"level":          level,
					"reason":         e.Reason(valid, score),
					"breakdown":      b,
					"formulaVersion": e.FormulaVersion(),
					"paramsVersion":  e.ParamsVersion(),
				})
			}
			fmt.Printf("score %d (%s): %s\n", score, level, e.Reason(valid, score))
			tw := newTable()
			tw.AppendHeader(table.Row{"Component", "Points"})
			tw.AppendRows([]table.Row{
				{"base", b.Base},
				{"temperature", b.Temperature},
				{"dryness", b.Dryness()},
				{"diurnal", b.Diurnal},
				{"cloud", b.Cloud},
				{"heat", b.Heat},
				{"radiation", b.Radiation},
				{"humidity", b.Humidity},
				{"pasture", b.Pasture},
			})
			tw.AppendFooter(table.Row{"final", score})
			tw.Render()
			return nil
		},
	}
	inputFlags(cmd, &in, &adj)
	return cmd
}

func explainCmd() *cobra.Command {
	var (
		in  scoring.Input
		adj scoring.PastureAdjustment
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain which factors drive a window's score",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine(cmd)
			if err != nil {
				return err
			}
			slot, _ := cmd.Flags().GetString("slot")
			valid, err := resolveInput(in, slot)
			if err != nil {
				return err
			}
			ex := explain.NewExplainer(e).Explain(valid, adj, e.CalculateScore(valid, adj))
			if viper.GetBool("json") {
				return printJSON(ex)
			}
			fmt.Printf("score %d: %s\n", ex.Score, ex.Reason)
			tw := newTable()
			tw.AppendHeader(table.Row{"Factor", "Value", "Unit", "Contribution"})
			tw.AppendRow(table.Row{"base", "", "", ex.Base})
			for _, f := range ex.Factors {
				tw.AppendRow(table.Row{f.Label, f.Value, f.Unit, fmt.Sprintf("%+.1f", f.Contribution)})
			}
			tw.AppendFooter(table.Row{"omitted / rounding", "", "", fmt.Sprintf("%+.1f / %+.1f", ex.Omitted, ex.Rounding)})
			tw.Render()
			return nil
		},
	}
	inputFlags(cmd, &in, &adj)
	return cmd
}

func sensitivityCmd() *cobra.Command {
	var (
		in  scoring.Input
		adj scoring.PastureAdjustment
	)
	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Rank inputs by how much a ±10% change moves the score",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine(cmd)
			if err != nil {
				return err
			}
			slot, _ := cmd.Flags().GetString("slot")
			valid, err := resolveInput(in, slot)
			if err != nil {
				return err
			}
			results := explain.NewAnalyzer(e, adj).Analyze(valid)
			if viper.GetBool("json") {
				return printJSON(results)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Rank", "Field", "Value", "Δ+", "Δ-", "Sensitivity"})
			for _, r := range results {
				tw.AppendRow(table.Row{r.Rank, r.Field, r.BaseValue, r.DeltaUp, r.DeltaDown, fmt.Sprintf("%.2f", r.Sensitivity)})
			}
			tw.Render()
			return nil
		},
	}
	inputFlags(cmd, &in, &adj)
	return cmd
}

func turnoutCmd() *cobra.Command {
	var (
		horse       turnout.HorseProfile
		muzzle      bool
		hayNsc      float64
		concKg      float64
		concNsc     float64
		score       int
		pasturePath string
	)
	cmd := &cobra.Command{
		Use:   "turnout",
		Short: "Recommend turnout minutes for one horse at a given score",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine(cmd)
			if err != nil {
				return err
			}
			cfg := turnout.DefaultPastureConfig()
			if pasturePath != "" {
				if cfg, err = turnout.LoadPastureConfig(pasturePath); err != nil {
					return err
				}
			}
			rec, err := turnout.NewRecommender(cfg, e, turnout.AnalysisTable{})
			if err != nil {
				return err
			}

			horse.ID = "cli"
			horse.IsActive = true
			horse.Muzzle = turnout.MuzzleNone
			if muzzle {
				horse.Muzzle = turnout.MuzzleOn
			}
			horse.HayNscPct = &hayNsc
			if cmd.Flags().Changed("conc-kg") {
				horse.ConcKgPerDay, horse.ConcNscPct = &concKg, &concNsc
			}
			if err := horse.Validate(); err != nil {
				return err
			}

			level := e.RiskLevel(score, horse.IsEMSRisk)
			window := turnout.Window{Date: time.Now().UTC().Format(time.DateOnly), Slot: scoring.SlotMorning}
			r, err := rec.ForWindow(horse, window, score, level)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(r)
			}
			fmt.Printf("score %d (%s): %d min turnout [%s]\n", r.Score, r.Level, r.TurnoutMin, r.Explain.Rule)
			tw := newTable()
			tw.AppendHeader(table.Row{"Budget g", "Base g", "Allowance g", "Pasture NSC %", "Intake kg DM/h", "NSC g/h"})
			tw.AppendRow(table.Row{
				fmt.Sprintf("%.0f", r.Explain.NSCBudgetG),
				fmt.Sprintf("%.0f", r.Explain.BaseNscG),
				fmt.Sprintf("%.0f", r.Explain.NscAllowG),
				r.Explain.PastureNscPct,
				r.Explain.IntakeRateKgDmPerH,
				fmt.Sprintf("%.0f", r.Explain.NscPerHourG),
			})
			tw.Render()
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&score, "score", 0, "risk score 0-100")
	f.Float64Var(&horse.MassKg, "mass", 500, "body mass (kg)")
	f.BoolVar(&horse.IsEMSRisk, "ems-horse", false, "horse is EMS/laminitis prone")
	f.BoolVar(&muzzle, "muzzle", false, "grazing muzzle fitted")
	f.Float64Var(&horse.HayKgPerDay, "hay-kg", 0, "hay fed per day (kg)")
	f.Float64Var(&hayNsc, "hay-nsc", 10, "hay NSC (%)")
	f.Float64Var(&concKg, "conc-kg", 0, "concentrate per day (kg)")
	f.Float64Var(&concNsc, "conc-nsc", 30, "concentrate NSC (%)")
	f.StringVar(&pasturePath, "pasture", "", "YAML turnout policy")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func horsesCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "horses",
		Short: "List horse profiles stored by the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.OpenSQLite(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			horses, err := store.NewHorseRepository(db).List(context.Background())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(horses)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"ID", "Name", "Mass kg", "EMS", "Muzzle", "Hay kg", "Active"})
			for _, h := range horses {
				tw.AppendRow(table.Row{h.ID, h.Name, h.MassKg, h.IsEMSRisk, h.Muzzle, h.HayKgPerDay, h.IsActive})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite horse database (HORSE_DB of the service)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
