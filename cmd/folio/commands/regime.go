package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// regimeCmd groups the market regime commands
var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "시장 레짐 분류 / HMM 학습",
	Long: `시장 레짐을 분류하거나 HMM 모델을 학습합니다.

Subcommands:
  classify  - 지정일 레짐 분류 및 저장
  train     - 룰 기반 라벨로 HMM 모델 학습
  forecast  - 5/10/30일 레짐 예측

Example:
  go run ./cmd/folio regime classify
  go run ./cmd/folio regime train --days 730
  go run ./cmd/folio regime forecast`,
}

var (
	regimeClassifyCmd = &cobra.Command{
		Use:   "classify",
		Short: "레짐 분류",
		RunE:  runRegimeClassify,
	}

	regimeTrainCmd = &cobra.Command{
		Use:   "train",
		Short: "HMM 모델 학습",
		RunE:  runRegimeTrain,
	}

	regimeForecastCmd = &cobra.Command{
		Use:   "forecast",
		Short: "레짐 예측",
		RunE:  runRegimeForecast,
	}
)

var (
	regimeDate      string
	regimeModelName string
	regimeTrainDays int
)

func init() {
	rootCmd.AddCommand(regimeCmd)
	regimeCmd.AddCommand(regimeClassifyCmd)
	regimeCmd.AddCommand(regimeTrainCmd)
	regimeCmd.AddCommand(regimeForecastCmd)

	regimeCmd.PersistentFlags().StringVar(&regimeDate, "date", "", "as-of date YYYY-MM-DD (default today)")
	regimeTrainCmd.Flags().StringVar(&regimeModelName, "name", "", "model name (default hmm-<market>-<date>)")
	regimeTrainCmd.Flags().IntVar(&regimeTrainDays, "days", 730, "training history in calendar days")
}

func asOfDate() (time.Time, error) {
	if regimeDate == "" {
		return time.Now(), nil
	}
	d, err := time.Parse("2006-01-02", regimeDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", regimeDate, err)
	}
	return d, nil
}

func runRegimeClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := asOfDate()
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	r, err := eng.regimes.Update(ctx, date)
	if err != nil {
		return fmt.Errorf("classify regime: %w", err)
	}

	PrintHeader("Market regime " + r.Date.Format("2006-01-02"))
	fmt.Printf("  Regime      : %s\n", r.Type)
	fmt.Printf("  Confidence  : %.1f\n", r.Confidence)
	fmt.Printf("  Volatility  : %.2f%%\n", r.VolatilityLevel)
	fmt.Printf("  Return      : %.2f%%\n", r.MarketReturn)
	fmt.Printf("  Multiplier  : %.1fx\n", r.ThresholdMultiplier)
	fmt.Printf("  Benchmark   : %s (%dd)\n", r.BenchmarkTicker, r.LookbackDays)
	return nil
}

func runRegimeTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := asOfDate()
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	name := regimeModelName
	if name == "" {
		name = fmt.Sprintf("hmm-%s-%s", eng.cfg.Analytics.HMMMarket, date.Format("20060102"))
	}

	model, err := eng.regimes.TrainModel(ctx, name, date, regimeTrainDays)
	if err != nil {
		return fmt.Errorf("train model: %w", err)
	}

	PrintHeader("HMM model " + model.Name)
	fmt.Printf("  Market    : %s\n", model.Market)
	fmt.Printf("  Training  : %s ~ %s\n", model.TrainingStart.Format("2006-01-02"), model.TrainingEnd.Format("2006-01-02"))
	if model.Accuracy != nil {
		fmt.Printf("  Accuracy  : %.1f%%\n", *model.Accuracy*100)
	}
	PrintSuccess(fmt.Sprintf("model #%d saved", model.ID))
	return nil
}

func runRegimeForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := asOfDate()
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer eng.Close()

	forecasts, err := eng.regimes.Forecast(ctx, date)
	if err != nil {
		return fmt.Errorf("forecast regimes: %w", err)
	}

	PrintHeader("Regime forecast " + date.Format("2006-01-02"))
	for _, f := range forecasts {
		p := f.Probabilities
		fmt.Printf("  +%2dd  %-16s %-6s switch=%.2f  bull=%.2f bear=%.2f highvol=%.2f normal=%.2f\n",
			f.HorizonDays, f.PredictedRegime, f.Confidence, f.TransitionProbability,
			p.Bull, p.Bear, p.HighVolatility, p.Normal)
	}
	return nil
}
