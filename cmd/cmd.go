// Package cmd wires the command line surface: training runs, offline
// evaluation of prediction files, and version reporting.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/convqa/convqa/checkpoint"
	"github.com/convqa/convqa/config"
	"github.com/convqa/convqa/coqa"
	"github.com/convqa/convqa/envconfig"
	"github.com/convqa/convqa/evaluate"
	"github.com/convqa/convqa/format"
	"github.com/convqa/convqa/model"
	"github.com/convqa/convqa/progress"
	"github.com/convqa/convqa/train"
	"github.com/convqa/convqa/version"
)

func NewCLI() *cobra.Command {
	level := slog.LevelInfo
	if envconfig.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	rootCmd := &cobra.Command{
		Use:   "convqa",
		Short: "Conversational question answering trainer",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}

	cobra.EnableCommandSorting = false

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on an encoded dataset",
		Args:  cobra.NoArgs,
		RunE:  TrainHandler,
	}
	trainCmd.Flags().String("config", "", "Hyperparameter file (JSON)")
	trainCmd.Flags().String("data", "", "Encoded training dataset (JSON)")
	trainCmd.Flags().String("val-data", "", "Encoded validation dataset (JSON)")
	trainCmd.Flags().String("resume", "", "Checkpoint to resume from, or \"latest\"")
	trainCmd.Flags().String("metrics", "", "Append metric records to this JSONL file")
	trainCmd.Flags().Int("dim", 64, "Embedding size of the baseline model")
	_ = trainCmd.MarkFlagRequired("data")
	_ = trainCmd.MarkFlagRequired("val-data")

	evalCmd := &cobra.Command{
		Use:   "eval PREDICTIONS",
		Short: "Score a prediction file and print the metric summary",
		Args:  cobra.ExactArgs(1),
		RunE:  EvalHandler,
	}
	evalCmd.Flags().Int("worst", 5, "Number of worst conversations to show per source")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("convqa version", version.Version)
		},
	}

	rootCmd.AddCommand(trainCmd, evalCmd, versionCmd)
	return rootCmd
}

func TrainHandler(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.FromFile(path); err != nil {
			return err
		}
	}
	if envconfig.CheckpointDir != "" {
		cfg.CheckpointDir = envconfig.CheckpointDir
	}

	dataPath, _ := cmd.Flags().GetString("data")
	valPath, _ := cmd.Flags().GetString("val-data")

	trainSet, err := loadDataset(dataPath)
	if err != nil {
		return err
	}
	valSet, err := loadDataset(valPath)
	if err != nil {
		return err
	}

	vocab := vocabSize(trainSet, valSet)
	dim, _ := cmd.Flags().GetInt("dim")
	m, err := model.NewBaseline(cfg.ModelType, vocab, dim, cfg.Seed)
	if err != nil {
		return err
	}

	var count uint64
	for _, p := range m.Parameters() {
		count += uint64(p.Value.Shape().TotalSize())
	}
	slog.Info("model built", "model_type", cfg.ModelType, "vocab_size", vocab, "dim", dim, "parameters", format.HumanNumber(count))

	trainLoader := coqa.NewLoader(trainSet, cfg.BatchSize, cfg.Seed, true)
	valLoader := coqa.NewLoader(valSet, cfg.ValidationBatchSize(), cfg.Seed, false)

	sinks := train.MultiSink{train.SlogSink{}}
	if path, _ := cmd.Flags().GetString("metrics"); path != "" {
		jsonl, err := train.NewJSONLSink(path)
		if err != nil {
			return err
		}
		defer jsonl.Close()
		sinks = append(sinks, jsonl)
	}

	trainer, err := train.New(cfg, m, trainLoader, valLoader, sinks)
	if err != nil {
		return err
	}

	if resume, _ := cmd.Flags().GetString("resume"); resume != "" {
		if resume == "latest" {
			path, counter, err := checkpoint.Latest(cfg.CheckpointDir)
			if err != nil {
				return err
			}
			slog.Info("resuming from latest checkpoint", "path", path, "counter", counter)
			resume = path
		}
		if err := trainer.Resume(resume); err != nil {
			return err
		}
	}

	if !envconfig.NoProgress {
		p := progress.NewProgress(os.Stderr)
		defer p.Stop()

		bar := progress.NewBar("training", int64(trainer.TotalSteps()), 0)
		p.Add("train", bar)
		trainer.OnStep = func(step, total int) {
			bar.Set(int64(step))
		}
	}

	return trainer.Run(ctx)
}

func EvalHandler(cmd *cobra.Command, args []string) error {
	preds, err := evaluate.LoadPredictions(args[0])
	if err != nil {
		return err
	}

	p := progress.NewProgress(os.Stderr)
	spinner := progress.NewSpinner("scoring predictions")
	p.Add("eval", spinner)

	started := time.Now()
	evaluate.Evaluate(preds)
	summary := evaluate.Summarize(preds)

	convs, err := evaluate.Conversations(cmd.Context(), preds)
	if err != nil {
		p.StopAndClear()
		return err
	}

	p.StopAndClear()
	slog.Info("predictions scored", "predictions", len(preds), "duration", format.ExactDuration(time.Since(started)))

	evaluate.WriteSummary(os.Stdout, summary)

	if n, _ := cmd.Flags().GetInt("worst"); n > 0 && len(convs) > 0 {
		fmt.Println()
		evaluate.WriteWorstConversations(os.Stdout, evaluate.WorstConversations(convs, n))
	}
	return nil
}

func loadDataset(path string) (coqa.Dataset, error) {
	ds, err := coqa.LoadDataset(path)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(path); err == nil {
		slog.Info("dataset loaded", "path", filepath.Base(path), "examples", len(ds), "size", format.HumanBytes(info.Size()))
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}
	return ds, nil
}

// vocabSize sizes the embedding from the data: one slot past the highest
// token id seen in inputs or labels.
func vocabSize(sets ...coqa.Dataset) int {
	var max int32
	for _, ds := range sets {
		for _, ex := range ds {
			for _, id := range ex.InputIDs {
				if id > max {
					max = id
				}
			}
			for _, id := range ex.Labels {
				if id > max {
					max = id
				}
			}
		}
	}
	return int(max) + 1
}
