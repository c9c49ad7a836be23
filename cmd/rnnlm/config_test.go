package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/satopirka/anylm/anysgd"
	"github.com/satopirka/anylm/internal/logger"
	"github.com/satopirka/anylm/internal/monitor"
	"github.com/satopirka/anylm/rnnlm"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/urfave/cli/v3"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "epochs: 7\nbatch_size: 16\ncell: lstm\nlr: 0.5\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Epochs == nil || *cfg.Epochs != 7 || *cfg.BatchSize != 16 || *cfg.Cell != "lstm" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Seed != nil || cfg.Train != nil {
		t.Error("unset fields should be nil")
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := writeFile(t, dir, "bad.yaml", "epochs: [1, 2\n")
	if _, err := LoadConfig(bad); err == nil {
		t.Error("expected error for bad YAML")
	}
}

func TestApplyTrainConfig(t *testing.T) {
	epochs, batch, lr := 7, 16, 0.5
	cell := "lstm"
	cfg := Config{Epochs: &epochs, BatchSize: &batch, LR: &lr, Cell: &cell}

	var o trainOptions
	cmd := &cli.Command{
		Name:  "train",
		Flags: trainFlags(&o),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyTrainConfig(c, cfg, &o)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"train", "--epochs", "5"}); err != nil {
		t.Fatal(err)
	}
	if o.Epochs != 5 {
		t.Errorf("flag should win: got %d epochs", o.Epochs)
	}
	if o.BatchSize != 16 || o.LR != 0.5 || o.Cell != "lstm" {
		t.Errorf("config should win over defaults: %+v", o)
	}
	if o.SentenceLength != 60 || o.Solver != "momentum" || o.Momentum != 0.9 {
		t.Errorf("defaults should remain: %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestTrainOptionsValidate(t *testing.T) {
	valid := trainOptions{
		Train:          "train.txt",
		Valid:          "valid.txt",
		SentenceLength: 10,
		BatchSize:      2,
		Epochs:         1,
		Solver:         "adam",
		LR:             0.1,
		LRDecay:        1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, mutate := range []func(o *trainOptions){
		func(o *trainOptions) { o.Train = "" },
		func(o *trainOptions) { o.Valid = "" },
		func(o *trainOptions) { o.SentenceLength = 0 },
		func(o *trainOptions) { o.BatchSize = 0 },
		func(o *trainOptions) { o.Solver = "lbfgs" },
		func(o *trainOptions) { o.LR = 0 },
		func(o *trainOptions) { o.LRDecay = 1.5 },
		func(o *trainOptions) { o.Resume = true },
	} {
		o := valid
		mutate(&o)
		if err := o.Validate(); err == nil {
			t.Errorf("expected error for %+v", o)
		}
	}
}

func TestCreatorForContext(t *testing.T) {
	if c, err := creatorForContext("cpu"); err != nil || c != (anyvec32.DefaultCreator{}) {
		t.Errorf("cpu: got %v, %v", c, err)
	}
	if c, err := creatorForContext("cpu64"); err != nil || c != (anyvec64.DefaultCreator{}) {
		t.Errorf("cpu64: got %v, %v", c, err)
	}
	if _, err := creatorForContext("cudnn"); err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("cudnn: got %v", err)
	}
	if _, err := creatorForContext("tpu"); err == nil {
		t.Error("expected error for unknown context")
	}
}

func TestNewTransformer(t *testing.T) {
	for solver, check := range map[string]func(anysgd.TransformMarshaler) bool{
		"momentum": func(x anysgd.TransformMarshaler) bool { _, ok := x.(*anysgd.Momentum); return ok },
		"adam":     func(x anysgd.TransformMarshaler) bool { _, ok := x.(*anysgd.Adam); return ok },
		"rmsprop":  func(x anysgd.TransformMarshaler) bool { _, ok := x.(*anysgd.RMSProp); return ok },
		"sgd":      func(x anysgd.TransformMarshaler) bool { return x == nil },
	} {
		if !check(newTransformer(&trainOptions{Solver: solver, Momentum: 0.9}, nil)) {
			t.Errorf("bad transformer for %s", solver)
		}
	}
}

func TestResumeOptimizer(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	v := anydiff.NewVar(c.MakeVectorData(c.MakeNumericList([]float64{1, 2})))
	saved := &anysgd.Momentum{Momentum: 0.9, Params: []*anydiff.Var{v}}
	saved.Transform(anydiff.Grad{v: c.MakeVectorData(c.MakeNumericList([]float64{1, 1}))})
	data, err := saved.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, t.TempDir(), "model.opt", string(data))

	restored := &anysgd.Momentum{Params: []*anydiff.Var{v}}
	if err := resumeOptimizer(path, restored, 0.5); err != nil {
		t.Fatal(err)
	}
	if restored.Momentum != 0.5 {
		t.Errorf("expected momentum 0.5 but got %f", restored.Momentum)
	}
	if err := resumeOptimizer(path+"-missing", restored, 0.5); err != nil {
		t.Errorf("missing state should be ignored: %v", err)
	}
}

func testCorpus(n int) string {
	words := []string{"the", "cat", "dog", "sat", "ran", "on", "mat", "log"}
	var lines []string
	for i := 0; i < n; i++ {
		var line []string
		for j := 0; j < 2+i%6; j++ {
			line = append(line, words[(i/6+j)%len(words)])
		}
		lines = append(lines, strings.Join(line, " "))
	}
	return strings.Join(lines, "\n") + "\n"
}

func testTrainOptions(dir string) *trainOptions {
	return &trainOptions{
		deviceOptions:  deviceOptions{Context: "cpu64"},
		Train:          writeFileNoTest(dir, "train.txt", testCorpus(40)),
		Valid:          writeFileNoTest(dir, "valid.txt", testCorpus(6)),
		SentenceLength: 10,
		EmbeddingSize:  3,
		HiddenSize:     4,
		Cell:           "lstm",
		KeepProb:       1,
		Epochs:         2,
		BatchSize:      8,
		Solver:         "momentum",
		LR:             0.1,
		LRDecay:        1,
		Momentum:       0.9,
		Seed:           1,
		Checkpoint:     filepath.Join(dir, "model"),
		MonitorDir:     filepath.Join(dir, "monitor"),
	}
}

func writeFileNoTest(dir, name, contents string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		panic(err)
	}
	return path
}

func TestRunTrain(t *testing.T) {
	dir := t.TempDir()
	o := testTrainOptions(dir)
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	ctx := logger.WithContext(context.Background(), logger.Nop())
	if err := runTrain(ctx, o); err != nil {
		t.Fatal(err)
	}

	model, vocab, err := rnnlm.Load(anyvec64.DefaultCreator{}, o.Checkpoint)
	if err != nil {
		t.Fatal(err)
	}
	if model.Config.Cell != rnnlm.CellLSTM || model.Config.VocabSize != vocab.Len() {
		t.Errorf("unexpected model config: %+v", model.Config)
	}
	if vocab.Len() != 12 {
		t.Errorf("expected 12 words but got %d", vocab.Len())
	}
	if _, err := os.Stat(o.Checkpoint + optimizerSuffix); err != nil {
		t.Errorf("missing optimizer state: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(o.MonitorDir, "*.series.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 series but got %v", files)
	}
	records, err := monitor.ReadSeries(filepath.Join(o.MonitorDir, "perplexity_valid.series.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Index != 2 || records[1].Value <= 1 {
		t.Errorf("unexpected validation records: %+v", records)
	}

	// Resume for one more epoch with a held-out split.
	o.Resume = true
	o.Epochs = 1
	o.Valid = ""
	o.ValidRatio = 0.5
	o.MonitorDir = ""
	saved, err := loadProgress(o.Checkpoint + progressSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Epoch != 2 || saved.Processed != 80 {
		t.Fatalf("unexpected progress: %+v", saved)
	}
	if err := runTrain(ctx, o); err != nil {
		t.Fatal(err)
	}
	resumed, err := loadProgress(o.Checkpoint + progressSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Epoch != 3 || resumed.Processed <= saved.Processed ||
		resumed.Processed >= saved.Processed+40 {
		t.Errorf("resumed run should continue from %+v but saved %+v", saved, resumed)
	}
}

func TestRunTrainCancel(t *testing.T) {
	dir := t.TempDir()
	o := testTrainOptions(dir)
	o.MonitorDir = ""
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), logger.Nop()))
	cancel()
	if err := runTrain(ctx, o); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(o.Checkpoint); err != nil {
		t.Errorf("interrupted run should save a checkpoint: %v", err)
	}
}
