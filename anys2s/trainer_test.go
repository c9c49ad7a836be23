package anys2s

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anyparam"
	"github.com/satopirka/anylm/anysgd"
	"github.com/unixpickle/anyvec/anyvec64"
)

const testVocab = 5

func testTrainer() (*Trainer, *anyparam.Store) {
	c := anyvec64.DefaultCreator{}
	store := anyparam.NewStore(c, 1337)
	root := store.Root()
	t := &Trainer{
		Func: func(in [][]int, mask *anylm.Tensor, train bool) *anylm.Tensor {
			h := anylm.Embed(root.Sub("embedding"), in, testVocab, 4, false)
			return anylm.Affine(root.Sub("output"), h, testVocab, false)
		},
		Creator: c,
	}
	// Build the parameters before training.
	t.Func([][]int{{0}}, nil, false)
	t.Params = store.Parameters()
	return t, store
}

func testSamples() SliceSampleList {
	return SliceSampleList{
		{Input: []int{1, 2, 3}, Output: []int{2, 3, 4}},
		{Input: []int{2, 3}, Output: []int{3, 4}},
		{Input: []int{0, 1, 2, 3}, Output: []int{1, 2, 3, 4}},
		{Input: []int{1}, Output: []int{2}},
	}
}

func TestNewBatch(t *testing.T) {
	samples := testSamples()
	b, err := NewBatch(samples[:2])
	if err != nil {
		t.Fatal(err)
	}
	if b.Size() != 2 || b.SeqLen() != 3 || b.Tokens() != 5 {
		t.Errorf("unexpected batch dims: %d %d %d", b.Size(), b.SeqLen(), b.Tokens())
	}
	if !reflect.DeepEqual(b.Inputs, [][]int{{1, 2, 3}, {2, 3, PadID}}) {
		t.Errorf("bad inputs: %v", b.Inputs)
	}
	if !reflect.DeepEqual(b.Outputs, [][]int{{2, 3, 4}, {3, 4, PadID}}) {
		t.Errorf("bad outputs: %v", b.Outputs)
	}
	mask := b.Mask(anyvec64.DefaultCreator{})
	if !mask.Shape.Equal(anylm.Shape{2, 3, 1}) {
		t.Errorf("bad mask shape: %v", mask.Shape)
	}
	if !reflect.DeepEqual(mask.Floats(), []float64{1, 1, 1, 1, 1, 0}) {
		t.Errorf("bad mask: %v", mask.Floats())
	}

	// The input samples must not be modified.
	if len(samples[1].Input) != 2 {
		t.Error("sample was modified")
	}
}

func TestNewBatchErrors(t *testing.T) {
	if _, err := NewBatch(nil); err == nil {
		t.Error("expected error for empty batch")
	}
	if _, err := NewBatch([]*Sample{{Input: []int{1}, Output: []int{1, 2}}}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
	if _, err := NewBatch([]*Sample{{}}); err == nil {
		t.Error("expected error for empty sequences")
	}
}

func TestTrainerGradient(t *testing.T) {
	trainer, _ := testTrainer()
	batch, err := trainer.Fetch(testSamples())
	if err != nil {
		t.Fatal(err)
	}
	grad := trainer.Gradient(batch)
	if len(grad) != len(trainer.Params) {
		t.Fatalf("expected %d gradients but got %d", len(trainer.Params), len(grad))
	}
	expected := anylm.VectorFloats(trainer.TotalCost(batch.(*Batch)).Output())[0]
	if math.Abs(trainer.LastCost-expected) > 1e-8 {
		t.Errorf("LastCost %f but TotalCost %f", trainer.LastCost, expected)
	}
	if trainer.LastCost <= 0 {
		t.Errorf("expected positive cost but got %f", trainer.LastCost)
	}
}

func TestTrainerWeightDecay(t *testing.T) {
	trainer, _ := testTrainer()
	batch, err := trainer.Fetch(testSamples())
	if err != nil {
		t.Fatal(err)
	}
	plain := trainer.Gradient(batch)
	plainVecs := map[int][]float64{}
	for i, p := range trainer.Params {
		plainVecs[i] = anylm.VectorFloats(plain[p])
	}

	trainer.WeightDecay = 0.5
	decayed := trainer.Gradient(batch)
	for i, p := range trainer.Params {
		actual := anylm.VectorFloats(decayed[p])
		values := anylm.VectorFloats(p.Vector)
		for j, x := range actual {
			expected := plainVecs[i][j] + 0.5*values[j]
			if math.Abs(x-expected) > 1e-8 {
				t.Fatalf("param %d component %d: expected %f but got %f", i, j, expected, x)
			}
		}
	}
}

func TestTrainerLearns(t *testing.T) {
	trainer, _ := testTrainer()
	samples := testSamples()
	before, err := trainer.Evaluate(context.Background(), samples, 3)
	if err != nil {
		t.Fatal(err)
	}
	if before <= 0 {
		t.Errorf("unexpected initial loss: %f", before)
	}
	s := &anysgd.SGD{
		Fetcher:    trainer,
		Gradienter: trainer,
		Samples:    append(SliceSampleList{}, samples...),
		Rater:      anysgd.ConstRater(0.5),
		BatchSize:  2,
		Epochs:     200,
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	after, err := trainer.Evaluate(context.Background(), samples, 3)
	if err != nil {
		t.Fatal(err)
	}
	if after > before/2 {
		t.Errorf("loss did not decrease enough: %f -> %f", before, after)
	}
}

func TestTrainerEvaluate(t *testing.T) {
	trainer, _ := testTrainer()
	samples := testSamples()

	var expected float64
	for i := range samples {
		batch, err := NewBatch(samples[i : i+1])
		if err != nil {
			t.Fatal(err)
		}
		expected += anylm.VectorFloats(trainer.TotalCost(batch).Output())[0]
	}
	expected /= float64(len(samples))

	actual, err := trainer.Evaluate(context.Background(), samples, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(actual-expected) > 1e-8 {
		t.Errorf("expected %f but got %f", expected, actual)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := trainer.Evaluate(ctx, samples, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled but got %v", err)
	}
	if _, err := trainer.Evaluate(context.Background(), SliceSampleList{}, 1); err == nil {
		t.Error("expected error for empty samples")
	}
}

func TestSortSampleList(t *testing.T) {
	samples := testSamples()
	list := &SortSampleList{SortableSampleList: samples, ChunkSize: 2}
	list.PostShuffle()
	for i := 0; i < len(samples); i += 2 {
		if list.LenAt(i) > list.LenAt(i+1) {
			t.Errorf("chunk %d is not sorted", i/2)
		}
	}
	sliced := list.Slice(1, 3).(*SortSampleList)
	if sliced.Len() != 2 || sliced.ChunkSize != 2 {
		t.Errorf("bad slice: %d samples, chunk %d", sliced.Len(), sliced.ChunkSize)
	}
}

func TestSliceSampleListHash(t *testing.T) {
	samples := testSamples()
	if !bytes.Equal(samples.Hash(0), samples.Hash(0)) {
		t.Error("hash is not deterministic")
	}
	same := SliceSampleList{{Input: []int{1, 2, 3}, Output: []int{2, 3, 4}}}
	if !bytes.Equal(samples.Hash(0), same.Hash(0)) {
		t.Error("equal samples hash differently")
	}
	if bytes.Equal(samples.Hash(0), samples.Hash(2)) {
		t.Error("different samples hash the same")
	}
	var _ anysgd.Hasher = samples
}
