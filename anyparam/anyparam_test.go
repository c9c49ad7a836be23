package anyparam

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
)

func TestScopeReuse(t *testing.T) {
	s := NewStore(anyvec32.CurrentCreator(), 0)
	a := s.Root().Sub("rnn").Sub("affine")
	w1 := a.Param("W", 6, Normal{Stddev: 1})
	w2 := s.Root().Sub("rnn").Sub("affine").Param("W", 6, nil)
	if w1 != w2 {
		t.Fatal("same path should give the same variable")
	}
	other := s.Root().Sub("output").Sub("affine").Param("W", 6, nil)
	if other == w1 {
		t.Fatal("distinct scopes should give distinct variables")
	}
	if a.Path() != "rnn/affine" {
		t.Errorf("unexpected path: %s", a.Path())
	}
	if !reflect.DeepEqual(s.Names(), []string{"rnn/affine/W", "output/affine/W"}) {
		t.Errorf("unexpected names: %v", s.Names())
	}
	if v, ok := s.Lookup("rnn/affine/W"); !ok || v != w1 {
		t.Error("lookup failed")
	}
}

func TestScopeSizeMismatch(t *testing.T) {
	s := NewStore(anyvec32.CurrentCreator(), 0)
	s.Root().Param("b", 3, nil)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	s.Root().Param("b", 4, nil)
}

func TestStoreFix(t *testing.T) {
	s := NewStore(anyvec32.CurrentCreator(), 0)
	root := s.Root()
	emb := root.Sub("embedding").Param("W", 4, nil)
	rnn := root.Sub("rnn").Param("W", 4, nil)
	rnnAlt := root.Sub("rnn2").Param("W", 4, nil)

	root.Sub("rnn").Fix()
	later := root.Sub("rnn").Sub("inner").Param("b", 2, nil)

	params := s.Parameters()
	if len(params) != 2 || params[0] != emb || params[1] != rnnAlt {
		t.Fatalf("unexpected trainable parameters: %v", params)
	}
	if !s.IsFixed("rnn/inner/b") || s.IsFixed("rnn2/W") {
		t.Error("prefix matching should respect path components")
	}
	if len(s.All()) != 4 || s.All()[3] != later {
		t.Error("All should include fixed parameters")
	}
	if len(root.Sub("rnn").Parameters()) != 0 {
		t.Error("fixed scope should expose no parameters")
	}

	s.Unfix("rnn")
	if len(s.Parameters()) != 4 || s.Parameters()[1] != rnn {
		t.Error("unfix should restore parameters")
	}

	s.Fix("")
	if len(s.Parameters()) != 0 {
		t.Error("root fix should freeze everything")
	}
}

func TestInitializers(t *testing.T) {
	s := NewStore(anyvec64.CurrentCreator(), 42)
	root := s.Root()

	c := root.Param("const", 5, Const(2.5))
	for _, x := range c.Vector.Data().([]float64) {
		if x != 2.5 {
			t.Fatalf("unexpected constant: %f", x)
		}
	}

	u := root.Param("uniform", 1000, Uniform{Min: -2, Max: 3})
	for _, x := range u.Vector.Data().([]float64) {
		if x < -2 || x > 3 {
			t.Fatalf("uniform sample out of range: %f", x)
		}
	}

	g := root.Param("glorot", 1000, GlorotUniform{In: 10, Out: 5})
	lim := math.Sqrt(6.0 / 15)
	for _, x := range g.Vector.Data().([]float64) {
		if math.Abs(x) > lim {
			t.Fatalf("glorot sample out of range: %f", x)
		}
	}

	n := root.Param("normal", 10000, Normal{Mean: 3, Stddev: 0.5})
	var mean float64
	for _, x := range n.Vector.Data().([]float64) {
		mean += x
	}
	mean /= 10000
	if math.Abs(mean-3) > 0.05 {
		t.Errorf("unexpected normal mean: %f", mean)
	}
}

func TestInitializersDeterministic(t *testing.T) {
	sample := func() []float64 {
		s := NewStore(anyvec64.CurrentCreator(), 7)
		return s.Root().Param("W", 20, Normal{Stddev: 1}).Vector.Data().([]float64)
	}
	if !reflect.DeepEqual(sample(), sample()) {
		t.Error("same seed should give the same parameters")
	}
}

func TestStoreSerialize(t *testing.T) {
	s := NewStore(anyvec32.CurrentCreator(), 0)
	root := s.Root()
	root.Sub("a").Param("W", 3, Uniform{Min: -1, Max: 1})
	root.Sub("b").Param("b", 2, Const(1))
	root.Sub("b").Fix()

	data, err := s.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	s1, err := DeserializeStore(anyvec64.CurrentCreator(), data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s1.Names(), s.Names()) {
		t.Fatalf("names: expected %v but got %v", s.Names(), s1.Names())
	}
	for _, n := range s.Names() {
		v, _ := s.Lookup(n)
		v1, _ := s1.Lookup(n)
		expected := v.Vector.Data().([]float32)
		actual := v1.Vector.Data().([]float64)
		for i, x := range expected {
			if float64(x) != actual[i] {
				t.Errorf("%s[%d]: expected %f but got %f", n, i, x, actual[i])
			}
		}
	}
	if !s1.IsFixed("b/b") || s1.IsFixed("a/W") {
		t.Error("fixed prefixes not restored")
	}
}

func TestStoreSaveLoad(t *testing.T) {
	s := NewStore(anyvec32.CurrentCreator(), 0)
	s.Root().Param("x", 4, Const(-3))
	path := filepath.Join(t.TempDir(), "params")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	s1, err := LoadStore(anyvec32.CurrentCreator(), path)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := s1.Lookup("x")
	if !ok || !reflect.DeepEqual(v.Vector.Data(), []float32{-3, -3, -3, -3}) {
		t.Error("unexpected loaded parameter")
	}
	if _, err := LoadStore(anyvec32.CurrentCreator(), path+".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStoreCopy(t *testing.T) {
	s := NewStore(anyvec32.CurrentCreator(), 0)
	v := s.Root().Param("x", 2, Const(1))
	s1 := s.Copy()
	v1, _ := s1.Lookup("x")
	if v1 == v {
		t.Fatal("copy should create new variables")
	}
	v1.Vector.Scale(float32(2))
	if v.Vector.Data().([]float32)[0] != 1 {
		t.Error("copy should not alias vectors")
	}
}
