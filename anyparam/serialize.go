package anyparam

import (
	"errors"
	"fmt"
	"os"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var n name
	serializer.RegisterTypedDeserializer(n.SerializerType(), deserializeName)
}

// SerializerType returns the unique ID used to serialize
// a Store with the serializer package.
func (s *Store) SerializerType() string {
	return "github.com/satopirka/anylm/anyparam.Store"
}

// Serialize encodes every parameter, by path, along with
// the fixed prefixes.
func (s *Store) Serialize() ([]byte, error) {
	slice := []serializer.Serializer{serializer.Int(len(s.names))}
	for _, n := range s.names {
		slice = append(slice, name(n), &anyvecsave.S{Vector: s.params[n].Vector})
	}
	for _, p := range s.FixedPrefixes() {
		slice = append(slice, name(p))
	}
	return serializer.SerializeSlice(slice)
}

// DeserializeStore decodes a Store produced by Serialize.
// Parameters are converted to the creator c, which is
// also used for any parameters created afterwards.
func DeserializeStore(c anyvec.Creator, d []byte) (*Store, error) {
	res, err := deserializeStore(c, d)
	if err != nil {
		return nil, essentials.AddCtx("deserialize Store", err)
	}
	return res, nil
}

func deserializeStore(c anyvec.Creator, d []byte) (*Store, error) {
	slice, err := serializer.DeserializeSlice(d)
	if err != nil {
		return nil, err
	}
	if len(slice) == 0 {
		return nil, errors.New("missing parameter count")
	}
	count, ok := slice[0].(serializer.Int)
	if !ok || count < 0 || 1+2*int(count) > len(slice) {
		return nil, errors.New("invalid parameter count")
	}
	res := NewStore(c, 1)
	for i := 0; i < int(count); i++ {
		n, ok := slice[1+2*i].(name)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected name but got %T", i, slice[1+2*i])
		}
		vec, ok := slice[2+2*i].(*anyvecsave.S)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected vector but got %T", i, slice[2+2*i])
		}
		if _, dup := res.params[string(n)]; dup {
			return nil, fmt.Errorf("duplicate parameter: %s", n)
		}
		res.add(string(n), anydiff.NewVar(convertVector(c, vec.Vector)))
	}
	for _, x := range slice[1+2*int(count):] {
		p, ok := x.(name)
		if !ok {
			return nil, fmt.Errorf("expected fixed prefix but got %T", x)
		}
		res.Fix(string(p))
	}
	return res, nil
}

// Save writes the serialized store to a file.
func (s *Store) Save(path string) error {
	data, err := s.Serialize()
	if err != nil {
		return essentials.AddCtx("save parameters", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save parameters", err)
	}
	return nil
}

// LoadStore reads a store written by Save.
func LoadStore(c anyvec.Creator, path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load parameters", err)
	}
	res, err := DeserializeStore(c, data)
	if err != nil {
		return nil, essentials.AddCtx("load parameters", err)
	}
	return res, nil
}

// Copy creates a deep copy of the store's parameters and
// fixed prefixes.
func (s *Store) Copy() *Store {
	res := NewStore(s.creator, s.rand.Int63())
	for _, n := range s.names {
		res.add(n, anydiff.NewVar(s.params[n].Vector.Copy()))
	}
	for p := range s.fixed {
		res.fixed[p] = true
	}
	return res
}

func convertVector(c anyvec.Creator, v anyvec.Vector) anyvec.Vector {
	var data []float64
	switch d := v.Data().(type) {
	case []float32:
		data = make([]float64, len(d))
		for i, x := range d {
			data[i] = float64(x)
		}
	case []float64:
		data = d
	default:
		panic(fmt.Sprintf("unsupported numeric list: %T", d))
	}
	return c.MakeVectorData(c.MakeNumericList(data))
}

type name string

func deserializeName(d []byte) (name, error) {
	return name(d), nil
}

func (n name) SerializerType() string {
	return "github.com/satopirka/anylm/anyparam.name"
}

func (n name) Serialize() ([]byte, error) {
	return []byte(n), nil
}
