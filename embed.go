package anylm

import (
	"fmt"
	"math"

	"github.com/satopirka/anylm/anyparam"
)

// Embed looks up a learned vector for every token ID in a
// (B, L) batch, producing a (B, L, size) tensor.
//
// The (vocab, size) table lives at "embed/W" in s and is
// initialized uniformly in [-sqrt(3), sqrt(3)).
// Gradients are accumulated only into the looked-up rows.
func Embed(s *anyparam.Scope, ids [][]int, vocab, size int, fix bool) *Tensor {
	if len(ids) == 0 || len(ids[0]) == 0 {
		panic("cannot embed an empty batch")
	}
	scope := s.Sub("embed")
	if fix {
		scope.Fix()
	}
	lim := math.Sqrt(3)
	weights := scope.Param("W", vocab*size, anyparam.Uniform{Min: -lim, Max: lim})

	length := len(ids[0])
	table := make([]int, 0, len(ids)*length*size)
	for i, seq := range ids {
		if len(seq) != length {
			panic(fmt.Sprintf("sequence %d has length %d but expected %d", i, len(seq), length))
		}
		for _, id := range seq {
			if id < 0 || id >= vocab {
				panic(fmt.Sprintf("token %d out of range for vocabulary of %d", id, vocab))
			}
			for j := 0; j < size; j++ {
				table = append(table, id*size+j)
			}
		}
	}
	return Gather(FromVar(weights, Shape{vocab, size}), table, Shape{len(ids), length, size})
}
