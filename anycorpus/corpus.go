// Package anycorpus loads tokenized text corpora and turns
// them into language-modeling samples.
package anycorpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/satopirka/anylm"
	"github.com/satopirka/anylm/anys2s"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

const maxLineSize = 1 << 20

// Load reads one sentence per line, splits it on
// whitespace, and wraps its IDs in BOSID and EOSID.
// Blank lines are skipped.
//
// Words are added to v unless it is frozen.
func Load(r io.Reader, v *Vocab) ([][]int, error) {
	var res [][]int
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		seq := make([]int, 0, len(fields)+2)
		seq = append(seq, BOSID)
		for _, w := range fields {
			seq = append(seq, v.Add(w))
		}
		seq = append(seq, EOSID)
		res = append(res, seq)
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("load corpus", err)
	}
	return res, nil
}

// LoadFile is like Load, but for a file path.
func LoadFile(path string, v *Vocab) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("load corpus", err)
	}
	defer f.Close()
	res, err := Load(f, v)
	if err != nil {
		return nil, essentials.AddCtx(path, err)
	}
	return res, nil
}

// PaddingType determines which end of a sequence is
// padded or truncated.
type PaddingType int

const (
	Post PaddingType = iota
	Pre
)

// ParsePaddingType parses "post" or "pre".
func ParsePaddingType(s string) (PaddingType, error) {
	switch s {
	case "post":
		return Post, nil
	case "pre":
		return Pre, nil
	default:
		return 0, fmt.Errorf("unknown padding type: %s", s)
	}
}

// WithPadding pads every sequence with PadID, or truncates
// it, so that it has the given length.
// If length is 0, the longest sequence's length is used.
func WithPadding(seqs [][]int, length int, p PaddingType) [][]int {
	if length == 0 {
		for _, s := range seqs {
			if len(s) > length {
				length = len(s)
			}
		}
	}
	res := make([][]int, len(seqs))
	for i, s := range seqs {
		padded := make([]int, length)
		for j := range padded {
			padded[j] = PadID
		}
		if p == Post {
			if len(s) > length {
				s = s[:length]
			}
			copy(padded, s)
		} else {
			if len(s) > length {
				s = s[len(s)-length:]
			}
			copy(padded[length-len(s):], s)
		}
		res[i] = padded
	}
	return res
}

// Samples creates next-word prediction samples.
//
// Each sequence is truncated to sentenceLength+1 tokens;
// the input is every token but the last and the output is
// every token but the first.
// Sequences shorter than two tokens are skipped.
// Samples are not padded; anys2s pads each batch.
func Samples(seqs [][]int, sentenceLength int) anys2s.SliceSampleList {
	var res anys2s.SliceSampleList
	for _, s := range seqs {
		if len(s) > sentenceLength+1 {
			s = s[:sentenceLength+1]
		}
		if len(s) < 2 {
			continue
		}
		res = append(res, &anys2s.Sample{
			Input:  append([]int{}, s[:len(s)-1]...),
			Output: append([]int{}, s[1:]...),
		})
	}
	return res
}

// Mask creates a (B, L, 1) mask that is 1 wherever a
// padded batch holds a token other than PadID.
func Mask(c anyvec.Creator, x [][]int) *anylm.Tensor {
	if len(x) == 0 || len(x[0]) == 0 {
		panic("cannot mask an empty batch")
	}
	length := len(x[0])
	data := make([]float64, len(x)*length)
	for i, seq := range x {
		if len(seq) != length {
			panic(fmt.Sprintf("sequence %d has length %d but expected %d", i, len(seq), length))
		}
		for t, id := range seq {
			if id != PadID {
				data[i*length+t] = 1
			}
		}
	}
	return anylm.FromData(c, anylm.Shape{len(x), length, 1}, data)
}

// CountTokens returns the total number of tokens in seqs,
// not counting PadID.
func CountTokens(seqs [][]int) int {
	var res int
	for _, s := range seqs {
		for _, id := range s {
			if id != PadID {
				res++
			}
		}
	}
	return res
}
