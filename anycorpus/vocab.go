package anycorpus

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/satopirka/anylm/anys2s"
	"github.com/unixpickle/essentials"
)

// Reserved words and their IDs.
const (
	PadWord = "<pad>"
	BOSWord = "<bos>"
	EOSWord = "<eos>"
	UnkWord = "<unk>"

	PadID = anys2s.PadID
	BOSID = 1
	EOSID = 2
	UnkID = 3
)

// A Vocab maps words to dense IDs and back.
//
// A new Vocab holds the reserved words. Words are added
// in order of first appearance until the Vocab is frozen;
// after that, unknown words map to UnkID.
type Vocab struct {
	words  []string
	ids    map[string]int
	frozen bool
}

// NewVocab creates a Vocab with only the reserved words.
func NewVocab() *Vocab {
	v := &Vocab{ids: map[string]int{}}
	for _, w := range []string{PadWord, BOSWord, EOSWord, UnkWord} {
		v.Add(w)
	}
	return v
}

// Add returns the ID of a word, adding it if the Vocab
// is not frozen.
func (v *Vocab) Add(word string) int {
	if id, ok := v.ids[word]; ok {
		return id
	}
	if v.frozen {
		return UnkID
	}
	id := len(v.words)
	v.words = append(v.words, word)
	v.ids[word] = id
	return id
}

// ID returns the ID of a word, or UnkID.
func (v *Vocab) ID(word string) int {
	if id, ok := v.ids[word]; ok {
		return id
	}
	return UnkID
}

// Word returns the word for an ID, or UnkWord if the ID
// is out of range.
func (v *Vocab) Word(id int) string {
	if id < 0 || id >= len(v.words) {
		return UnkWord
	}
	return v.words[id]
}

// Len returns the number of words, including the reserved
// ones.
func (v *Vocab) Len() int {
	return len(v.words)
}

// Freeze stops the Vocab from growing.
func (v *Vocab) Freeze() {
	v.frozen = true
}

// Frozen reports whether the Vocab was frozen.
func (v *Vocab) Frozen() bool {
	return v.frozen
}

// Encode maps words to IDs without growing the Vocab.
func (v *Vocab) Encode(words []string) []int {
	res := make([]int, len(words))
	for i, w := range words {
		res[i] = v.ID(w)
	}
	return res
}

// Decode maps IDs to words.
func (v *Vocab) Decode(ids []int) []string {
	res := make([]string, len(ids))
	for i, id := range ids {
		res[i] = v.Word(id)
	}
	return res
}

type vocabJSON struct {
	Words []string `json:"words"`
}

// MarshalJSON encodes the word list.
func (v *Vocab) MarshalJSON() ([]byte, error) {
	return json.Marshal(vocabJSON{Words: v.words})
}

// UnmarshalJSON decodes a word list and freezes the
// Vocab.
func (v *Vocab) UnmarshalJSON(data []byte) error {
	var obj vocabJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	reserved := []string{PadWord, BOSWord, EOSWord, UnkWord}
	if len(obj.Words) < len(reserved) {
		return errors.New("vocabulary is missing reserved words")
	}
	for i, w := range reserved {
		if obj.Words[i] != w {
			return fmt.Errorf("word %d should be %q but got %q", i, w, obj.Words[i])
		}
	}
	v.words = nil
	v.ids = map[string]int{}
	v.frozen = false
	for _, w := range obj.Words {
		if _, ok := v.ids[w]; ok {
			return fmt.Errorf("duplicate word %q", w)
		}
		v.Add(w)
	}
	v.frozen = true
	return nil
}

// SaveVocab writes a Vocab to a JSON file.
func SaveVocab(path string, v *Vocab) error {
	data, err := json.Marshal(v)
	if err != nil {
		return essentials.AddCtx("save vocabulary", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return essentials.AddCtx("save vocabulary", err)
	}
	return nil
}

// LoadVocab reads a frozen Vocab from a JSON file.
func LoadVocab(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load vocabulary", err)
	}
	var v Vocab
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, essentials.AddCtx("load vocabulary", err)
	}
	return &v, nil
}
