//go:build hftokenizers

package emb

import (
	"fmt"

	"github.com/daulet/tokenizers"
)

// HFTokenizer is the name of the Rust-backed tokenizer backend. It needs
// libtokenizers at link time, hence the build tag.
const HFTokenizer = "hf"

func init() {
	RegisterTokenizer(HFTokenizer, loadHFTokenizer)
}

type hfTokenizer struct {
	tk        *tokenizers.Tokenizer
	maxSeqLen int
}

func loadHFTokenizer(path string, maxSeqLen int) (Tokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &hfTokenizer{tk: tk, maxSeqLen: maxSeqLen}, nil
}

func (h *hfTokenizer) Encode(text string) (Encoding, error) {
	res := h.tk.EncodeWithOptions(text, true,
		tokenizers.WithReturnTypeIDs(),
		tokenizers.WithReturnAttentionMask(),
	)
	enc := Encoding{
		IDs:           uint32sToInt64(res.IDs),
		AttentionMask: uint32sToInt64(res.AttentionMask),
		TypeIDs:       uint32sToInt64(res.TypeIDs),
	}
	return Truncate(fillDefaults(enc), h.maxSeqLen), nil
}

func (h *hfTokenizer) Close() error {
	if h.tk == nil {
		return nil
	}
	err := h.tk.Close()
	h.tk = nil
	return err
}

func uint32sToInt64(in []uint32) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
