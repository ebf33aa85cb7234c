package emb

import (
	"fmt"
	"math"
)

// PoolOutput reduces a model output to one vector. A [1, H] output is taken
// as is; a [1, T, H] output is mean pooled over the unmasked tokens.
func PoolOutput(data []float32, shape []int64, mask []int64) ([]float32, error) {
	switch len(shape) {
	case 2:
		if shape[0] != 1 {
			return nil, fmt.Errorf("emb: unexpected batch size %d", shape[0])
		}
		hidden := int(shape[1])
		if len(data) < hidden {
			return nil, fmt.Errorf("emb: output has %d values, want %d", len(data), hidden)
		}
		out := make([]float32, hidden)
		copy(out, data[:hidden])
		return out, nil
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("emb: unexpected batch size %d", shape[0])
		}
		seqLen, hidden := int(shape[1]), int(shape[2])
		if len(data) < seqLen*hidden {
			return nil, fmt.Errorf("emb: output has %d values, want %d", len(data), seqLen*hidden)
		}
		return MeanPool(data, seqLen, hidden, mask), nil
	default:
		return nil, fmt.Errorf("emb: unsupported output rank %d", len(shape))
	}
}

// MeanPool averages token vectors whose mask value is non-zero. A nil mask
// averages every token.
func MeanPool(data []float32, seqLen, hidden int, mask []int64) []float32 {
	out := make([]float32, hidden)
	var count float64
	sums := make([]float64, hidden)
	for t := 0; t < seqLen; t++ {
		if mask != nil && (t >= len(mask) || mask[t] == 0) {
			continue
		}
		row := data[t*hidden : (t+1)*hidden]
		for h, v := range row {
			sums[h] += float64(v)
		}
		count++
	}
	if count == 0 {
		return out
	}
	for h := range out {
		out[h] = float32(sums[h] / count)
	}
	return out
}

// Normalize scales vec to unit length in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	n := math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) / n)
	}
	return vec
}
