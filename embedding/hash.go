package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider 本地确定性向量化：字符 unigram/bigram 特征哈希到固定维度后 L2 归一化。
// 不依赖外部服务，用于离线环境与测试；语义相近的中文文本共享较多字符特征。
type HashProvider struct {
	dims int
}

// NewHashProvider dims <= 0 时使用 256
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = 256
	}
	return &HashProvider{dims: dims}
}

func (h *HashProvider) Name() string    { return "hash" }
func (h *HashProvider) Dimensions() int { return h.dims }

// Embed 实现 Provider
func (h *HashProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashProvider) vector(text string) []float64 {
	vec := make([]float64, h.dims)
	runes := []rune(strings.ToLower(text))

	add := func(feature string, weight float64) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(feature))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dims))
		// 高位决定符号，降低碰撞偏差
		if sum>>63 == 1 {
			weight = -weight
		}
		vec[idx] += weight
	}

	var prev rune
	for _, r := range runes {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			prev = 0
			continue
		}
		add(string(r), 1)
		if prev != 0 {
			add(string([]rune{prev, r}), 1.5)
		}
		prev = r
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
