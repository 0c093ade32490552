package rag

import (
	"strings"
	"unicode/utf8"
)

// 句子分隔符
const sentenceDelimiter = "。"

// ChunkingConfig 分块参数，长度按字符（rune）计
type ChunkingConfig struct {
	MaxChunkChars int `json:"max_chunk_chars"`
	MinChunkChars int `json:"min_chunk_chars"`
}

// DefaultChunkingConfig 默认 512/50
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{MaxChunkChars: 512, MinChunkChars: 50}
}

func (c ChunkingConfig) normalized() ChunkingConfig {
	d := DefaultChunkingConfig()
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = d.MaxChunkChars
	}
	if c.MinChunkChars < 0 {
		c.MinChunkChars = 0
	}
	if c.MinChunkChars > c.MaxChunkChars {
		c.MinChunkChars = c.MaxChunkChars
	}
	return c
}

type chunkUnit struct {
	text     string
	newBlock bool // 段落起始，与前一单元用换行连接
}

// PackParagraphs 把段落贪心装入分块：
// 超长段落按句号拆句再装；单句超长时整句保留；
// 过短分块尽量并入相邻分块，无法合并则丢弃，但至少保留一个分块。
func PackParagraphs(paragraphs []string, cfg ChunkingConfig) []string {
	cfg = cfg.normalized()

	var units []chunkUnit
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(p) <= cfg.MaxChunkChars {
			units = append(units, chunkUnit{text: p, newBlock: true})
			continue
		}
		for i, s := range splitSentences(p) {
			units = append(units, chunkUnit{text: s, newBlock: i == 0})
		}
	}
	if len(units) == 0 {
		return nil
	}

	// 贪心装箱
	var chunks []string
	var cur strings.Builder
	curLen := 0
	for _, u := range units {
		sep := ""
		if u.newBlock {
			sep = "\n"
		}
		uLen := runeLen(u.text)
		if curLen > 0 && curLen+runeLen(sep)+uLen <= cfg.MaxChunkChars {
			cur.WriteString(sep)
			cur.WriteString(u.text)
			curLen += runeLen(sep) + uLen
			continue
		}
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(u.text)
		curLen = uLen
	}
	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}

	return mergeShortChunks(chunks, cfg)
}

func mergeShortChunks(chunks []string, cfg ChunkingConfig) []string {
	out := make([]string, 0, len(chunks))
	var dropped []string
	for i := 0; i < len(chunks); i++ {
		c := chunks[i]
		cLen := runeLen(c)
		if cLen >= cfg.MinChunkChars {
			out = append(out, c)
			continue
		}
		if n := len(out); n > 0 && runeLen(out[n-1])+1+cLen <= cfg.MaxChunkChars {
			out[n-1] += "\n" + c
			continue
		}
		if i+1 < len(chunks) && cLen+1+runeLen(chunks[i+1]) <= cfg.MaxChunkChars {
			chunks[i+1] = c + "\n" + chunks[i+1]
			continue
		}
		dropped = append(dropped, c)
	}
	if len(out) == 0 {
		return dropped
	}
	return out
}

// splitSentences 按句号切句，句号保留在句尾
func splitSentences(p string) []string {
	parts := strings.SplitAfter(p, sentenceDelimiter)
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
