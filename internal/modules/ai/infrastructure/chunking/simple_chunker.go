package chunking

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// SimpleChunker 将长文本切分为带重叠的有界片段。
// 切分点按 段落 → 行 → 句子 → 词 → 字符 的顺序择优，
// 重叠区保留跨片段上下文，保证嵌入的连贯性。
type SimpleChunker struct {
	ChunkSize    int
	ChunkOverlap int

	initOnce sync.Once
	initErr  error
	splitter document.Transformer
}

// NewSimpleChunker 创建切片器并设置切片大小与重叠长度
func NewSimpleChunker(size, overlap int) *SimpleChunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &SimpleChunker{ChunkSize: size, ChunkOverlap: overlap}
}

// Chunk 切分文本并丢弃空白片段
func (c *SimpleChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	runes := []rune(text)
	if len(runes) <= c.ChunkSize {
		return []string{text}, nil
	}

	c.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.ChunkOverlap,
			Separators:  []string{"\n\n", "\n", ". ", "! ", "? ", "。", "！", "？", " "},
			LenFunc: func(s string) int {
				return len([]rune(s))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.splitter = impl
	})
	if c.initErr != nil || c.splitter == nil {
		// 分割器不可用时退化为按字符数硬切
		return c.chunkRunes(runes), nil
	}

	frags, err := c.splitter.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(frags))
	for _, f := range frags {
		if f == nil || strings.TrimSpace(f.Content) == "" {
			continue
		}
		chunks = append(chunks, f.Content)
	}
	return chunks, nil
}

// chunkRunes 基于 rune 数量的固定步长切分，多字节字符不会被截断
func (c *SimpleChunker) chunkRunes(runes []rune) []string {
	step := c.ChunkSize - c.ChunkOverlap
	if step <= 0 {
		step = 1
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[i:end])
		if strings.TrimSpace(piece) != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
