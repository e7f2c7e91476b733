package embedding

import (
	"context"
	"hash/fnv"

	"github.com/cloudwego/eino/components/embedding"
)

// MockEmbedder 基于内容哈希的确定性向量，开发与测试环境用。
// 同一文本恒定映射到同一向量，保证向量检索路径可复现。
type MockEmbedder struct {
	Dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	result := make([][]float64, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum64()

		vec := make([]float64, m.Dim)
		for j := 0; j < m.Dim; j++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[j] = float64(int64(seed>>11))/float64(1<<52) - 1
		}
		result[i] = vec
	}
	return result, nil
}

// 确保实现接口
var _ embedding.Embedder = (*MockEmbedder)(nil)
