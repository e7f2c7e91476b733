package repository

import "context"

// VectorStore 是 domain 层定义的“向量库能力抽象”。
//
// 设计约束：
// 1) application / domain 只能依赖本接口，不应直接依赖 Milvus SDK 或 Eino。
// 2) infrastructure 通过适配器实现本接口（例如 MilvusVectorStore），从而做到可替换。
//
// 字段约定：AIEntityID/MemoryID 用于按实体隔离与回查 MySQL 记忆行。

// VectorUpsertItem 向量写入所需的标准字段
type VectorUpsertItem struct {
	ID           string
	Vector       []float32
	AIEntityID   int64
	MemoryID     int64
	MemoryType   string
	Content      string
	MetadataJSON string
}

type VectorSearchHit struct {
	ID           string
	Score        float32
	AIEntityID   int64
	MemoryID     int64
	MemoryType   string
	Content      string
	MetadataJSON string
}

// VectorStore 向量数据库接口（Upsert/Delete/Search）
type VectorStore interface {
	Upsert(ctx context.Context, items []VectorUpsertItem) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	// Search 按向量搜索
	Search(ctx context.Context, vector []float32, topK int, expr string) ([]VectorSearchHit, error)
}
