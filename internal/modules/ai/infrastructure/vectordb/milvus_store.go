package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

type UpsertItem struct {
	ID           string
	Vector       []float32
	AIEntityID   int64
	MemoryID     int64
	MemoryType   string
	Content      string
	MetadataJSON string
}

type SearchHit struct {
	ID           string
	Score        float32
	AIEntityID   int64
	MemoryID     int64
	MemoryType   string
	Content      string
	MetadataJSON string
}

type MilvusStore struct {
	cli         mclient.Client
	collection  string
	vectorField string
	metricType  entity.MetricType
	vectorDim   int
	searchParam entity.SearchParam
}

func NewMilvusStore(cli mclient.Client, collection string, vectorField string, vectorDim int, metricType entity.MetricType) (*MilvusStore, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is empty")
	}
	if strings.TrimSpace(vectorField) == "" {
		return nil, errors.New("vectorField is empty")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", vectorDim)
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &MilvusStore{cli: cli, collection: collection, vectorField: vectorField, metricType: metricType, vectorDim: vectorDim, searchParam: sp}, nil
}

func (s *MilvusStore) Upsert(ctx context.Context, items []UpsertItem) ([]string, error) {
	if len(items) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(items))
	vectors := make([][]float32, 0, len(items))
	entityIDs := make([]int64, 0, len(items))
	memoryIDs := make([]int64, 0, len(items))
	memoryTypes := make([]string, 0, len(items))
	contents := make([]string, 0, len(items))
	metas := make([]string, 0, len(items))

	for _, it := range items {
		if it.ID == "" {
			return nil, errors.New("upsert item missing ID")
		}
		if len(it.Vector) != s.vectorDim {
			return nil, fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", it.ID, len(it.Vector), s.vectorDim)
		}
		ids = append(ids, it.ID)
		vectors = append(vectors, it.Vector)
		entityIDs = append(entityIDs, it.AIEntityID)
		memoryIDs = append(memoryIDs, it.MemoryID)
		memoryTypes = append(memoryTypes, it.MemoryType)
		contents = append(contents, it.Content)
		metas = append(metas, it.MetadataJSON)
	}

	_, err := s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(s.vectorField, s.vectorDim, vectors),
		entity.NewColumnInt64("ai_entity_id", entityIDs),
		entity.NewColumnInt64("memory_id", memoryIDs),
		entity.NewColumnVarChar("memory_type", memoryTypes),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnJSONBytes("metadata", stringSliceToJSONBytes(metas)),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MilvusStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	expr := fmt.Sprintf(`id in ["%s"]`, strings.Join(ids, `","`))
	return s.cli.Delete(ctx, s.collection, "", expr)
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, expr string) ([]SearchHit, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), s.vectorDim)
	}
	if topK <= 0 {
		topK = 5
	}
	res, err := s.cli.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"ai_entity_id", "memory_id", "memory_type", "content", "metadata"},
		[]entity.Vector{entity.FloatVector(vector)},
		s.vectorField,
		s.metricType,
		topK,
		s.searchParam,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return []SearchHit{}, nil
	}
	return parseSearchResult(res[0])
}

func parseSearchResult(sr mclient.SearchResult) ([]SearchHit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	hits := make([]SearchHit, 0, sr.ResultCount)

	idCol := sr.IDs
	entityIDCol := columnByName(sr.Fields, "ai_entity_id")
	memoryIDCol := columnByName(sr.Fields, "memory_id")
	memoryTypeCol := columnByName(sr.Fields, "memory_type")
	contentCol := columnByName(sr.Fields, "content")
	metaCol := columnByName(sr.Fields, "metadata")

	for i := 0; i < sr.ResultCount; i++ {
		id, _ := idCol.GetAsString(i)
		score := float32(0)
		if i < len(sr.Scores) {
			score = sr.Scores[i]
		}

		h := SearchHit{ID: id, Score: score}
		if entityIDCol != nil {
			v, _ := entityIDCol.GetAsInt64(i)
			h.AIEntityID = v
		}
		if memoryIDCol != nil {
			v, _ := memoryIDCol.GetAsInt64(i)
			h.MemoryID = v
		}
		if memoryTypeCol != nil {
			v, _ := memoryTypeCol.GetAsString(i)
			h.MemoryType = v
		}
		if contentCol != nil {
			v, _ := contentCol.GetAsString(i)
			h.Content = v
		}
		if metaCol != nil {
			v, _ := metaCol.Get(i)
			if bs, ok := v.([]byte); ok {
				h.MetadataJSON = string(bs)
			}
		}
		hits = append(hits, h)
	}

	return hits, nil
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

func stringSliceToJSONBytes(values []string) [][]byte {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out
}
