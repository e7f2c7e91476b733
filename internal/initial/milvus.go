package initial

import (
	"context"
	"fmt"
	"strings"

	"RoomLink/internal/config"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// InitMilvus 连接 Milvus 并确保记忆向量集合存在。
// 未配置地址时返回 (nil, nil)，向量检索路径由调用方降级。
func InitMilvus(ctx context.Context, conf *config.Config) (mclient.Client, error) {
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	if addr == "" {
		return nil, nil
	}

	dbName := strings.TrimSpace(conf.MilvusConfig.DBName)
	if dbName == "" {
		dbName = "roomlink"
	}
	collection := strings.TrimSpace(conf.MilvusConfig.CollectionName)
	if collection == "" {
		collection = "ai_memory_vectors"
	}
	dim := conf.MilvusConfig.VectorDim
	if dim <= 0 {
		dim = 768
	}

	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   "default",
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = defaultCli.Close() }()

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == dbName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
			return nil, err
		}
	}

	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: strings.TrimSpace(conf.MilvusConfig.Username),
		Password: strings.TrimSpace(conf.MilvusConfig.Password),
		DBName:   dbName,
	})
	if err != nil {
		return nil, err
	}

	cols, err := cli.ListCollections(ctx)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	collExists := false
	for _, c := range cols {
		if c.Name == collection {
			collExists = true
			break
		}
	}

	if !collExists {
		schema := &entity.Schema{
			CollectionName: collection,
			Description:    "RoomLink AI memory vectors",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       "vector",
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{entity.TypeParamDim: fmt.Sprintf("%d", dim)},
				},
				{
					Name:     "ai_entity_id",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "memory_id",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "memory_type",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "20",
					},
				},
				{
					Name:     "content",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "4096",
					},
				},
				{
					Name:     "metadata",
					DataType: entity.FieldTypeJSON,
				},
			},
		}

		if err := cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			_ = cli.Close()
			return nil, err
		}

		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			_ = cli.Close()
			return nil, err
		}
		if err := cli.CreateIndex(ctx, collection, "vector", idx, false); err != nil {
			_ = cli.Close()
			return nil, err
		}
	}

	_ = cli.LoadCollection(ctx, collection, false)

	return cli, nil
}
