package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RoomLink/internal/config"
	"RoomLink/internal/initial"
	aiService "RoomLink/internal/modules/ai/application/service"
	aiRepository "RoomLink/internal/modules/ai/domain/repository"
	"RoomLink/internal/modules/ai/infrastructure/chunking"
	"RoomLink/internal/modules/ai/infrastructure/embedding"
	"RoomLink/internal/modules/ai/infrastructure/keywords"
	"RoomLink/internal/modules/ai/infrastructure/llm"
	"RoomLink/internal/modules/ai/infrastructure/mq/kafka"
	aiPersistence "RoomLink/internal/modules/ai/infrastructure/persistence"
	"RoomLink/internal/modules/ai/infrastructure/queue"
	"RoomLink/internal/modules/ai/infrastructure/retrieval"
	"RoomLink/internal/modules/ai/infrastructure/vectordb"
	"RoomLink/internal/modules/ai/interface/scheduler"
	"RoomLink/internal/modules/ai/interface/worker"
	chatService "RoomLink/internal/modules/chat/application/service"
	chatPersistence "RoomLink/internal/modules/chat/infrastructure/persistence"
	"RoomLink/internal/modules/chat/infrastructure/translation"
	"RoomLink/internal/modules/chat/interface/event"
	userPersistence "RoomLink/internal/modules/user/infrastructure/persistence"
	"RoomLink/pkg/redis"
	"RoomLink/pkg/zlog"

	milvusEntity "github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("c", "configs/config_local.toml", "config file path")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}
	zlog.Init(conf.LogConfig.LogPath)
	defer zlog.Sync()

	ctx := context.Background()

	// 1. 基础设施
	db, err := initial.InitGorm(conf)
	if err != nil {
		zlog.Fatal("init mysql failed", zap.Error(err))
	}
	milvusCli, err := initial.InitMilvus(ctx, conf)
	if err != nil {
		zlog.Fatal("init milvus failed", zap.Error(err))
	}
	if _, err := initial.InitRedis(conf); err != nil {
		zlog.Fatal("init redis failed", zap.Error(err))
	}
	defer func() { _ = redis.Close() }()

	// 2. 仓储
	aiEntityRepo := aiPersistence.NewAIEntityRepository(db)
	memoryRepo := aiPersistence.NewAIMemoryRepository(db)
	cooldownRepo := aiPersistence.NewAICooldownRepository(db)
	jobRepo := aiPersistence.NewResponseJobRepository(db)
	messageRepo := chatPersistence.NewMessageRepository(db)
	roomRepo := chatPersistence.NewRoomRepository(db)
	conversationRepo := chatPersistence.NewConversationRepository(db)
	translationRepo := chatPersistence.NewTranslationRepository(db)
	userRepo := userPersistence.NewUserInfoRepository(db)

	// 3. AI 提供方
	chatModel, chatMeta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("init chat model failed", zap.Error(err))
	}
	provider := llm.NewProvider(chatModel, chatMeta)

	embedder, embedderMeta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal("init embedder failed", zap.Error(err))
	}
	zlog.Info("ai providers ready",
		zap.String("chat_model", chatMeta.Model), zap.String("embedder", embedderMeta.Provider))

	// 4. 向量库与检索器
	var vectorStore aiRepository.VectorStore
	if milvusCli != nil {
		store, err := vectordb.NewMilvusStore(
			milvusCli,
			conf.MilvusConfig.CollectionName,
			"vector",
			conf.MilvusConfig.VectorDim,
			milvusEntity.MetricType(conf.MilvusConfig.MetricType),
		)
		if err != nil {
			zlog.Fatal("init milvus store failed", zap.Error(err))
		}
		vectorStore, err = vectordb.NewMilvusVectorStore(store)
		if err != nil {
			zlog.Fatal("init milvus vector store failed", zap.Error(err))
		}
	}

	var retriever aiRepository.MemoryRetriever
	if conf.AIConfig.Retriever == "vector" && vectorStore != nil {
		retriever = retrieval.NewVectorRetriever(memoryRepo, vectorStore, embedder)
	} else {
		retriever = retrieval.NewKeywordRetriever(memoryRepo)
	}

	// 5. 领域服务
	extractor := keywords.NewYakeExtractor(conf.MemoryConfig.MaxKeywords)
	chunker := chunking.NewSimpleChunker(conf.MemoryConfig.ChunkSize, conf.MemoryConfig.ChunkOverlap)
	summarizer := aiService.NewSummarizer(conf.AIConfig.Summarizer.Mode, provider)

	contextService := aiService.NewContextService(
		messageRepo, userRepo, aiEntityRepo, memoryRepo, retriever, conf.MemoryConfig.OverfetchFactor)
	responseService := aiService.NewResponseService(
		contextService, provider, extractor, messageRepo, conversationRepo, cooldownRepo, conf.MemoryConfig)
	memoryBuilder := aiService.NewMemoryBuilderService(
		contextService, messageRepo, aiEntityRepo, memoryRepo,
		summarizer, extractor, chunker, embedder, vectorStore, conf.MemoryConfig)
	entityService := aiService.NewAIEntityService(aiEntityRepo, roomRepo, conversationRepo)
	personalityService := aiService.NewPersonalityService(
		aiEntityRepo, memoryRepo, extractor, embedder, vectorStore, conf.MemoryConfig)

	var translationService *chatService.TranslationService
	if conf.TranslationConfig.Enabled {
		translator := translation.NewModelTranslator(provider, chatMeta.Model)
		translationService = chatService.NewTranslationService(translator, translationRepo, conf.TranslationConfig)
	}
	messageService := chatService.NewMessageService(
		messageRepo, conversationRepo, roomRepo, aiEntityRepo, jobRepo, translationService)

	// 启动时对齐配置声明的 AI 实体
	seedBootstrap := aiService.NewSeedBootstrap(aiEntityRepo, entityService, personalityService)
	seedBootstrap.Apply(ctx, conf.AIEntitySeeds)

	// 6. Kafka：outbox 中继 + 消费者
	adminCfg := kafka.TopicAdminConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	}
	for _, topic := range []string{conf.KafkaConfig.ResponseTopic, conf.KafkaConfig.MessageTopic} {
		if err := kafka.EnsureTopic(adminCfg, topic, 3, 1); err != nil {
			zlog.Fatal("ensure kafka topic failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	publisher, err := kafka.NewSaramaPublisher(kafka.PublisherConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal("init kafka publisher failed", zap.Error(err))
	}
	defer func() { _ = publisher.Close() }()

	relay := queue.NewResponseOutboxRelay(
		jobRepo, publisher, conf.KafkaConfig.ResponseTopic,
		conf.WorkerConfig.OutboxBatchSize,
		time.Duration(conf.WorkerConfig.OutboxIntervalMs)*time.Millisecond)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		GroupID:  conf.KafkaConfig.ConsumerGroupID,
		Topics:   []string{conf.KafkaConfig.ResponseTopic},
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal("init kafka consumer failed", zap.Error(err))
	}
	defer func() { _ = consumer.Close() }()

	messageConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  conf.KafkaConfig.Brokers,
		GroupID:  conf.KafkaConfig.ConsumerGroupID + "-chat",
		Topics:   []string{conf.KafkaConfig.MessageTopic},
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal("init message consumer failed", zap.Error(err))
	}
	defer func() { _ = messageConsumer.Close() }()

	responseWorker := worker.NewResponseWorker(
		jobRepo, aiEntityRepo, messageRepo, responseService, conf.WorkerConfig)
	messageHandler := event.NewMessageEventHandler(messageService)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := relay.Run(runCtx); err != nil && runCtx.Err() == nil {
			zlog.Error("outbox relay stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := consumer.Run(runCtx, responseWorker); err != nil && runCtx.Err() == nil {
			zlog.Error("response consumer stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := messageConsumer.Run(runCtx, messageHandler); err != nil && runCtx.Err() == nil {
			zlog.Error("message consumer stopped", zap.Error(err))
		}
	}()

	// 7. 记忆归档调度
	memoryScheduler := scheduler.NewMemoryScheduler(messageRepo, aiEntityRepo, memoryBuilder, conf.MemoryConfig)
	if err := memoryScheduler.Start(); err != nil {
		zlog.Fatal("start memory scheduler failed", zap.Error(err))
	}

	zlog.Info("roomlink ai backend started", zap.String("app", conf.MainConfig.AppName))

	// 8. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down...")
	memoryScheduler.Stop()
	cancel()
	zlog.Info("shutdown complete")
}
