// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"robo-chat-go/internal/config"
	"robo-chat-go/internal/executor"
	"robo-chat-go/internal/handler"
	"robo-chat-go/internal/middleware"
	"robo-chat-go/internal/repository"
	"robo-chat-go/internal/research"
	"robo-chat-go/internal/router"
	"robo-chat-go/internal/service"
	"robo-chat-go/internal/session"
	"robo-chat-go/pkg/codesuggest"
	"robo-chat-go/pkg/database"
	"robo-chat-go/pkg/kafka"
	"robo-chat-go/pkg/llm"
	"robo-chat-go/pkg/log"
	"robo-chat-go/pkg/summarizer"
	"robo-chat-go/pkg/tika"
)

func main() {
	// 1. 初始化配置，ROBO_CONFIG 可覆盖配置文件路径
	configPath := os.Getenv("ROBO_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 缺少任一 API 密钥时拒绝启动
	if err := cfg.Validate(); err != nil {
		log.Fatal("配置校验失败", err)
	}

	// 3. 初始化可选的 Redis 与 Kafka
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		rc, err := database.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			log.Warnf("Redis 不可用，网页缓存已禁用: %v", err)
		} else {
			redisClient = rc
		}
	}

	sessionOpts := session.Options{
		SystemPrompt:     cfg.Memory.SystemPrompt,
		MaxHistoryLength: cfg.Memory.MaxHistoryLength,
		MaxChatMemory:    cfg.Memory.MaxChatMemory,
	}
	var publisher *kafka.TurnPublisher
	if cfg.Kafka.Brokers != "" {
		publisher = kafka.NewTurnPublisher(kafka.NewWriter(cfg.Kafka))
		sessionOpts.Observer = publisher
	}

	// 4. 初始化后端
	sum := summarizer.New(cfg.Research.TokenizerModel)
	var fetcher research.Fetcher = research.NewHTTPFetcher(cfg.Research)
	if redisClient != nil {
		fetcher = research.NewCachingFetcher(fetcher, repository.NewPageCacheRepository(redisClient), cfg.Research.CacheTTL)
	}
	researchPipeline := research.NewPipeline(
		research.NewDuckDuckGoSearcher(cfg.Research),
		fetcher,
		sum,
		research.Options{
			MaxResults:    cfg.Research.MaxResults,
			SummaryTokens: cfg.Research.SummaryTokens,
			TotalTimeout:  cfg.Research.TotalTimeout,
		},
	)
	agentRouter := router.New(
		llm.NewClient(cfg.LLM),
		codesuggest.NewClient(cfg.CodeSuggest),
		executor.New(cfg.Executor),
		researchPipeline,
	)

	// 5. 初始化 Service (依赖注入)
	var extractor service.TextExtractor
	if cfg.Tika.ServerURL != "" {
		extractor = tika.NewClient(cfg.Tika)
	}
	chatService := service.NewChatService(agentRouter, service.ChatOptions{
		SuggestCode:        cfg.Chat.SuggestCode,
		ExecuteSuggestions: cfg.Chat.ExecuteSuggestions,
	})
	fileService := service.NewFileService(extractor, sum, service.FileOptions{
		SummaryChars:  cfg.Chat.UploadSummaryChars,
		SummaryTokens: cfg.Research.SummaryTokens,
		MaxBytes:      cfg.Chat.UploadMaxBytes,
	})
	sessions := session.NewRegistry(sessionOpts)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"status": "ok"}})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.RegisterRoutes(r, handler.Dependencies{
		Sessions:    sessions,
		ChatService: chatService,
		FileService: fileService,
		Router:      agentRouter,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Info("服务已优雅关闭")
}
