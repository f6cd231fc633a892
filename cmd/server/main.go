// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offshore-assist-go/internal/app"
	"offshore-assist-go/internal/config"
	"offshore-assist-go/internal/handler"
	"offshore-assist-go/internal/service"
	"offshore-assist-go/pkg/kafka"
	"offshore-assist-go/pkg/log"
	"offshore-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(os.Stderr, "配置校验失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 初始化数据库、向量库与各个服务
	a, err := app.Build(rootCtx, cfg, app.Options{WithProducer: true})
	if err != nil {
		log.Fatal("初始化依赖失败", err)
	}
	defer a.Close()

	// 4. 启动后台 Kafka 消费者
	if cfg.Kafka.Enabled {
		go kafka.StartConsumer(rootCtx, cfg.Kafka, a.Ingest)
	}

	// 4.1 向量库为空时按需导入初始语料
	if cfg.Ingest.SeedOnStart {
		go seedKnowledge(rootCtx, a)
	}

	// 5. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	verifier := token.NewVerifier(cfg.JWT.Secret)
	r := handler.NewRouter(handler.Handlers{
		Chat:         handler.NewChatHandler(a.Chat, verifier),
		Conversation: handler.NewConversationHandler(a.Conversations),
		Admin:        handler.NewAdminHandler(a.Ingest),
		Search:       handler.NewSearchHandler(a.Retrieval),
	}, verifier, cfg.JWT.StaffRoles)

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

	// 停止 Kafka 消费者；进程内的后台导入在 rootCtx 取消后中止并释放导入锁
	cancel()

	// 设置一个5秒的超时上下文
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	ingestDone := make(chan struct{})
	go func() {
		a.Ingest.Wait()
		close(ingestDone)
	}()
	select {
	case <-ingestDone:
	case <-ctx.Done():
		log.Warnf("等待后台导入结束超时: %v", ctx.Err())
	}
	log.Info("服务已优雅关闭")
}

// seedKnowledge 在向量库为空时从语料目录触发一次重建。
func seedKnowledge(ctx context.Context, a *app.App) {
	stored, err := a.VectorStore.Count(ctx)
	if err != nil {
		log.Warnf("seedKnowledge: 统计向量库失败, 跳过初始化导入: %v", err)
		return
	}
	if stored > 0 {
		log.Infof("seedKnowledge: 向量库已有 %d 条记录, 跳过初始化导入", stored)
		return
	}
	taskID, err := a.Ingest.Trigger(ctx, service.SourceDir, nil, "seed")
	if err != nil {
		log.Warnf("seedKnowledge: 触发初始化导入失败: %v", err)
		return
	}
	log.Infof("seedKnowledge: 已触发初始化导入, TaskID=%s", taskID)
}
