package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaos-io/avatarkit/cache"
	"github.com/chaos-io/avatarkit/config"
	"github.com/chaos-io/avatarkit/face"
	"github.com/chaos-io/avatarkit/handler"
	"github.com/chaos-io/avatarkit/middleware"
	"github.com/chaos-io/avatarkit/rembg"
	"github.com/chaos-io/avatarkit/storage"
	"github.com/chaos-io/avatarkit/util"
	nhttp "github.com/chaos-io/avatarkit/util/http"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "crop" {
		if err := runCrop(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "crop:", err)
			os.Exit(1)
		}
		return
	}

	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := util.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	util.Logger.Info("starting avatarkit server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		util.Logger.Fatal("server stopped", zap.Error(err))
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	// 暂存目录和定时清理
	store, err := storage.NewTempStore(cfg.Storage.TempDir, cfg.Storage.TTL)
	if err != nil {
		return err
	}
	janitor, err := store.StartJanitor(cfg.Storage.CleanupSpec)
	if err != nil {
		return err
	}
	defer janitor.Stop()

	// 初始化Redis，连接失败时不缓存
	resultCache := cache.New(ctx, cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	defer func() {
		_ = resultCache.Close()
	}()

	detector, err := face.New(ctx, face.Config{
		Detector:    cfg.Face.Detector,
		CascadePath: cfg.Face.CascadePath,
		AWSRegion:   cfg.Face.AWSRegion,
	})
	if err != nil {
		return err
	}

	service := rembg.NewService(
		rembg.NewSessions(cfg.Rembg.SessionCapacity, removerFactory(cfg.Rembg)),
		rembg.NewLimiter(cfg.Rembg.MaxConcurrent, cfg.Rembg.QueueTimeout),
		resultCache,
	)

	imageHandler := handler.NewImageHandler(service, detector, store,
		util.NewDownloader(30*time.Second, cfg.Upload.MaxSize),
		handler.Options{
			MaxUploadSize: cfg.Upload.MaxSize,
			AllowedPrefix: cfg.Upload.AllowedPrefix,
			PublicURL:     cfg.Server.PublicURL,
		})

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxSize
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})
	imageHandler.Register(r)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	util.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func removerFactory(cfg config.RembgConfig) rembg.Factory {
	cli := nhttp.NewHTTPClientWithTimeout(cfg.Timeout)
	if cfg.Backend == "comfyui" {
		return rembg.ComfyFactory(cfg.BaseURL, cfg.ComfyUIURL, cli)
	}
	return rembg.ServerFactory(cfg.BaseURL, cli)
}
