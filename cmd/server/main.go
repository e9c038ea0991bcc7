package main

import (
	"log"

	"github.com/xiushen/internal/cache"
	"github.com/xiushen/internal/config"
	"github.com/xiushen/internal/db"
	"github.com/xiushen/internal/handler"
	"github.com/xiushen/internal/logger"
	"github.com/xiushen/internal/router"
	"github.com/xiushen/internal/service"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// 冷却与内容缓存：配置了 Redis 且连通时用 Redis，否则退回进程内存储
	var store cache.Store = cache.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore, ok := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if ok {
			store = redisStore
			logger.Infof("using redis ttl store at %s", cfg.RedisAddr)
		} else {
			logger.Warnf("redis %s unreachable, falling back to in-memory store", cfg.RedisAddr)
		}
	}

	// 导入章回正文
	chapters := service.NewChapterService(db.DB)
	if loaded, err := chapters.LoadDir(cfg.ChapterDir); err != nil {
		logger.Warnf("load chapters: %v", err)
	} else if loaded > 0 {
		logger.Infof("loaded %d chapters from %s", loaded, cfg.ChapterDir)
	}

	api := handler.NewAPI(db.DB, store)

	// 设置并运行 Gin 服务器
	r := router.Setup(cfg, api)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
