package handler

import (
	"gorm.io/gorm"

	"github.com/xiushen/internal/cache"
	"github.com/xiushen/internal/service"
)

// API 汇集各 HTTP 处理器共享的服务依赖。
type API struct {
	db     *gorm.DB
	users  *service.UserService
	daily  *service.DailyTaskService
	system *service.SystemSettingService
}

// NewAPI 构造处理器集合。
func NewAPI(gdb *gorm.DB, store cache.Store) *API {
	systemService := service.NewSystemSettingService(gdb)

	return &API{
		db:     gdb,
		users:  service.NewUserService(gdb),
		daily:  service.NewDailyTaskService(gdb, systemService, store),
		system: systemService,
	}
}
