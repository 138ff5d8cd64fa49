package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerniceZTT/edulead_crm/config"
	"github.com/BerniceZTT/edulead_crm/middleware"
	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/repository"
	"github.com/BerniceZTT/edulead_crm/routes"
	"github.com/BerniceZTT/edulead_crm/service"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// 初始化日志
	utils.InitLogger()

	// 加载配置
	cfg := config.LoadConfig()

	// 设置Gin模式
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// 未配置 MongoDB 时登录态与操作日志只保存在内存中
	var sessionStore service.SessionStore = service.NewMemorySessionStore()
	var operationLogs repository.OperationLogStore = repository.NewMemoryOperationLogStore(500)

	if cfg.MongoURI != "" {
		if err := repository.InitMongoDB(cfg.MongoURI, cfg.MongoDB); err != nil {
			utils.Logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer repository.CloseMongoDB()

		if err := repository.InitializeCollections(); err != nil {
			utils.Logger.Error().Err(err).Msg("初始化数据库集合失败")
		}
		sessionStore = repository.NewMongoSessionStore(repository.GetDB())
		operationLogs = repository.NewMongoOperationLogStore(repository.GetDB())
	} else {
		utils.Logger.Warn().Msg("未配置 MONGO_URI，登录态与操作日志不会持久化")
	}

	// 远程接口客户端，token 取自当前会话
	var session *service.Session
	client := repository.NewAPIClient(repository.APIConfig{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
	}, repository.TokenFunc(func() string {
		if session == nil {
			return ""
		}
		return session.Token()
	}))

	var authenticator service.Authenticator = service.NewRemoteAuthenticator(client)
	if cfg.AuthMode == config.AuthModeLocal {
		authenticator = service.NewLocalAuthenticator(client)
	}
	session = service.NewSession(authenticator, sessionStore)
	if cfg.SessionSecret == "" {
		utils.Logger.Warn().Msg("未配置SESSION_SECRET，重启后需要重新登录")
	}
	session.UseSigningKey([]byte(cfg.SessionSecret), cfg.SessionTTL)

	store := service.NewLeadStore()
	coordinator := service.NewCoordinator(client, store, session, cfg.AuthMode == config.AuthModeToken)

	hub := service.NewHub(originChecker(cfg.AllowedOrigins))
	listener := service.NewLiveListener(cfg.LiveURL, cfg.LiveReconnectDelay, store, session, hub)

	// 推送连接只在登录期间保持
	session.OnChange(func(state service.SessionState, _ models.User) {
		if state == service.SessionAuthenticated {
			listener.Start()
			return
		}
		listener.Stop()
		hub.Broadcast(service.LiveEvent{Type: service.EventSessionEnded})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 恢复上次的登录态
	if session.Restore(ctx) {
		if err := coordinator.Refresh(ctx); err != nil {
			utils.Logger.Warn().Err(err).Msg("恢复登录后拉取数据失败")
		}
	}

	service.ScheduleEvery(ctx, cfg.RefreshInterval, func(ctx context.Context) {
		if session.State() != service.SessionAuthenticated {
			return
		}
		if err := coordinator.Refresh(ctx); err != nil {
			utils.Logger.Warn().Err(err).Msg("定时刷新失败")
			return
		}
		hub.Broadcast(service.LiveEvent{Type: service.EventRefreshed, Data: gin.H{"total": len(store.Leads())}})
	})
	if cfg.DigestHour >= 0 {
		service.ScheduleDailyTaskAt(ctx, cfg.DigestHour, 0, 0, func(ctx context.Context) {
			service.ProcessReminderDigest(ctx, coordinator, hub)
		})
	}

	// 创建Gin实例
	router := gin.New()

	// 应用中间件
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.OperationLoggerMiddleware(operationLogs))

	// 注册路由
	routes.RegisterRoutes(router, routes.Deps{
		Session:       session,
		Coordinator:   coordinator,
		Hub:           hub,
		OperationLogs: operationLogs,
	})

	// 设置HTTP服务器，实时推送连接不设写超时
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// 启动服务器
	go func() {
		utils.Logger.Info().Msgf("服务器启动，监听端口: %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Logger.Fatal().Err(err).Msg("启动服务器失败")
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.Logger.Info().Msg("正在关闭服务器...")

	cancel()
	listener.Stop()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error().Err(err).Msg("服务器关闭异常")
	}

	utils.Logger.Info().Msg("服务器已优雅关闭")
}

// originChecker 实时推送连接的来源校验，与 CORS 使用同一白名单
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
