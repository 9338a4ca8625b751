package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/announcements"
	"PRESENCE-backend/internal/attendance"
	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/jobs"
	"PRESENCE-backend/internal/members"
	"PRESENCE-backend/internal/memstore"
	"PRESENCE-backend/internal/notify"
	"PRESENCE-backend/internal/platform/auth"
	"PRESENCE-backend/internal/platform/config"
	"PRESENCE-backend/internal/platform/db"
	"PRESENCE-backend/internal/platform/logger"
	"PRESENCE-backend/internal/platform/metrics"
	"PRESENCE-backend/internal/registration"
	"PRESENCE-backend/internal/stats"
	"PRESENCE-backend/internal/teams"
)

// フロントのビルド出力を埋め込む（登録ページ /register/{token} を含む）
//
//go:embed public
var embedded embed.FS

//go:embed api/openapi.yaml
var openapiSpec []byte

// stores: 機能ごとの永続化。mysql と memory で差し替える
type stores struct {
	attendance    attendance.Store
	members       members.Store
	teams         teams.Store
	registration  registration.Store
	stats         stats.Store
	announcements announcements.Store
}

func main() {
	cfgPath := flag.String("config", config.DefaultPath, "設定ファイル")
	flag.Parse()

	// 設定読み込み
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// 動作モード
	mode := cfg.Mode
	log.Info("starting", zap.String("mode", mode), zap.String("version", cfg.Version), zap.String("driver", cfg.DB.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st stores
	switch cfg.DB.Driver {
	case "memory":
		mem := memstore.New()
		if mode == "demo" {
			seedDemo(mem)
		}
		st = stores{mem, mem, mem, mem, mem, mem}
	default:
		conn, err := db.Connect(cfg.DB)
		if err != nil {
			log.Fatal("db connect failed", zap.Error(err))
		}
		defer conn.Close()
		log.Info("connected to DB", zap.String("dbname", cfg.DB.DBName))

		st = stores{
			attendance:    attendance.NewStore(conn),
			members:       members.NewStore(conn),
			teams:         teams.NewStore(conn),
			registration:  registration.NewStore(conn),
			stats:         stats.NewStore(conn),
			announcements: announcements.NewStore(conn),
		}
	}

	m := metrics.New()
	loc := cfg.Location()
	clock := domain.SystemClock{}
	grade := domain.GradeRule{BaseYear: cfg.App.GenerationBaseYear, MaxGrade: cfg.App.MaxGrade, Location: loc}

	// 通知: 単一インスタンスは Hub 直送、redis 有効時は Redis 経由で全インスタンスの Hub へ
	hub := notify.NewHub(log)
	hub.OnCount = m.SetNotifyClients
	var pub notify.Publisher = hub
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		broker := notify.NewRedisBroker(rdb, cfg.Redis.Channel, hub, log)
		pub = broker
		go func() {
			if err := broker.Run(ctx); err != nil {
				log.Error("redis broker stopped", zap.Error(err))
			}
		}()
	}

	attendanceSvc := attendance.NewService(st.attendance, pub, log, attendance.Options{
		Location: loc,
		Debounce: cfg.Kiosk.Debounce,
		Clock:    clock,
		IDGen:    domain.NewULIDGen(),
		Metrics:  m,
	})
	memberSvc := members.NewService(st.members, grade, clock, log)
	teamSvc := teams.NewService(st.teams, log)
	registrationSvc := registration.NewService(st.registration, pub, log, registration.Options{
		BaseURL: cfg.App.BaseURL,
		TTL:     cfg.App.RegistrationTTL,
		Clock:   clock,
		Metrics: m,
	})
	statsSvc := stats.NewService(st.stats, log, stats.Options{
		Location:   loc,
		WindowDays: cfg.App.RollingWindowDays,
		Grade:      grade,
		Clock:      clock,
	})
	announcementSvc := announcements.NewService(st.announcements, pub, clock, log)

	if cfg.Jobs.DailyLogoutAt != "" {
		job, err := jobs.NewDailyLogoutJob(attendanceSvc, cfg.Jobs.DailyLogoutAt, loc, clock, log)
		if err != nil {
			log.Fatal("daily logout job", zap.Error(err))
		}
		go job.Start(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.GinLogger(log), gin.Recovery(), m.Middleware())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", auth.KioskKeyHeader},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス・メトリクス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", m.Handler())

	// API ドキュメント（開発時のみ）
	if mode != "release" {
		r.GET("/openapi.yaml", func(c *gin.Context) { c.Data(http.StatusOK, "application/yaml", openapiSpec) })
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/openapi.yaml")))
	}

	// /api/v2
	api := r.Group("/api/v2")
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	kiosk := api.Group("", auth.RequireKiosk(cfg.Kiosk.KeyHash))
	member := api.Group("", auth.RequireAuth(verifier), auth.RequireMember(memberSvc))
	admin := api.Group("", auth.RequireAuth(verifier), auth.RequireMember(memberSvc, string(domain.RoleAdmin)))

	kiosk.GET("/kiosk/events/ws", hub.ServeWS)
	attendance.RegisterRoutes(attendance.Groups{Kiosk: kiosk, Member: member, Admin: admin}, attendanceSvc, log)
	registration.RegisterRoutes(kiosk, api, auth.OptionalAuth(verifier), registrationSvc, log)
	members.RegisterRoutes(member, admin, memberSvc, log)
	teams.RegisterRoutes(api, admin, teamSvc, log)
	stats.RegisterRoutes(member, admin, statsSvc, log)
	announcements.RegisterRoutes(api, kiosk, admin, announcementSvc, log)

	r.NoRoute(spaHandler(log))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// TLS設定
	var certFile, keyFile string
	if mode == "release" {
		//本番用
		certFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
	} else {
		//開発用
		certFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Key)
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Listen), zap.Bool("tls", cfg.Certificate.Cert != ""))
		var err error
		if cfg.Certificate.Cert == "" {
			// demo はローカル確認用なので平文で上げる
			err = srv.ListenAndServe()
		} else {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("shutting down...")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

// spaHandler: /api 以外はフロントの静的ファイル。登録ページ /register/{token} もここ
func spaHandler(log *zap.Logger) gin.HandlerFunc {
	sub, err := fs.Sub(embedded, "public")
	if err != nil {
		log.Fatal("embed", zap.Error(err))
	}
	fileFS := http.FS(sub)

	return func(c *gin.Context) {
		// API は対象外
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Status(http.StatusNotFound)
			return
		}

		reqPath := strings.TrimPrefix(c.Request.URL.Path, "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		// 実ファイルがあるならそれを返す（Content-Type を推測、キャッシュ付与）
		if f, err := fileFS.Open(reqPath); err == nil {
			defer f.Close()
			if ct := mime.TypeByExtension(path.Ext(reqPath)); ct != "" {
				c.Header("Content-Type", ct)
			}
			// index.html 以外はキャッシュ（SPAの基本運用）
			if !strings.HasSuffix(reqPath, "index.html") {
				c.Header("Cache-Control", "public, max-age=86400, immutable")
			}
			if fileInfo, err := f.Stat(); err == nil {
				http.ServeContent(c.Writer, c.Request, reqPath, fileInfo.ModTime(), f)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		// なければ index.html にフォールバック
		if idx, err := fileFS.Open("index.html"); err == nil {
			defer idx.Close()
			c.Header("Content-Type", "text/html; charset=utf-8")
			if fileInfo, err := idx.Stat(); err == nil {
				http.ServeContent(c.Writer, c.Request, "index.html", fileInfo.ModTime(), idx)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		c.Status(http.StatusNotFound)
	}
}

// seedDemo: demo モード用の初期データ。IdP の sub は demo-admin / demo-member
func seedDemo(st *memstore.Store) {
	team := st.SeedTeam("本隊")
	st.SeedMember(domain.Member{
		ExternalID:  "demo-admin",
		DisplayName: "管理者",
		CardID:      "00:00:00:01",
		Generation:  1,
		TeamID:      &team.ID,
		Role:        domain.RoleAdmin,
		IsActive:    true,
	})
	st.SeedMember(domain.Member{
		ExternalID:  "demo-member",
		DisplayName: "部員",
		CardID:      "00:00:00:02",
		Generation:  2,
		TeamID:      &team.ID,
		IsActive:    true,
	})
}
