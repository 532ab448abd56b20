package handlers

import (
	"city311-api/config"
	"city311-api/metrics"
	"city311-api/middleware"
	"city311-api/serving"
	"city311-api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators the router wires into handlers. DB and Cache may
// be nil; the operator routes are then not mounted.
type Deps struct {
	Snapshot    *serving.Snapshot
	DB          *gorm.DB
	Cache       *services.CacheService
	Auth        *services.AuthService
	CORS        config.CORSConfig
	RunsChannel string
	Logger      *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Cache == nil {
		d.Cache = &services.CacheService{}
	}

	r := gin.New()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.SetupCORS(d.CORS))

	dashboard := NewDashboardHandler(d.Snapshot, d.Logger)
	predict := NewPredictHandler(d.Snapshot, d.Logger)

	r.GET("/", dashboard.Root)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.GET("/health", dashboard.Health)
	api.GET("/dashboard-data", dashboard.GetDashboardData)
	api.GET("/dashboard-data/export", dashboard.ExportDashboard)
	api.GET("/categorical-values", dashboard.GetCategoricalValues)
	api.POST("/predict-completion", predict.PredictCompletion)

	if d.DB != nil && d.Auth != nil {
		auth := NewAuthHandler(d.DB, d.Auth, d.Logger)
		runs := NewRunsHandler(d.DB, d.Cache, d.Logger)
		jwt := middleware.NewJWTMiddleware(d.Auth, d.Logger)

		api.POST("/auth/register", auth.Register)
		api.POST("/auth/login", auth.Login)
		api.GET("/auth/me", jwt.RequireAuth(), auth.Me)

		// The live feed authenticates itself from the query string.
		api.GET("/model-runs/live", LiveRuns(d.Cache, d.Auth, d.RunsChannel, d.Logger))
		protected := api.Group("/model-runs", jwt.RequireAuth())
		protected.GET("", runs.ListRuns)
		protected.GET("/:id", runs.GetRun)
	}

	return r
}
