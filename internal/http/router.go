package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/userhub/internal/account"
	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/events"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/queue/redisclient"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "userhub-api"

// Deps are the process-level handles the router wires into handlers.
// Pool, Redis and Prom are optional; Store overrides the Postgres repo.
type Deps struct {
	Config   config.Config
	Pool     *pgxpool.Pool
	Store    account.UserStore
	Redis    *redis.Client
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, d Deps) (*gin.Engine, error) {
	if d.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtManager, err := auth.NewManager(d.Config.JWTSecret)
	if err != nil {
		return nil, err
	}

	store := d.Store
	if store == nil {
		store = postgres.NewUsersRepo(d.Pool, d.Prom)
	}

	deps := account.Deps{
		Store:  store,
		Hasher: security.NewHasher(d.Config.BcryptCost),
		Tokens: jwtManager,
		Events: events.NopPublisher{},
		Cache:  cache.New[user.Profile](d.Config.ProfileCacheTTL),
		Log:    log,
	}

	if d.Prom != nil {
		deps.Metrics = d.Prom
	}

	if d.Redis != nil {
		var recorder events.PublishRecorder
		if d.Prom != nil {
			recorder = d.Prom
		}
		deps.Events = events.NewPublisher(d.Redis, events.UserStream, recorder)
	}

	svc := account.NewService(deps)

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Config.CORSAllowedOrigins))

	// health
	var checks []handlers.Check

	if d.Pool != nil {
		checks = append(checks, handlers.Check{Name: "postgres", Ping: func(ctx context.Context) error {
			return d.Pool.Ping(ctx)
		}})
	}

	if d.Redis != nil {
		checks = append(checks, handlers.Check{Name: "redis", Ping: redisclient.Ping(d.Redis)})
	}

	h := handlers.NewHealthHandler(checks...)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Routes
	accounts := handlers.NewAccountsHandler(svc, log)
	authMW := middlewares.NewAuthMiddleware(jwtManager)

	api := r.Group("/api/auth")
	api.Use(middlewares.MaxBodyBytes(d.Config.MaxBodyBytes))
	api.Use(middlewares.RequireJSON())

	api.POST("/registro", accounts.Register)
	api.POST("/login", accounts.Login)

	protected := api.Group("")
	protected.Use(authMW.RequireAuth())
	protected.PUT("/actualizar", accounts.UpdateProfile)
	protected.GET("/perfil", accounts.Me)

	admin := protected.Group("/admin")
	admin.Use(authMW.RequireRole(string(user.RoleAdmin)))
	admin.PUT("/usuarios/:id", accounts.AdminUpdateUser)

	return r, nil
}
