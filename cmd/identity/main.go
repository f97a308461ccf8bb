package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/tavernkeep/identity/pkg/jwks"
	"github.com/tavernkeep/identity/pkg/login"
	loginapi "github.com/tavernkeep/identity/pkg/login/api"
	"github.com/tavernkeep/identity/pkg/ratelimit"
	"github.com/tavernkeep/identity/pkg/rotator"
	"github.com/tavernkeep/identity/pkg/signingkey"
	"github.com/tavernkeep/identity/pkg/token"
	"github.com/tavernkeep/identity/pkg/wellknown"
)

type IdmDbConfig struct {
	Host     string `env:"IDM_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"IDM_PG_PORT" env-default:"5432"`
	Database string `env:"IDM_PG_DATABASE" env-default:"identity_db"`
	User     string `env:"IDM_PG_USER" env-default:"identity"`
	Password string `env:"IDM_PG_PASSWORD" env-default:"pwd"`
}

func (d IdmDbConfig) toDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

type JwtConfig struct {
	Issuer string `env:"JWT_ISSUER" env-default:"identity"`
}

type LoginConfig struct {
	RateLimitBurst     int     `env:"LOGIN_RATE_LIMIT_BURST" env-default:"10"`
	RateLimitPerSecond float64 `env:"LOGIN_RATE_LIMIT_PER_SECOND" env-default:"0.5"`
}

type RotationConfig struct {
	Interval    time.Duration `env:"KEY_ROTATION_INTERVAL" env-default:"168h"`
	Lookahead   time.Duration `env:"KEY_RENEWAL_LOOKAHEAD" env-default:"240h"`
	KeyLifetime time.Duration `env:"KEY_LIFETIME" env-default:"8760h"`
	KeyBits     int           `env:"KEY_BITS" env-default:"2048"`
}

type Config struct {
	IdmDbConfig    IdmDbConfig
	AppConfig      app.AppConfig
	JwtConfig      JwtConfig
	LoginConfig    LoginConfig
	RotationConfig RotationConfig
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "err", err)
	}

	config := Config{}
	cleanenv.ReadEnv(&config)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	dbConfig := config.IdmDbConfig.toDbConfig()
	pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(-1)
	}

	keyRepository, err := signingkey.NewPostgresKeyRepository(pool)
	if err != nil {
		slog.Error("Failed creating key repository", "err", err)
		os.Exit(-1)
	}
	accountRepository := login.NewPostgresAccountRepository(pool)

	issuer := token.NewIssuer(keyRepository, config.JwtConfig.Issuer)
	loginService := login.NewLoginService(accountRepository, issuer)
	jwksService := jwks.NewService(keyRepository)

	loginHandle := loginapi.NewHandle(loginapi.WithLoginService(loginService))
	loginLimiter := ratelimit.NewLimiter(config.LoginConfig.RateLimitBurst, config.LoginConfig.RateLimitPerSecond)
	server.R.Group(func(r chi.Router) {
		r.Use(loginLimiter.Handler)
		loginHandle.RegisterRoutes(r)
	})

	wellKnownHandler := wellknown.NewHandler(jwksService)
	wellKnownHandler.RegisterRoutes(server.R)

	rotatorService := rotator.NewService(keyRepository,
		rotator.WithInterval(config.RotationConfig.Interval),
		rotator.WithRenewalLookahead(config.RotationConfig.Lookahead),
		rotator.WithKeyLifetime(config.RotationConfig.KeyLifetime),
		rotator.WithKeyBits(config.RotationConfig.KeyBits),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go rotatorService.Start(ctx)

	server.Run()
}
