package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsignal/internal/adapters/rtc"
	"github.com/dkeye/chatsignal/internal/adapters/signal"
	"github.com/dkeye/chatsignal/internal/app/orch"
	"github.com/dkeye/chatsignal/internal/config"
)

const (
	sessionName     = "chatsignal"
	clientTokenKey  = "ct"
	clientTokenCtxK = "client_token"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a per-browser token in the signed session
// cookie and exposes it to handlers as "client_token".
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenCtxK, token)
		c.Next()
	}
}

func signalOptions(cfg *config.Config) signal.Options {
	return signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteTimeout:   cfg.WriteTimeout,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit.Events,
		RateInterval:   cfg.RateLimit.Interval,
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no session secret configured, using an ephemeral one")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ctrl := signal.NewSignalWSController(o, signalOptions(cfg))
	api := &introspection{orch: o, rtc: rtc.ToClientConfig(rtc.DefaultWebRTCConfig(cfg.IceServers...))}

	g := r.Group("/api")
	g.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenCtxK)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	g.GET("/rooms", api.rooms)
	g.GET("/rooms/:id/members", api.members)
	g.GET("/users/:id/presence", api.presence)
	g.GET("/calls/:chatId", api.call)
	g.GET("/rtc/config", api.rtcConfig)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
