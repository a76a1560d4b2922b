package web

import (
	"log/slog"
	"net/http"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const defaultMaxBodyBytes = 1 << 20

// NewRouter wires the federation endpoints: inboxes, actor documents,
// webfinger, nodeinfo and metrics
func NewRouter(conf *util.AppConfig, deps *activitypub.Deps, processor *activitypub.Processor, counter Counter) *gin.Engine {
	// Set Gin to use the same log writer as the rest of the application
	gin.DefaultWriter = util.GetLogWriter()
	gin.DefaultErrorWriter = util.GetLogWriter()

	g := gin.New()
	g.Use(gin.Recovery(), requestLogger())
	g.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter rate limit for inbox deliveries: 5 req/sec per IP
	inboxLimiter := NewRateLimiter(rate.Limit(5), 10)

	maxBody := conf.Conf.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	maxBodySize := MaxBytesMiddleware(maxBody)

	inbox := NewInboxHandler(deps, processor)
	actors := &actorHandler{deps: deps, inbox: inbox, authorizedFetch: conf.Conf.AuthorizedFetch}
	nodeInfo := &nodeInfoHandler{counter: counter, tags: deps.Tags, webHost: conf.WebHost()}

	g.POST("/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, inbox.SharedInbox)
	g.POST("/users/:username/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, inbox.PersonalInbox)
	g.POST("/actor/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, inbox.SharedInbox)

	g.GET("/users/:username", actors.user)
	g.GET("/actor", actors.instance)
	g.GET("/.well-known/webfinger", actors.webfinger)

	g.GET("/.well-known/nodeinfo", nodeInfo.wellKnown)
	g.GET("/nodeinfo/2.0", nodeInfo.nodeInfo)

	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return g
}

// requestLogger writes one slog line per request
func requestLogger() gin.HandlerFunc {
	log := slog.Default().With("component", "http")
	return func(c *gin.Context) {
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
		)
	}
}
