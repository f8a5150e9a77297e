// Command server fronts a real GraphQL endpoint with the three-tier
// cache: every request the Gin router receives is normalised, served
// from cache where possible, and otherwise forwarded upstream through
// transport.HTTPExecutor. No Subscriber is configured.
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"graphqlcache"
	"graphqlcache/internal/cachecore"
	"graphqlcache/internal/transport"
	"graphqlcache/pkg/config"
	"graphqlcache/pkg/logging"
)

func main() {
	log := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", err, nil)
		return
	}

	gin.SetMode(cfg.Server.GinMode)

	executor := transport.NewHTTPExecutor(transport.HTTPExecutorConfig{
		URL:               cfg.Server.GraphQLEndpoint,
		RequestsPerSecond: float64(cfg.Security.RateLimitRequestsPerMin) / 60,
		Burst:             cfg.Security.RateLimitBurst,
	})

	client, err := graphqlcache.Create(graphqlcache.Config{
		Executor: executor,
		DefaultCacheControls: cachecore.DefaultCacheControls{
			Query:        "max-age=60",
			Mutation:     "max-age=0, no-cache, no-store",
			Subscription: "max-age=0, no-cache, no-store",
		},
		Logger: log,
	})
	if err != nil {
		log.Error("failed to build cache client", err, nil)
		return
	}

	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, client, log)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	log.Info("cache proxy listening", logging.Fields{"addr": addr, "upstream": cfg.Server.GraphQLEndpoint})
	if err := router.Run(addr); err != nil {
		log.Error("server exited", err, nil)
	}
}

type graphQLRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

func registerRoutes(router *gin.Engine, client *graphqlcache.Client, log logging.Logger) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/graphql", func(c *gin.Context) {
		var req graphQLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []string{err.Error()}})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		result, err := client.Request(ctx, req.Query, graphqlcache.RequestOptions{
			Variables:     req.Variables,
			OperationName: req.OperationName,
		})
		if err != nil {
			log.Error("request failed", err, logging.Fields{"operationName": req.OperationName})
			c.JSON(http.StatusOK, gin.H{"errors": []string{err.Error()}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result.Data})
	})

	router.POST("/cache/clear", func(c *gin.Context) {
		if err := client.ClearCache(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	})

	router.GET("/cache/export", func(c *gin.Context) {
		snap, err := client.ExportCaches(c.Request.Context(), c.Query("tag"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
}
