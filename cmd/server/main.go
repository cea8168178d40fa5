// Command server runs the antigravity gateway's HTTP front door: a single
// POST /v1/chat/completions route backed by the Dispatcher, plus a
// read-only status route for the account pool. This is ambient wiring
// only (see SPEC_FULL.md §2) — the core is the package graph underneath,
// not this entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arkline-dev/antigravity-gateway/internal/accountmanager"
	"github.com/arkline-dev/antigravity-gateway/internal/accountstore"
	"github.com/arkline-dev/antigravity-gateway/internal/auditlog"
	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/dispatcher"
	"github.com/arkline-dev/antigravity-gateway/internal/format"
	"github.com/arkline-dev/antigravity-gateway/internal/gatewayerr"
	"github.com/arkline-dev/antigravity-gateway/internal/oauthclient"
	"github.com/arkline-dev/antigravity-gateway/internal/ratelimit"
	"github.com/arkline-dev/antigravity-gateway/internal/utils"
	"github.com/arkline-dev/antigravity-gateway/pkg/ledgermirror"
)

func main() {
	cfg := config.GetConfig()

	var mirror ratelimit.Mirror
	if cfg.LedgerMirror {
		client, err := ledgermirror.NewClient(ledgermirror.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			utils.Warn("ledger mirror disabled, could not reach redis at %s: %v", cfg.RedisAddr, err)
		} else {
			defer client.Close()
			mirror = client
			oauthclient.SetPendingStateMirror(client)
			utils.Info("ledger mirror connected: %s", cfg.RedisAddr)
		}
	}

	store := accountstore.New(config.AccountsFilePath())
	ledger := ratelimit.NewLedger(mirror)
	manager := accountmanager.New(store, ledger, cfg)

	var audit *auditlog.Log
	if cfg.AuditLogEnabled {
		log, err := auditlog.Open(config.AuditLogPath())
		if err != nil {
			utils.Warn("audit log disabled: %v", err)
		} else {
			defer log.Close()
			audit = log
		}
	}

	disp := dispatcher.New(manager, audit)

	if !cfg.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	if cfg.APIKey != "" {
		router.Use(bearerAuth(cfg.APIKey))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/v1/models", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"object": "list", "data": modelList()})
	})
	router.GET("/v1/antigravity/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, manager.Status())
	})
	router.POST("/v1/chat/completions", chatCompletionsHandler(disp, cfg))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	utils.GetLogger().Header("antigravity gateway")
	utils.Info("accounts loaded: %d", manager.AccountCount())
	utils.Info("selection strategy: %s", cfg.GetStrategy())
	utils.Info("listening on http://%s", addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Error("server error: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	utils.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.Error("graceful shutdown failed: %v", err)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		utils.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func bearerAuth(apiKey string) gin.HandlerFunc {
	prefix := "Bearer "
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header != prefix+apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func modelList() []gin.H {
	out := make([]gin.H, 0, len(config.SupportedModels))
	for _, m := range config.SupportedModels {
		out = append(out, gin.H{"id": m, "object": "model", "owned_by": "antigravity"})
	}
	return out
}

func chatCompletionsHandler(disp *dispatcher.Dispatcher, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req format.ChatCompletionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Model == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
			return
		}

		resp, err := disp.Dispatch(c.Request.Context(), &req, cfg.FallbackEnabled)
		if err != nil {
			writeDispatchError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func writeDispatchError(c *gin.Context, err error) {
	gwErr, ok := gatewayerr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := gwErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": gin.H{"message": gwErr.Message, "type": gwErr.Kind.String()}})
}
