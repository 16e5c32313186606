// Package webadmin serves a small read-only admin API over the wallet and
// the transfer ledger.
package webadmin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coin-tip-bot/config"
	"coin-tip-bot/model"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Wallet is what the admin API reads from the wallet daemon.
type Wallet interface {
	TotalBalance(ctx context.Context) (decimal.Decimal, error)
	GetBalance(ctx context.Context, account string, minConf int) (decimal.Decimal, error)
}

type Server struct {
	cfg    config.WebAdmin
	coin   config.Coin
	wallet Wallet
	db     *gorm.DB
	engine *gin.Engine
	http   *http.Server
}

func New(cfg *config.Config, wallet Wallet, db *gorm.DB) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:    cfg.WebAdmin,
		coin:   cfg.Coin,
		wallet: wallet,
		db:     db,
		engine: gin.New(),
	}

	s.engine.Use(gin.Recovery(), requestLogger())
	if len(s.cfg.AllowedOrigins) > 0 {
		s.engine.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet},
			AllowHeaders:     []string{"Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s.engine.GET("/healthz", s.health)
	api := s.engine.Group("/api", s.basicAuth())
	api.GET("/balance", s.totalBalance)
	api.GET("/accounts/:name/balance", s.accountBalance)
	api.GET("/transfers", s.transfers)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Int("port", s.cfg.Port).Msg("Running webadmin")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.User)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(pass)) != nil {
			c.Header("WWW-Authenticate", `Basic realm="tipbot"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) totalBalance(c *gin.Context) {
	total, err := s.wallet.TotalBalance(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Webadmin: could not fetch wallet balance")
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": total, "currency": s.coin.ShortName})
}

func (s *Server) accountBalance(c *gin.Context) {
	account := strings.ToLower(c.Param("name"))
	ctx := c.Request.Context()

	confirmed, err := s.wallet.GetBalance(ctx, account, s.coin.MinConfirmations)
	if err != nil {
		log.Error().Err(err).Str("account", account).Msg("Webadmin: could not fetch balance")
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet unavailable"})
		return
	}
	total, err := s.wallet.GetBalance(ctx, account, 0)
	if err != nil {
		log.Error().Err(err).Str("account", account).Msg("Webadmin: could not fetch balance")
		c.JSON(http.StatusBadGateway, gin.H{"error": "wallet unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":     account,
		"balance":     confirmed,
		"unconfirmed": total.Sub(confirmed),
		"currency":    s.coin.ShortName,
	})
}

func (s *Server) transfers(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	records, err := model.RecentTransfers(s.db, limit, c.Query("account"))
	if err != nil {
		log.Error().Err(err).Msg("Webadmin: could not read ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": records})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request processed")
	}
}
