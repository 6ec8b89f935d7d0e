package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/adapters/signal"
	"github.com/dkeye/connecto/internal/app"
	"github.com/dkeye/connecto/internal/billing"
	"github.com/dkeye/connecto/internal/config"
	"github.com/dkeye/connecto/internal/domain"
)

// AccountMiddleware binds the validated wallet account of the caller, if
// any. Identity issuance is external: an auth layer stores the account id
// in the cookie session; the query parameter is a development fallback.
func AccountMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := ""
		if v := sessions.Default(c).Get("account"); v != nil {
			if s, ok := v.(string); ok {
				account = s
			}
		}
		if account == "" {
			account = c.Query("account")
		}
		c.Set("account", account)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, presence *app.Presence, ledger *billing.Ledger) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConnectoSession", store))
	r.Use(AccountMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	api.GET("/online", func(c *gin.Context) {
		users := presence.Snapshot()
		c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
	})

	wallet := api.Group("/wallet")

	wallet.GET("/balance", func(c *gin.Context) {
		account := requireAccount(c)
		if account == "" {
			return
		}
		balance, err := ledger.Balance(c.Request.Context(), account)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch balance"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"accountId": account, "balance": balance})
	})

	wallet.GET("/transactions", func(c *gin.Context) {
		account := requireAccount(c)
		if account == "" {
			return
		}
		txs, err := ledger.Transactions(c.Request.Context(), account, limitParam(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transactions"})
			return
		}
		c.JSON(http.StatusOK, txs)
	})

	wallet.POST("/recharge", func(c *gin.Context) {
		var req struct {
			Account string `json:"account"`
			Amount  int64  `json:"amount"`
		}
		if err := c.BindJSON(&req); err != nil || req.Account == "" || req.Amount <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account and positive amount required"})
			return
		}
		tx, err := ledger.Recharge(c.Request.Context(), domain.AccountID(req.Account), req.Amount)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recharge failed"})
			return
		}
		c.JSON(http.StatusOK, tx)
	})

	api.GET("/calls/history", func(c *gin.Context) {
		account := requireAccount(c)
		if account == "" {
			return
		}
		calls, err := ledger.Calls(c.Request.Context(), account, limitParam(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
			return
		}
		c.JSON(http.StatusOK, calls)
	})

	api.POST("/profile/rate", func(c *gin.Context) {
		var req struct {
			Account       string `json:"account"`
			RatePerMinute int64  `json:"ratePerMinute"`
		}
		if err := c.BindJSON(&req); err != nil || req.Account == "" || req.RatePerMinute < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account and non-negative rate required"})
			return
		}
		if err := ledger.SetRate(c.Request.Context(), domain.AccountID(req.Account), req.RatePerMinute); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set rate"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	return r
}

func requireAccount(c *gin.Context) domain.AccountID {
	account := c.GetString("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account required"})
	}
	return domain.AccountID(account)
}

func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
