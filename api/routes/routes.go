package routes

import (
	"net/http"

	"github.com/ArowuTest/pollstake-backend/internal/config"
	"github.com/ArowuTest/pollstake-backend/internal/handlers"
	"github.com/ArowuTest/pollstake-backend/internal/metrics"
	"github.com/ArowuTest/pollstake-backend/internal/middleware"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/gin-gonic/gin"
)

// HandlerDependencies holds everything the router mounts
type HandlerDependencies struct {
	Tokens         middleware.TokenParser
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	PollHandler     *handlers.PollHandler
	StakeHandler    *handlers.StakeHandler
	WalletHandler   *handlers.WalletHandler
	AdminHandler    *handlers.AdminHandler
	SettingsHandler *handlers.PlatformSettingsHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedHosts))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.MetricsMiddleware(deps.Metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := router.Group("/api/v1")

	// Public routes
	public := api.Group("/public")
	{
		public.GET("/polls", deps.PollHandler.ListPolls)
		public.GET("/polls/:id", deps.PollHandler.GetPoll)
		public.GET("/polls/:id/stats", deps.PollHandler.GetPollStats)
		public.GET("/polls/:id/pool", deps.StakeHandler.GetPoolComposition)
		public.GET("/stakes/calculate-winnings", deps.StakeHandler.CalculateWinnings)
		public.GET("/platform-settings/limits", deps.SettingsHandler.GetLimits)
	}
	api.POST("/webhooks/paystack", deps.WalletHandler.PaystackWebhook)

	// Protected routes
	protected := api.Group("")
	protected.Use(middleware.JWTAuthMiddleware(deps.Tokens))
	{
		stakes := protected.Group("/stakes")
		{
			stakes.POST("", deps.StakeHandler.PlaceStake)
			stakes.GET("/my", deps.StakeHandler.ListMyStakes)
		}

		wallet := protected.Group("/wallet")
		{
			wallet.GET("/balance", deps.WalletHandler.GetBalance)
			wallet.GET("/transactions", deps.WalletHandler.ListTransactions)
			wallet.POST("/deposit", deps.WalletHandler.InitiateDeposit)
			wallet.POST("/verify/:reference", deps.WalletHandler.VerifyDeposit)
			wallet.POST("/calculate-withdrawal", deps.WalletHandler.CalculateWithdrawal)
			wallet.POST("/withdraw", deps.WalletHandler.Withdraw)
			wallet.POST("/reconcile/:transactionId", deps.WalletHandler.Reconcile)
			wallet.POST("/reconcile-all", deps.WalletHandler.ReconcileAll)
		}

		// Staff routes; admin-only actions are enforced again by the services
		staff := middleware.RequireRole(models.RoleSubAdmin, models.RoleAdmin)

		polls := protected.Group("/polls", staff)
		{
			polls.POST("", deps.PollHandler.CreatePoll)
			polls.POST("/:id/close", deps.PollHandler.ClosePoll)
			polls.POST("/:id/resolve", deps.PollHandler.ResolvePoll)
			polls.POST("/:id/cancel", deps.PollHandler.CancelPoll)
			polls.DELETE("/:id", deps.PollHandler.DeletePoll)
		}

		admin := protected.Group("/admin", staff)
		{
			admin.GET("/transactions", deps.AdminHandler.ListTransactions)
			admin.GET("/transactions/withdrawals/pending", deps.AdminHandler.ListPendingWithdrawals)
			admin.PUT("/transactions/:id/approve", deps.AdminHandler.ApproveWithdrawal)
			admin.PUT("/transactions/:id/reject", deps.AdminHandler.RejectWithdrawal)

			admin.GET("/users", deps.AdminHandler.ListUsers)
			admin.GET("/users/:id", deps.AdminHandler.GetUser)
			admin.PUT("/users/:id/lock", deps.AdminHandler.LockUser)
			admin.PUT("/users/:id/unlock", deps.AdminHandler.UnlockUser)

			admin.GET("/dashboard/stats", deps.AdminHandler.GetDashboardStats)

			admin.GET("/platform-settings", deps.SettingsHandler.GetSettings)
			admin.PUT("/platform-settings", deps.SettingsHandler.UpdateSettings)
		}
	}

	return router
}
