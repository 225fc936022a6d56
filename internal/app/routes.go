package app

import (
	"net/http"

	"github.com/cradoe/lumenbank/internal/handler"
	"github.com/cradoe/lumenbank/internal/middleware"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	mid := middleware.New(app.errorHandler, app.Logger, app.DB.User(), app.DB.Application(), &app.Config)

	healthHandler := handler.NewHealthCheckHandler(&handler.HealthCheckHandler{
		ErrHandler: app.errorHandler,
	})
	authHandler := handler.NewAuthHandler(&handler.AuthHandler{
		DB:         app.DB,
		Cache:      app.Cache,
		Mailer:     app.Mailer,
		Helper:     app.helper,
		ErrHandler: app.errorHandler,
		Config:     &app.Config,
	})
	userHandler := handler.NewUserHandler(&handler.UserHandler{
		UserRepo:         app.DB.User(),
		ApplicationRepo:  app.DB.Application(),
		NotificationRepo: app.DB.Notification(),
		ErrHandler:       app.errorHandler,
	})
	accountHandler := handler.NewAccountHandler(&handler.AccountHandler{
		AccountRepo:     app.DB.Account(),
		TransactionRepo: app.DB.Transaction(),
		ErrHandler:      app.errorHandler,
	})
	transactionHandler := handler.NewTransactionHandler(&handler.TransactionHandler{
		AccountRepo:     app.DB.Account(),
		TransactionRepo: app.DB.Transaction(),
		Poster:          app.Poster,
		ErrHandler:      app.errorHandler,
	})
	jointHandler := handler.NewJointHandler(&handler.JointHandler{
		Activator:  app.Activator,
		Mailer:     app.Mailer,
		Helper:     app.helper,
		ErrHandler: app.errorHandler,
	})
	utilityHandler := handler.NewUtilityHandler(&handler.UtilityHandler{
		FileUploader: app.FileUploader,
		ErrHandler:   app.errorHandler,
	})
	adminHandler := handler.NewAdminHandler(&handler.AdminHandler{
		DB:         app.DB,
		Poster:     app.Poster,
		Activator:  app.Activator,
		Auditor:    app.Auditor,
		Mailer:     app.Mailer,
		Helper:     app.helper,
		ErrHandler: app.errorHandler,
	})

	mux.HandleFunc("GET /status", healthHandler.HandleHealthCheck)

	mux.HandleFunc("POST /auth/register", authHandler.HandleAuthRegister)
	mux.HandleFunc("POST /auth/login", authHandler.HandleAuthLogin)
	mux.HandleFunc("POST /auth/verify-email", authHandler.HandleVerifyEmail)
	mux.HandleFunc("POST /auth/verify-secret-key", authHandler.HandleVerifySecretKey)

	authenticated := func(next http.HandlerFunc) http.Handler {
		return mid.RequireAuthenticatedUser(next)
	}
	transact := func(next http.HandlerFunc) http.Handler {
		return mid.RequireTransactPermission(next)
	}
	admin := func(next http.HandlerFunc) http.Handler {
		return mid.RequireAdmin(next)
	}

	mux.Handle("GET /me", authenticated(userHandler.HandleProfile))
	mux.Handle("GET /me/notifications", authenticated(userHandler.HandleUserNotifications))
	mux.Handle("PUT /me/pin", authenticated(authHandler.HandleSetPin))

	mux.Handle("GET /accounts", authenticated(accountHandler.HandleUserAccounts))
	mux.Handle("GET /accounts/{id}", authenticated(accountHandler.HandleAccountDetails))
	mux.Handle("GET /accounts/{id}/balance", authenticated(accountHandler.HandleAccountBalance))
	mux.Handle("GET /accounts/{id}/transactions", authenticated(accountHandler.HandleAccountTransactions))

	mux.Handle("GET /transactions/{id}", authenticated(transactionHandler.HandleTransactionDetails))
	mux.Handle("POST /transactions/transfer", transact(transactionHandler.HandleTransferMoney))

	mux.Handle("POST /accounts/{id}/joint-requests", transact(jointHandler.HandleCreateJointRequest))

	mux.Handle("POST /files", authenticated(utilityHandler.HandleUploadFile))

	mux.Handle("GET /admin/applications", admin(adminHandler.HandleListApplications))
	mux.Handle("POST /admin/applications/{id}/approve", admin(adminHandler.HandleApproveApplication))
	mux.Handle("POST /admin/applications/{id}/reject", admin(adminHandler.HandleRejectApplication))

	mux.Handle("GET /admin/transactions", admin(adminHandler.HandleListTransactions))
	mux.Handle("POST /admin/transactions/approve", admin(adminHandler.HandleBulkApproveTransactions))
	mux.Handle("POST /admin/transactions/reject", admin(adminHandler.HandleBulkRejectTransactions))
	mux.Handle("POST /admin/transactions/{id}/approve", admin(adminHandler.HandleApproveTransaction))
	mux.Handle("POST /admin/transactions/{id}/reject", admin(adminHandler.HandleRejectTransaction))

	mux.Handle("POST /admin/accounts/{id}/deposit", admin(adminHandler.HandleAdminDeposit))

	mux.Handle("GET /admin/joint-requests", admin(adminHandler.HandleListJointRequests))
	mux.Handle("POST /admin/joint-requests/{id}/approve", admin(adminHandler.HandleApproveJointRequest))
	mux.Handle("POST /admin/joint-requests/{id}/reject", admin(adminHandler.HandleRejectJointRequest))

	mux.Handle("GET /admin/audit/findings", admin(adminHandler.HandleAuditFindings))
	mux.Handle("POST /admin/audit/repairs", admin(adminHandler.HandleAuditRepair))
	mux.Handle("GET /admin/audit/logs", admin(adminHandler.HandleListAuditLogs))

	return mid.LogAccess(mid.RecoverPanic(mid.Authenticate(mux)))
}
