package main

import (
	"orderflow/internal/config"
	"orderflow/internal/domain/model"
	"orderflow/internal/handler"
	"orderflow/internal/infra/db"
	infraRepo "orderflow/internal/infra/repository"
	"orderflow/internal/server"
	"orderflow/internal/usecase"
	"orderflow/internal/workflow"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .envは無くてもよい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var log *zap.Logger
	if cfg.GoEnv == "prod" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}

	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.WorkflowInstance{},
		&model.WorkflowTask{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	// Repository（GORM実装）生成
	txManager := infraRepo.NewTxManagerGorm(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	cartItemRepo := infraRepo.NewCartItemGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)

	// 注文プロセスのワークフローエンジン
	engine, err := workflow.NewEngine(workflow.OrderProcess(), log)
	if err != nil {
		log.Fatal("workflow definition invalid", zap.Error(err))
	}

	// Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo)
	productUC := usecase.NewProductUsecase(productRepo, inventoryRepo, auditRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartItemRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(txManager, engine, log)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, engine, log)

	// Handler生成
	handlers := server.Handlers{
		Auth:       handler.NewAuthHandler(authUC),
		Product:    handler.NewProductHandler(productUC),
		Cart:       handler.NewCartHandler(cartUC),
		Order:      handler.NewOrderHandler(orderUC),
		Payment:    handler.NewPaymentHandler(orderUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
	}

	log.Info("starting server", zap.String("port", cfg.Port), zap.String("env", cfg.GoEnv))

	if err := server.Start(cfg, handlers); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
