package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	appfiscal "github.com/zapfy/fiscal-api/internal/application/fiscal"
	infranfse "github.com/zapfy/fiscal-api/internal/infrastructure/nfse"
	"github.com/zapfy/fiscal-api/internal/infrastructure/nfse/signer"
	"github.com/zapfy/fiscal-api/internal/infrastructure/postgres"
	httpRouter "github.com/zapfy/fiscal-api/internal/interfaces/http"
	"github.com/zapfy/fiscal-api/pkg/config"
	"github.com/zapfy/fiscal-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicação")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão ao PostgreSQL")
	}
	defer pool.Close()

	docRepo := postgres.NewFiscalDocumentRepository(pool)
	prestadorRepo := postgres.NewPrestadorRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	dpsBuilder := infranfse.NewDPSBuilderService()
	signerSvc := signer.NewDigitalSignatureService()
	fiscalCfg := appfiscal.Config{
		AppEnv:       cfg.NFSE.AppEnv,
		Ambiente:     cfg.NFSE.Ambiente,
		VerAplic:     cfg.NFSE.VerAplic,
		CertPath:     cfg.NFSE.CertPath,
		CertKeyPath:  cfg.NFSE.CertKeyPath,
		CertPassword: cfg.NFSE.CertPassword,
		Timeout:      time.Duration(cfg.NFSE.TimeoutSeconds) * time.Second,
	}

	// Cliente SEFIN — só é usado se AppEnv é "homolog" ou "prod".
	// Em modo "dev" o orquestrador não o invoca.
	var authority infranfse.AuthorityAPI
	if cfg.NFSE.AppEnv != infranfse.AppEnvDev && cfg.NFSE.AppEnv != "" {
		authority = infranfse.NewSefinClient(signerSvc, cfg.NFSE.VerAplic)
	}

	// Orquestrador: ciclo DPS XML → XMLDSig → GZip+Base64 → Envio SEFIN → Update DB
	orchestrator := appfiscal.NewOrchestrator(
		docRepo, prestadorRepo, dpsBuilder, signerSvc, authority, fiscalCfg,
	)

	issueUC := appfiscal.NewIssueDocumentUseCase(txRunner, docRepo, prestadorRepo, orchestrator)
	prestadorUC := appfiscal.NewPrestadorUseCase(prestadorRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI em local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Fiscal API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		IssueUC:      issueUC,
		PrestadorUC:  prestadorUC,
		Orchestrator: orchestrator,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de desligamento recebido, encerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("encerramento do servidor")
	}

	log.Info().Msg("aplicação parada")
}
