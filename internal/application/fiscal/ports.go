package fiscal

import (
	"context"
	"time"

	"github.com/zapfy/fiscal-api/internal/domain/repository"
)

// TxRunner executa uma função dentro de uma transação com o repositório de
// documentos atado à tx. A emissão usa para alocar número de série e gravar
// o documento atomicamente.
type TxRunner interface {
	Run(ctx context.Context, fn func(docs repository.FiscalDocumentRepository) error) error
}

// Config do motor fiscal (derivada de config.NFSEConfig).
//
// Modos de operação (AppEnv):
//   - "dev"     → constrói e assina o DPS, NÃO transmite. Estado final simulado.
//   - "homolog" → transmite ao ambiente de produção restrita da SEFIN.
//   - "prod"    → transmite ao ambiente de produção.
type Config struct {
	AppEnv       string
	Ambiente     string // tpAmb do DPS: 1=produção, 2=homologação
	VerAplic     string
	CertPath     string
	CertKeyPath  string
	CertPassword string
	Timeout      time.Duration
}
