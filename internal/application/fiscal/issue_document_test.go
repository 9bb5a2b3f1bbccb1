package fiscal_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapfy/fiscal-api/internal/application/dto"
	"github.com/zapfy/fiscal-api/internal/application/fiscal"
	"github.com/zapfy/fiscal-api/internal/domain"
	"github.com/zapfy/fiscal-api/internal/domain/entity"
)

func validIssueRequest() dto.IssueDocumentRequest {
	return dto.IssueDocumentRequest{
		InvoiceID:        "inv-001",
		Serie:            "1",
		Competencia:      "2026-03-01",
		TomadorDoc:       "34.028.316/0001-03",
		TomadorNome:      "Empresa Tomadora LTDA",
		DescricaoServico: "Assinatura mensal da plataforma",
		CTribNac:         "010701",
		ValorServico:     decimal.NewFromFloat(150.00),
		AliquotaISS:      decimal.NewFromFloat(2.5),
		ISSRetido:        false,
	}
}

func newIssueUseCase(t *testing.T, env *testEnv) *fiscal.IssueDocumentUseCase {
	t.Helper()
	return fiscal.NewIssueDocumentUseCase(
		&fakeTxRunner{docs: env.docs},
		env.docs,
		env.prestadores,
		env.orch,
	)
}

// TestIssue_NumeracaoAutomatica: sem número informado, a série do tenant
// aloca sequencialmente dentro da transação de gravação.
func TestIssue_NumeracaoAutomatica(t *testing.T) {
	env := newTestEnv(t, "dev", nil)
	env.seed(t, nil)
	uc := newIssueUseCase(t, env)
	ctx := context.Background()

	first, err := uc.Issue(ctx, testTenant, validIssueRequest())
	require.NoError(t, err)
	second, err := uc.Issue(ctx, testTenant, validIssueRequest())
	require.NoError(t, err)

	assert.Equal(t, "1", first.Numero)
	assert.Equal(t, "2", second.Numero)
	assert.NotEqual(t, first.ID, second.ID)

	// O documento do tomador volta normalizado, só dígitos.
	assert.Equal(t, "34028316000103", first.TomadorDoc)
}

// TestIssue_NumeroExplicito: número fornecido pelo chamador é respeitado.
func TestIssue_NumeroExplicito(t *testing.T) {
	env := newTestEnv(t, "dev", nil)
	env.seed(t, nil)
	uc := newIssueUseCase(t, env)

	req := validIssueRequest()
	req.Numero = "77"
	resp, err := uc.Issue(context.Background(), testTenant, req)
	require.NoError(t, err)
	assert.Equal(t, "77", resp.Numero)
}

// TestIssue_ProcessamentoCompleto: a resposta volta antes do veredito, e o
// pipeline assíncrono leva o documento ao estado final.
func TestIssue_ProcessamentoCompleto(t *testing.T) {
	env := newTestEnv(t, "dev", nil)
	env.seed(t, nil)
	uc := newIssueUseCase(t, env)

	resp, err := uc.Issue(context.Background(), testTenant, validIssueRequest())
	require.NoError(t, err)
	require.Equal(t, entity.FiscalStatusPendente, resp.Status)

	doc := waitStatus(t, env.docs, resp.ID, entity.FiscalStatusAutorizada)
	assert.Len(t, doc.ChaveAcesso, 50)
}

// TestIssue_SemPrestador: tenant precisa configurar o prestador antes de emitir.
func TestIssue_SemPrestador(t *testing.T) {
	env := newTestEnv(t, "dev", nil)
	uc := newIssueUseCase(t, env)

	_, err := uc.Issue(context.Background(), testTenant, validIssueRequest())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestIssue_Validacao(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*dto.IssueDocumentRequest)
	}{
		{"sem serie", func(r *dto.IssueDocumentRequest) { r.Serie = "" }},
		{"sem nome do tomador", func(r *dto.IssueDocumentRequest) { r.TomadorNome = "" }},
		{"sem descricao", func(r *dto.IssueDocumentRequest) { r.DescricaoServico = "" }},
		{"valor zero", func(r *dto.IssueDocumentRequest) { r.ValorServico = decimal.Zero }},
		{"valor negativo", func(r *dto.IssueDocumentRequest) { r.ValorServico = decimal.NewFromInt(-10) }},
		{"aliquota negativa", func(r *dto.IssueDocumentRequest) { r.AliquotaISS = decimal.NewFromInt(-1) }},
		{"documento do tomador com 9 digitos", func(r *dto.IssueDocumentRequest) { r.TomadorDoc = "123456789" }},
		{"cTribNac curto", func(r *dto.IssueDocumentRequest) { r.CTribNac = "0107" }},
		{"competencia fora do formato", func(r *dto.IssueDocumentRequest) { r.Competencia = "03/2026" }},
		{"numero nao numerico", func(r *dto.IssueDocumentRequest) { r.Numero = "abc" }},
	}

	env := newTestEnv(t, "dev", nil)
	env.seed(t, nil)
	uc := newIssueUseCase(t, env)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validIssueRequest()
			tc.mutate(&req)

			_, err := uc.Issue(context.Background(), testTenant, req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

// TestGetByID_List cobre leitura com isolamento por tenant.
func TestGetByID_List(t *testing.T) {
	env := newTestEnv(t, "dev", nil)
	env.seed(t, testDocument(entity.FiscalStatusAutorizada))
	uc := newIssueUseCase(t, env)
	ctx := context.Background()

	t.Run("dono le o documento", func(t *testing.T) {
		resp, err := uc.GetByID(ctx, testTenant, "doc-001")
		require.NoError(t, err)
		assert.Equal(t, "doc-001", resp.ID)
	})

	t.Run("outro tenant nao le", func(t *testing.T) {
		_, err := uc.GetByID(ctx, "tenant-outro", "doc-001")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("inexistente", func(t *testing.T) {
		_, err := uc.GetByID(ctx, testTenant, "doc-999")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("lista filtra por status", func(t *testing.T) {
		docs, err := uc.List(ctx, testTenant, entity.FiscalStatusAutorizada, 50)
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		vazio, err := uc.List(ctx, testTenant, entity.FiscalStatusCancelada, 50)
		require.NoError(t, err)
		assert.Empty(t, vazio)
	})
}
