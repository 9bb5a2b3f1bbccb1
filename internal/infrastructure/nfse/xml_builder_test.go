package nfse_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapfy/fiscal-api/internal/domain/entity"
	infranfse "github.com/zapfy/fiscal-api/internal/infrastructure/nfse"
	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de teste
// ──────────────────────────────────────────────────────────────────────────────

const (
	testCNPJPrestador = "11222333000181" // DV válido
	testCNPJTomador   = "34028316000103" // DV válido
	testMunicipio     = "3550308"        // São Paulo (IBGE)
)

func buildTestContext() *infranfse.DPSBuildContext {
	return &infranfse.DPSBuildContext{
		Documento: &entity.FiscalDocument{
			Serie:            "1",
			Numero:           "42",
			Competencia:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			DhEmissao:        time.Date(2026, 3, 15, 12, 30, 45, 0, time.UTC),
			TomadorDoc:       testCNPJTomador,
			TomadorNome:      "Empresa Tomadora LTDA",
			DescricaoServico: "Licenciamento de software de atendimento",
			CTribNac:         "010701",
			ValorServico:     decimal.NewFromFloat(1500.50),
			AliquotaISS:      decimal.NewFromFloat(2.5),
			ISSRetido:        false,
		},
		Prestador: &entity.Prestador{
			CNPJ:            testCNPJPrestador,
			RazaoSocial:     "Zapfy Tecnologia LTDA",
			CodigoMunicipio: testMunicipio,
			OptanteSimples:  true,
		},
		Ambiente: pkgnfse.AmbienteHomologacao,
		VerAplic: "zapfy-fiscal-1.0",
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Estrutura do DPS
// ──────────────────────────────────────────────────────────────────────────────

// TestBuild_EstruturaCompleta valida o esqueleto exato do DPS: namespace,
// versão, Id do infDPS e os grupos obrigatórios na ordem do leiaute.
// A SEFIN valida schema antes da assinatura; desvio de ordem é rejeição certa.
func TestBuild_EstruturaCompleta(t *testing.T) {
	svc := infranfse.NewDPSBuilderService()

	out, err := svc.Build(buildTestContext())
	require.NoError(t, err)
	xml := string(out)

	assert.Contains(t, xml, `xmlns="http://www.sped.fazenda.gov.br/nfse"`)
	assert.Contains(t, xml, `versao="1.00"`)

	// Id = "DPS" + CNPJ(14) + série(5) + número(15)
	assert.Contains(t, xml, `Id="DPS`+testCNPJPrestador+`00001000000000000042"`)

	// Ordem dos elementos do infDPS conforme o leiaute
	sequence := []string{
		"<tpAmb>2</tpAmb>",
		"<dhEmi>2026-03-15T12:30:45Z</dhEmi>",
		"<verAplic>zapfy-fiscal-1.0</verAplic>",
		"<serie>1</serie>",
		"<nDPS>42</nDPS>",
		"<dCompet>2026-03-01</dCompet>",
		"<tpEmit>1</tpEmit>",
		"<cLocEmi>" + testMunicipio + "</cLocEmi>",
		"<prest>",
		"<CNPJ>" + testCNPJPrestador + "</CNPJ>",
		"<opSimpNac>2</opSimpNac>",
		"<toma>",
		"<CNPJ>" + testCNPJTomador + "</CNPJ>",
		"<serv>",
		"<cTribNac>010701</cTribNac>",
		"<valores>",
		"<vServ>1500.50</vServ>",
		"<tribISSQN>1</tribISSQN>",
		"<pAliq>2.50</pAliq>",
		"<tpRetISSQN>1</tpRetISSQN>",
		"<indTotTrib>0</indTotTrib>",
	}
	last := -1
	for _, frag := range sequence {
		idx := strings.Index(xml, frag)
		require.GreaterOrEqual(t, idx, 0, "fragmento ausente: %s", frag)
		assert.Greater(t, idx, last, "fragmento fora de ordem: %s", frag)
		last = idx
	}
}

// TestBuild_Deterministico: mesmo input produz sempre os mesmos bytes.
// Pré-condição para a verificação da assinatura por round-trip.
func TestBuild_Deterministico(t *testing.T) {
	svc := infranfse.NewDPSBuilderService()

	out1, err1 := svc.Build(buildTestContext())
	out2, err2 := svc.Build(buildTestContext())

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, out1, out2, "o mesmo input deve produzir bytes idênticos")
}

// TestBuild_TomadorCPF: documento de 11 dígitos vai no elemento CPF.
func TestBuild_TomadorCPF(t *testing.T) {
	svc := infranfse.NewDPSBuilderService()
	ctx := buildTestContext()
	ctx.Documento.TomadorDoc = "529.982.247-25"

	out, err := svc.Build(ctx)
	require.NoError(t, err)

	assert.Contains(t, string(out), "<CPF>52998224725</CPF>",
		"CPF deve ser normalizado e ir no elemento CPF")
	assert.NotContains(t, string(out), "<toma><CNPJ>",
		"tomador pessoa física não pode ter CNPJ")
}

// TestBuild_ISSRetido: retenção muda tpRetISSQN para 2.
func TestBuild_ISSRetido(t *testing.T) {
	svc := infranfse.NewDPSBuilderService()
	ctx := buildTestContext()
	ctx.Documento.ISSRetido = true

	out, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<tpRetISSQN>2</tpRetISSQN>")
}

// TestBuild_AliquotaZeroOmitePAliq: alíquota não positiva omite o elemento
// opcional pAliq.
func TestBuild_AliquotaZeroOmitePAliq(t *testing.T) {
	svc := infranfse.NewDPSBuilderService()
	ctx := buildTestContext()
	ctx.Documento.AliquotaISS = decimal.Zero

	out, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<pAliq>")
}

// TestBuild_SanitizaTexto: acentos removidos e espaços colapsados nos campos
// de texto livre.
func TestBuild_SanitizaTexto(t *testing.T) {
	svc := infranfse.NewDPSBuilderService()
	ctx := buildTestContext()
	ctx.Documento.TomadorNome = "  João   & Associação Ltda  "
	ctx.Documento.DescricaoServico = "Emissão de notas"

	out, err := svc.Build(ctx)
	require.NoError(t, err)

	assert.Contains(t, string(out), "<xNome>Joao &amp; Associacao Ltda</xNome>")
	assert.Contains(t, string(out), "<xDescServ>Emissao de notas</xDescServ>")
}

// TestBuild_IMOpcional: inscrição municipal só aparece quando informada.
func TestBuild_IMOpcional(t *testing.T) {
	svc := infranfse.NewDPSBuilderService()

	ctx := buildTestContext()
	out, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<IM>")

	ctx.Prestador.InscricaoMunicipal = "12345678"
	out, err = svc.Build(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<IM>12345678</IM>")
}

// ──────────────────────────────────────────────────────────────────────────────
// Validação de entrada
// ──────────────────────────────────────────────────────────────────────────────

// TestBuild_CamposObrigatorios: cada campo ausente ou malformado deve falhar
// com MalformedInputError nomeando o campo; nada de XML parcial.
func TestBuild_CamposObrigatorios(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*infranfse.DPSBuildContext)
		field  string
	}{
		{"sem documento", func(c *infranfse.DPSBuildContext) { c.Documento = nil }, "documento"},
		{"sem prestador", func(c *infranfse.DPSBuildContext) { c.Prestador = nil }, "prestador"},
		{"ambiente inválido", func(c *infranfse.DPSBuildContext) { c.Ambiente = "3" }, "tpAmb"},
		{"sem verAplic", func(c *infranfse.DPSBuildContext) { c.VerAplic = "" }, "verAplic"},
		{"CNPJ prestador com DV errado", func(c *infranfse.DPSBuildContext) { c.Prestador.CNPJ = "11222333000182" }, "prestador.cnpj"},
		{"município com 6 dígitos", func(c *infranfse.DPSBuildContext) { c.Prestador.CodigoMunicipio = "355030" }, "prestador.codigoMunicipio"},
		{"sem série", func(c *infranfse.DPSBuildContext) { c.Documento.Serie = "" }, "serie"},
		{"sem número", func(c *infranfse.DPSBuildContext) { c.Documento.Numero = "" }, "numero"},
		{"sem dhEmi", func(c *infranfse.DPSBuildContext) { c.Documento.DhEmissao = time.Time{} }, "dhEmi"},
		{"sem competência", func(c *infranfse.DPSBuildContext) { c.Documento.Competencia = time.Time{} }, "dCompet"},
		{"tomador com 10 dígitos", func(c *infranfse.DPSBuildContext) { c.Documento.TomadorDoc = "1234567890" }, "tomador.documento"},
		{"sem nome do tomador", func(c *infranfse.DPSBuildContext) { c.Documento.TomadorNome = "" }, "tomador.nome"},
		{"sem descrição", func(c *infranfse.DPSBuildContext) { c.Documento.DescricaoServico = "" }, "xDescServ"},
		{"cTribNac curto", func(c *infranfse.DPSBuildContext) { c.Documento.CTribNac = "1701" }, "cTribNac"},
		{"valor zero", func(c *infranfse.DPSBuildContext) { c.Documento.ValorServico = decimal.Zero }, "vServ"},
		{"valor negativo", func(c *infranfse.DPSBuildContext) { c.Documento.ValorServico = decimal.NewFromInt(-10) }, "vServ"},
	}

	svc := infranfse.NewDPSBuilderService()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := buildTestContext()
			tc.mutate(ctx)

			out, err := svc.Build(ctx)
			require.Error(t, err)
			assert.Nil(t, out, "não deve emitir XML parcial")

			var malformed *pkgnfse.MalformedInputError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tc.field, malformed.Field)
		})
	}
}
