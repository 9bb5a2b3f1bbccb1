package nfse_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infranfse "github.com/zapfy/fiscal-api/internal/infrastructure/nfse"
	"github.com/zapfy/fiscal-api/internal/infrastructure/nfse/signer"
	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// testCertificate gera um certificado RSA autoassinado válido por 24h,
// suficiente para o pipeline de assinatura nos testes.
func testCertificate(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ZAPFY TESTES:11222333000181"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
}

func testAuthorityConfig(t *testing.T, sefinURL, danfseURL string) infranfse.AuthorityConfig {
	t.Helper()
	return infranfse.AuthorityConfig{
		CNPJEmitente: testCNPJPrestador,
		Ambiente:     pkgnfse.AmbienteHomologacao,
		Certificate:  testCertificate(t),
		Timeout:      5 * time.Second,
		URLSefin:     sefinURL,
		URLDanfse:    danfseURL,
	}
}

func newClient() *infranfse.SefinClient {
	return infranfse.NewSefinClient(signer.NewDigitalSignatureService(), "zapfy-fiscal-1.0")
}

// ── Submit ───────────────────────────────────────────────────────────────────

// TestSubmit_Sucesso: 2xx decodifica a resposta da SEFIN, e o envelope enviado
// carrega o DPS em gzip+Base64 recuperável.
func TestSubmit_Sucesso(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/nfse", r.URL.Path)

		var env struct {
			DpsXMLGZipB64 string `json:"dpsXmlGZipB64"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		xml, err := infranfse.DecodeGZipB64(env.DpsXMLGZipB64)
		require.NoError(t, err)
		received = xml

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"codigoStatus":100,"mensagem":"Autorizada","chaveAcesso":"` + testChave + `"}`))
	}))
	defer srv.Close()

	cfg := testAuthorityConfig(t, srv.URL, "")
	resp, err := newClient().Submit(context.Background(), []byte("<DPS><infDPS Id=\"DPS1\"/></DPS>"), cfg)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.Success())
	assert.Equal(t, testChave, resp.ChaveAcesso)
	assert.Contains(t, string(received), "<DPS>", "o servidor deve receber o XML original após gunzip")
}

// TestSubmit_5xxTransitorio: qualquer 5xx é falha de infraestrutura e vira
// RetryableTransportError, nunca rejeição persistida.
func TestSubmit_5xxTransitorio(t *testing.T) {
	for _, status := range []int{500, 502, 503} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("bad gateway"))
		}))

		cfg := testAuthorityConfig(t, srv.URL, "")
		resp, err := newClient().Submit(context.Background(), []byte("<DPS/>"), cfg)
		srv.Close()

		require.Error(t, err, "status %d", status)
		assert.Nil(t, resp)

		var retryable *pkgnfse.RetryableTransportError
		require.ErrorAs(t, err, &retryable)
		assert.Equal(t, status, retryable.Status)
		assert.Equal(t, "submit", retryable.Operation)
	}
}

// TestSubmit_RejeicaoNegocio: 4xx com corpo JSON é veredito da SEFIN.
// Volta como resultado para o chamador persistir, não como erro Go.
func TestSubmit_RejeicaoNegocio(t *testing.T) {
	for _, status := range []int{400, 422} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"codigoStatus":225,"mensagem":"Rejeicao","erros":[{"codigo":"E0225","descricao":"Aliquota invalida"}]}`))
		}))

		cfg := testAuthorityConfig(t, srv.URL, "")
		resp, err := newClient().Submit(context.Background(), []byte("<DPS/>"), cfg)
		srv.Close()

		require.NoError(t, err, "status %d", status)
		require.NotNil(t, resp)

		assert.False(t, resp.Success())
		assert.Equal(t, 225, resp.CodigoStatus)
		assert.Contains(t, resp.MensagemCompleta(), "[E0225] Aliquota invalida")
	}
}

// TestSubmit_RejeicaoSemJSON: corpo 4xx não decodificável vira resposta
// sintética com o status HTTP e o corpo bruto preservado para auditoria.
func TestSubmit_RejeicaoSemJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("<html>Bad Request</html>"))
	}))
	defer srv.Close()

	cfg := testAuthorityConfig(t, srv.URL, "")
	resp, err := newClient().Submit(context.Background(), []byte("<DPS/>"), cfg)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.False(t, resp.Success())
	assert.Equal(t, http.StatusBadRequest, resp.CodigoStatus)
	assert.Contains(t, resp.Mensagem, "Bad Request")
}

// TestSubmit_CorpoIlegivel: 2xx com corpo que não é JSON é ambíguo.
// O chamador não pode assumir nem sucesso nem rejeição.
func TestSubmit_CorpoIlegivel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("isso nao e json"))
	}))
	defer srv.Close()

	cfg := testAuthorityConfig(t, srv.URL, "")
	resp, err := newClient().Submit(context.Background(), []byte("<DPS/>"), cfg)
	require.Error(t, err)
	assert.Nil(t, resp)

	var ambiguous *pkgnfse.AmbiguousResponseError
	require.ErrorAs(t, err, &ambiguous)
}

// TestSubmit_FalhaDeConexao: servidor inacessível é transitório com status 0.
func TestSubmit_FalhaDeConexao(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // endereço morto

	cfg := testAuthorityConfig(t, srv.URL, "")
	_, err := newClient().Submit(context.Background(), []byte("<DPS/>"), cfg)
	require.Error(t, err)

	var retryable *pkgnfse.RetryableTransportError
	require.ErrorAs(t, err, &retryable)
	assert.Zero(t, retryable.Status)
}

// ── Query ────────────────────────────────────────────────────────────────────

func TestQuery_Classificacao(t *testing.T) {
	t.Run("2xx devolve a resposta", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/nfse/"+testChave, r.URL.Path)
			_, _ = w.Write([]byte(`{"codigoStatus":100,"chaveAcesso":"` + testChave + `"}`))
		}))
		defer srv.Close()

		cfg := testAuthorityConfig(t, srv.URL, "")
		resp, err := newClient().Query(context.Background(), testChave, cfg)
		require.NoError(t, err)
		assert.True(t, resp.Success())
	})

	t.Run("404 e terminal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		cfg := testAuthorityConfig(t, srv.URL, "")
		_, err := newClient().Query(context.Background(), testChave, cfg)

		var terminal *pkgnfse.TerminalRejectionError
		require.ErrorAs(t, err, &terminal)
		assert.Equal(t, http.StatusNotFound, terminal.Status)
	})

	t.Run("500 e transitorio", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		cfg := testAuthorityConfig(t, srv.URL, "")
		_, err := newClient().Query(context.Background(), testChave, cfg)

		var retryable *pkgnfse.RetryableTransportError
		require.ErrorAs(t, err, &retryable)
	})

	t.Run("chave malformada nem chega na rede", func(t *testing.T) {
		cfg := testAuthorityConfig(t, "http://127.0.0.1:1", "")
		_, err := newClient().Query(context.Background(), "123", cfg)

		var malformed *pkgnfse.MalformedInputError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "chaveAcesso", malformed.Field)
	})
}

// ── Cancel ───────────────────────────────────────────────────────────────────

// TestCancel_MarcadoresDeSucesso: a API sinaliza sucesso por campos distintos
// conforme a versão; qualquer marcador do conjunto fechado basta.
func TestCancel_MarcadoresDeSucesso(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"eventoXmlGZipB64 presente", `{"eventoXmlGZipB64":"H4sIAAAA"}`},
		{"nSeqEvento positivo", `{"nSeqEvento":1}`},
		{"codigoStatus 100", `{"codigoStatus":100}`},
		{"codigoStatus 0 explicito", `{"codigoStatus":0,"mensagem":"ok"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var envelope struct {
				PedidoRegistroEventoXMLGZipB64 string `json:"pedidoRegistroEventoXmlGZipB64"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/nfse/"+testChave+"/eventos", r.URL.Path)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			cfg := testAuthorityConfig(t, srv.URL, "")
			resp, err := newClient().Cancel(context.Background(), testChave, pkgnfse.MotivoErroEmissao, "Nota emitida com erro", cfg)
			require.NoError(t, err)
			require.NotNil(t, resp)

			// O evento transmitido deve estar assinado.
			eventXML, err := infranfse.DecodeGZipB64(envelope.PedidoRegistroEventoXMLGZipB64)
			require.NoError(t, err)
			assert.Contains(t, string(eventXML), "<e101101>")
			assert.Contains(t, string(eventXML), "SignatureValue")
		})
	}
}

// TestCancel_DoisXXSemMarcador: 2xx sem nenhum marcador de sucesso é ambíguo.
// Tratar como sucesso aqui deixaria a nota cancelada só do nosso lado.
func TestCancel_DoisXXSemMarcador(t *testing.T) {
	for _, body := range []string{`{}`, `{"mensagem":"recebido"}`, `{"codigoStatus":225}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		cfg := testAuthorityConfig(t, srv.URL, "")
		resp, err := newClient().Cancel(context.Background(), testChave, pkgnfse.MotivoErroEmissao, "Nota emitida com erro", cfg)
		srv.Close()

		require.Error(t, err, "corpo %s", body)
		assert.Nil(t, resp)

		var ambiguous *pkgnfse.AmbiguousResponseError
		require.ErrorAs(t, err, &ambiguous, "corpo %s", body)
	}
}

func TestCancel_Classificacao(t *testing.T) {
	t.Run("5xx e transitorio", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		cfg := testAuthorityConfig(t, srv.URL, "")
		_, err := newClient().Cancel(context.Background(), testChave, pkgnfse.MotivoErroEmissao, "Nota emitida com erro", cfg)

		var retryable *pkgnfse.RetryableTransportError
		require.ErrorAs(t, err, &retryable)
		assert.Equal(t, "cancel", retryable.Operation)
	})

	t.Run("4xx e rejeicao de negocio", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"codigoStatus":310,"erros":[{"codigo":"E0310","descricao":"Evento fora de prazo"}]}`))
		}))
		defer srv.Close()

		cfg := testAuthorityConfig(t, srv.URL, "")
		resp, err := newClient().Cancel(context.Background(), testChave, pkgnfse.MotivoErroEmissao, "Nota emitida com erro", cfg)
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.False(t, resp.Success())
		assert.Equal(t, 310, resp.CodigoStatus)
	})

	t.Run("motivo invalido falha antes da rede", func(t *testing.T) {
		cfg := testAuthorityConfig(t, "http://127.0.0.1:1", "")
		_, err := newClient().Cancel(context.Background(), testChave, "5", "Nota emitida com erro", cfg)

		var malformed *pkgnfse.MalformedInputError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "cMotivo", malformed.Field)
	})
}

// ── DANFSE ───────────────────────────────────────────────────────────────────

func TestFetchDANFSE(t *testing.T) {
	t.Run("2xx devolve o PDF", func(t *testing.T) {
		pdf := append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte{0x20}, 4096)...)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/danfse/"+testChave, r.URL.Path)
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(pdf)
		}))
		defer srv.Close()

		cfg := testAuthorityConfig(t, "", srv.URL)
		got, err := newClient().FetchDANFSE(context.Background(), testChave, cfg)
		require.NoError(t, err)
		assert.Equal(t, pdf, got)
	})

	t.Run("nao-2xx significa ainda nao disponivel", func(t *testing.T) {
		for _, status := range []int{404, 500, 503} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
			}))

			cfg := testAuthorityConfig(t, "", srv.URL)
			got, err := newClient().FetchDANFSE(context.Background(), testChave, cfg)
			srv.Close()

			assert.NoError(t, err, "status %d", status)
			assert.Nil(t, got, "status %d", status)
		}
	})

	t.Run("falha de rede e erro", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		cfg := testAuthorityConfig(t, "", srv.URL)
		_, err := newClient().FetchDANFSE(context.Background(), testChave, cfg)
		require.Error(t, err)
	})
}

// TestEmissaoCompleta percorre o pipeline inteiro: construir o DPS, assinar
// e submeter. O servidor confere que o XML recebido é o DPS assinado.
func TestEmissaoCompleta(t *testing.T) {
	cfg := testAuthorityConfig(t, "", "")

	dps, err := infranfse.NewDPSBuilderService().Build(buildTestContext())
	require.NoError(t, err)

	signed, err := signer.NewDigitalSignatureService().Sign(dps, cfg.Certificate)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			DpsXMLGZipB64 string `json:"dpsXmlGZipB64"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		xml, err := infranfse.DecodeGZipB64(env.DpsXMLGZipB64)
		require.NoError(t, err)

		assert.Contains(t, string(xml), "<infDPS")
		assert.Contains(t, string(xml), "SignatureValue")

		_, _ = w.Write([]byte(`{"codigoStatus":0,"chaveAcesso":"` + testChave + `"}`))
	}))
	defer srv.Close()

	cfg.URLSefin = srv.URL
	resp, err := newClient().Submit(context.Background(), signed, cfg)
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, testChave, resp.ChaveAcesso)
}

// TestSefinBaseURL_AmbienteDesconhecido: sem URL explícita e com tpAmb fora do
// domínio, a chamada falha antes de tocar a rede.
func TestSefinBaseURL_AmbienteDesconhecido(t *testing.T) {
	cfg := infranfse.AuthorityConfig{
		CNPJEmitente: testCNPJPrestador,
		Ambiente:     "3",
		Certificate:  testCertificate(t),
	}
	_, err := newClient().Submit(context.Background(), []byte("<DPS/>"), cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ambiente"))
}
