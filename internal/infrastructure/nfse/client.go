package nfse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// ── Constantes de ambiente ────────────────────────────────────────────────────

const (
	// AppEnvDev identifica o modo local: assina mas não transmite à SEFIN.
	AppEnvDev = "dev"
	// AppEnvHomolog transmite ao ambiente de homologação (produção restrita).
	AppEnvHomolog = "homolog"
	// AppEnvProd transmite ao ambiente de produção.
	AppEnvProd = "prod"

	sefinURLHomolog = "https://sefin.producaorestrita.nfse.gov.br/SefinNacional"
	sefinURLProd    = "https://sefin.nfse.gov.br/sefinnacional"

	danfseURLHomolog = "https://adn.producaorestrita.nfse.gov.br/contribuinte"
	danfseURLProd    = "https://adn.nfse.gov.br/contribuinte"

	// DefaultTimeout por chamada quando a configuração não define um.
	// Um handshake mTLS pendurado nunca pode bloquear o workflow chamador.
	DefaultTimeout = 20 * time.Second

	maxResponseBody = 4 << 20  // 4 MB para respostas JSON
	maxPDFBody      = 20 << 20 // 20 MB para a DANFSE
	minPlausiblePDF = 1024     // abaixo disso o corpo dificilmente é um PDF
)

// ── Tipos de resposta ─────────────────────────────────────────────────────────

// AuthorityResponse veredito da SEFIN sobre emissão, consulta ou cancelamento.
// codigoStatus 0 ou 100 significa sucesso; demais códigos são rejeição de
// negócio terminal (nunca retry cego).
type AuthorityResponse struct {
	CodigoStatus          int              `json:"codigoStatus"`
	Mensagem              string           `json:"mensagem,omitempty"`
	ChaveAcesso           string           `json:"chaveAcesso,omitempty"`
	IDDps                 string           `json:"idDps,omitempty"`
	DataHoraProcessamento string           `json:"dataHoraProcessamento,omitempty"`
	NSeqEvento            int              `json:"nSeqEvento,omitempty"`
	EventoXMLGZipB64      string           `json:"eventoXmlGZipB64,omitempty"`
	NFSeXMLGZipB64        string           `json:"nfseXmlGZipB64,omitempty"`
	Erros                 []AuthorityError `json:"erros,omitempty"`
}

// AuthorityError item da lista de erros de rejeição da SEFIN.
type AuthorityError struct {
	Codigo      string `json:"codigo"`
	Descricao   string `json:"descricao"`
	Complemento string `json:"complemento,omitempty"`
}

// Success informa se a resposta representa operação aceita.
func (r *AuthorityResponse) Success() bool {
	return pkgnfse.SuccessStatus(r.CodigoStatus) && len(r.Erros) == 0
}

// MensagemCompleta concatena mensagem e lista de erros para persistência.
func (r *AuthorityResponse) MensagemCompleta() string {
	parts := make([]string, 0, 1+len(r.Erros))
	if r.Mensagem != "" {
		parts = append(parts, r.Mensagem)
	}
	for _, e := range r.Erros {
		parts = append(parts, fmt.Sprintf("[%s] %s", e.Codigo, e.Descricao))
	}
	return strings.Join(parts, "; ")
}

// Envelopes JSON do protocolo: um único campo com o XML gzip+Base64.
type submitEnvelope struct {
	DpsXMLGZipB64 string `json:"dpsXmlGZipB64"`
}

type eventoEnvelope struct {
	PedidoRegistroEventoXMLGZipB64 string `json:"pedidoRegistroEventoXmlGZipB64"`
}

// Marcadores de sucesso do cancelamento. A API não é consistente sobre qual
// campo sinaliza sucesso; a checagem é explícita sobre este conjunto fechado,
// com ponteiros para distinguir campo ausente de valor zero.
type eventoMarkers struct {
	EventoXMLGZipB64 *string `json:"eventoXmlGZipB64"`
	NSeqEvento       *int    `json:"nSeqEvento"`
	CodigoStatus     *int    `json:"codigoStatus"`
}

func (m *eventoMarkers) success() bool {
	if m.EventoXMLGZipB64 != nil && *m.EventoXMLGZipB64 != "" {
		return true
	}
	if m.NSeqEvento != nil && *m.NSeqEvento > 0 {
		return true
	}
	if m.CodigoStatus != nil && pkgnfse.SuccessStatus(*m.CodigoStatus) {
		return true
	}
	return false
}

// ── Porta ─────────────────────────────────────────────────────────────────────

// AuthorityAPI porta de saída para o web service da SEFIN Nacional.
// A implementação concreta usa HTTPS com mTLS; para testes injeta-se um mock.
// O cliente só classifica falhas (transitória vs terminal vs ambígua);
// política de retry é do workflow chamador.
type AuthorityAPI interface {
	Submit(ctx context.Context, signedXML []byte, cfg AuthorityConfig) (*AuthorityResponse, error)
	Query(ctx context.Context, chaveAcesso string, cfg AuthorityConfig) (*AuthorityResponse, error)
	Cancel(ctx context.Context, chaveAcesso, codigoMotivo, descricao string, cfg AuthorityConfig) (*AuthorityResponse, error)
	FetchDANFSE(ctx context.Context, chaveAcesso string, cfg AuthorityConfig) ([]byte, error)
}

// ── Implementação ─────────────────────────────────────────────────────────────

// SefinClient implementa AuthorityAPI contra a SEFIN Nacional. Sem estado
// entre chamadas: o http.Client é montado por operação a partir do
// certificado do tenant.
type SefinClient struct {
	eventBuilder *EventBuilderService
	signer       pkgnfse.Signer
	// VerAplic vai no pedido de registro de evento.
	verAplic string
}

// NewSefinClient constrói o cliente. O signer é compartilhado com a emissão:
// o evento de cancelamento passa pelo mesmo pipeline build/sign.
func NewSefinClient(signer pkgnfse.Signer, verAplic string) *SefinClient {
	return &SefinClient{
		eventBuilder: NewEventBuilderService(),
		signer:       signer,
		verAplic:     verAplic,
	}
}

func (c *SefinClient) httpClient(cfg AuthorityConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(cfg.Certificate.Certificate) > 0 {
		tlsCfg.Certificates = []tls.Certificate{cfg.Certificate}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}
}

func sefinBaseURL(cfg AuthorityConfig) (string, error) {
	if cfg.URLSefin != "" {
		return strings.TrimRight(cfg.URLSefin, "/"), nil
	}
	switch cfg.Ambiente {
	case pkgnfse.AmbienteProducao:
		return sefinURLProd, nil
	case pkgnfse.AmbienteHomologacao:
		return sefinURLHomolog, nil
	default:
		return "", fmt.Errorf("nfse: ambiente desconhecido %q (usar '1' ou '2')", cfg.Ambiente)
	}
}

func danfseBaseURL(cfg AuthorityConfig) (string, error) {
	if cfg.URLDanfse != "" {
		return strings.TrimRight(cfg.URLDanfse, "/"), nil
	}
	switch cfg.Ambiente {
	case pkgnfse.AmbienteProducao:
		return danfseURLProd, nil
	case pkgnfse.AmbienteHomologacao:
		return danfseURLHomolog, nil
	default:
		return "", fmt.Errorf("nfse: ambiente desconhecido %q (usar '1' ou '2')", cfg.Ambiente)
	}
}

// Submit comprime e codifica o DPS assinado e envia à SEFIN.
// 2xx → AuthorityResponse decodificada. 4xx → AuthorityResponse com a
// rejeição da SEFIN (resultado de negócio terminal, NÃO é erro Go).
// 5xx → RetryableTransportError para retry com backoff pelo chamador.
func (c *SefinClient) Submit(ctx context.Context, signedXML []byte, cfg AuthorityConfig) (*AuthorityResponse, error) {
	base, err := sefinBaseURL(cfg)
	if err != nil {
		return nil, err
	}
	payload, err := CompressToGZipB64(signedXML)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(submitEnvelope{DpsXMLGZipB64: payload})
	if err != nil {
		return nil, fmt.Errorf("nfse: serializar envelope: %w", err)
	}

	status, raw, err := c.do(ctx, cfg, http.MethodPost, base+"/nfse", body)
	if err != nil {
		return nil, err
	}
	return c.classifySubmission(status, raw, "submit")
}

// Query consulta a NFS-e pela chave de acesso.
// Aqui não existe estado terminal de rejeição: qualquer não-2xx é erro
// (5xx transitório, 4xx chave desconhecida/terminal).
func (c *SefinClient) Query(ctx context.Context, chaveAcesso string, cfg AuthorityConfig) (*AuthorityResponse, error) {
	if err := pkgnfse.ValidateChaveAcesso(chaveAcesso); err != nil {
		return nil, &pkgnfse.MalformedInputError{Field: "chaveAcesso"}
	}
	base, err := sefinBaseURL(cfg)
	if err != nil {
		return nil, err
	}

	status, raw, err := c.do(ctx, cfg, http.MethodGet, base+"/nfse/"+chaveAcesso, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status >= 500:
		return nil, &pkgnfse.RetryableTransportError{Operation: "query", Status: status, Body: raw}
	case status >= 400:
		return nil, &pkgnfse.TerminalRejectionError{Operation: "query", Status: status, Body: raw}
	}
	var resp AuthorityResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &pkgnfse.AmbiguousResponseError{Operation: "query", Body: raw}
	}
	return &resp, nil
}

// Cancel constrói e assina o evento de cancelamento e envia ao endpoint de
// eventos da chave. Sucesso é reconhecido por qualquer um dos marcadores
// documentados; 2xx sem nenhum deles é ambíguo e NUNCA é tratado como
// sucesso silencioso.
func (c *SefinClient) Cancel(ctx context.Context, chaveAcesso, codigoMotivo, descricao string, cfg AuthorityConfig) (*AuthorityResponse, error) {
	eventXML, err := c.eventBuilder.BuildCancelEvent(&EventBuildContext{
		ChaveAcesso:  chaveAcesso,
		CNPJAutor:    cfg.CNPJEmitente,
		Ambiente:     cfg.Ambiente,
		VerAplic:     c.verAplic,
		CodigoMotivo: codigoMotivo,
		Descricao:    descricao,
		DhEvento:     time.Now(),
	})
	if err != nil {
		return nil, err
	}
	signedEvent, err := c.signer.Sign(eventXML, cfg.Certificate)
	if err != nil {
		return nil, err
	}
	payload, err := CompressToGZipB64(signedEvent)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(eventoEnvelope{PedidoRegistroEventoXMLGZipB64: payload})
	if err != nil {
		return nil, fmt.Errorf("nfse: serializar envelope de evento: %w", err)
	}

	base, err := sefinBaseURL(cfg)
	if err != nil {
		return nil, err
	}
	status, raw, err := c.do(ctx, cfg, http.MethodPost, base+"/nfse/"+chaveAcesso+"/eventos", body)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 500:
		return nil, &pkgnfse.RetryableTransportError{Operation: "cancel", Status: status, Body: raw}
	case status >= 400:
		return c.decodeRejection(raw, status), nil
	}

	var markers eventoMarkers
	if err := json.Unmarshal(raw, &markers); err != nil || !markers.success() {
		return nil, &pkgnfse.AmbiguousResponseError{Operation: "cancel", Body: raw}
	}
	var resp AuthorityResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &pkgnfse.AmbiguousResponseError{Operation: "cancel", Body: raw}
	}
	return &resp, nil
}

// FetchDANFSE busca o PDF da NFS-e. Não-2xx devolve (nil, nil): logo após a
// emissão a DANFSE frequentemente ainda não existe e o chamador tenta de novo
// na cadência dele. Só falha de rede é erro.
func (c *SefinClient) FetchDANFSE(ctx context.Context, chaveAcesso string, cfg AuthorityConfig) ([]byte, error) {
	if err := pkgnfse.ValidateChaveAcesso(chaveAcesso); err != nil {
		return nil, &pkgnfse.MalformedInputError{Field: "chaveAcesso"}
	}
	base, err := danfseBaseURL(cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/danfse/"+chaveAcesso, nil)
	if err != nil {
		return nil, fmt.Errorf("nfse: criar request: %w", err)
	}
	resp, err := c.httpClient(cfg).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("nfse: timeout ou cancelamento: %w", ctx.Err())
		}
		return nil, fmt.Errorf("nfse: chamada HTTP falhou: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug().Int("status", resp.StatusCode).Str("chave", chaveAcesso).
			Msg("DANFSE ainda não disponível")
		return nil, nil
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBody))
	if err != nil {
		return nil, fmt.Errorf("nfse: ler DANFSE: %w", err)
	}
	if len(pdf) < minPlausiblePDF {
		log.Warn().Int("bytes", len(pdf)).Str("chave", chaveAcesso).
			Msg("DANFSE com tamanho implausível para um PDF")
	}
	return pdf, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// do executa a chamada e devolve status + corpo. Erros aqui são sempre de
// transporte (conexão, timeout) e portanto transitórios.
func (c *SefinClient) do(ctx context.Context, cfg AuthorityConfig, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("nfse: criar request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient(cfg).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, fmt.Errorf("nfse: timeout ou cancelamento: %w", ctx.Err())
		}
		return 0, nil, &pkgnfse.RetryableTransportError{Operation: method + " " + url, Status: 0, Body: []byte(err.Error())}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("nfse: ler resposta: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *SefinClient) classifySubmission(status int, raw []byte, op string) (*AuthorityResponse, error) {
	switch {
	case status >= 500:
		return nil, &pkgnfse.RetryableTransportError{Operation: op, Status: status, Body: raw}
	case status >= 400:
		// Rejeição de negócio: resultado terminal que o chamador persiste e
		// exibe ao tenant, não exceção.
		return c.decodeRejection(raw, status), nil
	}
	var resp AuthorityResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &pkgnfse.AmbiguousResponseError{Operation: op, Body: raw}
	}
	return &resp, nil
}

// decodeRejection extrai o código/mensagem da rejeição; se o corpo não for
// JSON decodificável, sintetiza a resposta a partir do status HTTP mantendo
// o corpo bruto como mensagem (auditoria).
func (c *SefinClient) decodeRejection(raw []byte, status int) *AuthorityResponse {
	var resp AuthorityResponse
	if err := json.Unmarshal(raw, &resp); err == nil && (resp.CodigoStatus != 0 || len(resp.Erros) > 0 || resp.Mensagem != "") {
		return &resp
	}
	return &AuthorityResponse{
		CodigoStatus: status,
		Mensagem:     strings.TrimSpace(string(raw)),
	}
}

var _ AuthorityAPI = (*SefinClient)(nil)
