package nfse

import (
	"bytes"
	"encoding/xml"

	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// Namespace oficial do leiaute da NFS-e nacional e versão do DPS.
const (
	NsNFSe     = "http://www.sped.fazenda.gov.br/nfse"
	DPSVersion = "1.00"
)

// DPSBuilderService constrói o XML do DPS (Declaração de Prestação de
// Serviços) sem assinatura. Determinístico e sem I/O; a validação é apenas
// estrutural — regras de negócio tributárias chegam já resolvidas.
type DPSBuilderService struct{}

// NewDPSBuilderService cria o serviço.
func NewDPSBuilderService() *DPSBuilderService {
	return &DPSBuilderService{}
}

// Build gera o []byte do DPS conforme o leiaute nacional. A ordem dos
// elementos segue o schema publicado; a SEFIN valida o schema antes da
// assinatura, então qualquer desvio de ordem é rejeição garantida.
func (s *DPSBuilderService) Build(ctx *DPSBuildContext) ([]byte, error) {
	if err := s.validate(ctx); err != nil {
		return nil, err
	}
	doc := ctx.Documento
	prest := ctx.Prestador

	dpsID, err := pkgnfse.BuildDPSID(prest.CNPJ, doc.Serie, doc.Numero)
	if err != nil {
		return nil, &pkgnfse.MalformedInputError{Field: "serie/numero: " + err.Error()}
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "DPS"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: NsNFSe},
			{Name: xml.Name{Local: "versao"}, Value: DPSVersion},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	// infDPS com Id — a Reference da assinatura aponta para este atributo.
	infDPS := xml.StartElement{
		Name: xml.Name{Local: "infDPS"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "Id"}, Value: dpsID}},
	}
	_ = enc.EncodeToken(infDPS)

	writeEl(enc, "tpAmb", ctx.Ambiente)
	writeEl(enc, "dhEmi", doc.DhEmissao.UTC().Format("2006-01-02T15:04:05Z"))
	writeEl(enc, "verAplic", ctx.VerAplic)
	writeEl(enc, "serie", doc.Serie)
	writeEl(enc, "nDPS", doc.Numero)
	writeEl(enc, "dCompet", doc.Competencia.Format("2006-01-02"))
	writeEl(enc, "tpEmit", pkgnfse.TpEmitPrestador)
	writeEl(enc, "cLocEmi", prest.CodigoMunicipio)

	s.writePrestador(enc, ctx)
	s.writeTomador(enc, ctx)
	s.writeServico(enc, ctx)
	s.writeValores(enc, ctx)

	_ = enc.EncodeToken(infDPS.End())
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// validate falha só em campo estruturalmente ausente ou malformado.
func (s *DPSBuilderService) validate(ctx *DPSBuildContext) error {
	if ctx == nil || ctx.Documento == nil {
		return &pkgnfse.MalformedInputError{Field: "documento"}
	}
	if ctx.Prestador == nil {
		return &pkgnfse.MalformedInputError{Field: "prestador"}
	}
	if !pkgnfse.ValidAmbientes[ctx.Ambiente] {
		return &pkgnfse.MalformedInputError{Field: "tpAmb"}
	}
	if ctx.VerAplic == "" {
		return &pkgnfse.MalformedInputError{Field: "verAplic"}
	}
	doc := ctx.Documento
	prest := ctx.Prestador
	if err := pkgnfse.ValidateCNPJ(prest.CNPJ); err != nil {
		return &pkgnfse.MalformedInputError{Field: "prestador.cnpj"}
	}
	if len(prest.CodigoMunicipio) != 7 {
		return &pkgnfse.MalformedInputError{Field: "prestador.codigoMunicipio"}
	}
	if doc.Serie == "" {
		return &pkgnfse.MalformedInputError{Field: "serie"}
	}
	if doc.Numero == "" {
		return &pkgnfse.MalformedInputError{Field: "numero"}
	}
	if doc.DhEmissao.IsZero() {
		return &pkgnfse.MalformedInputError{Field: "dhEmi"}
	}
	if doc.Competencia.IsZero() {
		return &pkgnfse.MalformedInputError{Field: "dCompet"}
	}
	tomDoc := pkgnfse.NormalizeCNPJ(doc.TomadorDoc)
	if len(tomDoc) != 11 && len(tomDoc) != 14 {
		return &pkgnfse.MalformedInputError{Field: "tomador.documento"}
	}
	if doc.TomadorNome == "" {
		return &pkgnfse.MalformedInputError{Field: "tomador.nome"}
	}
	if doc.DescricaoServico == "" {
		return &pkgnfse.MalformedInputError{Field: "xDescServ"}
	}
	if len(doc.CTribNac) != 6 {
		return &pkgnfse.MalformedInputError{Field: "cTribNac"}
	}
	if !doc.ValorServico.IsPositive() {
		return &pkgnfse.MalformedInputError{Field: "vServ"}
	}
	return nil
}

func (s *DPSBuilderService) writePrestador(enc *xml.Encoder, ctx *DPSBuildContext) {
	prest := ctx.Prestador
	open(enc, "prest")
	writeEl(enc, "CNPJ", pkgnfse.NormalizeCNPJ(prest.CNPJ))
	if prest.InscricaoMunicipal != "" {
		writeEl(enc, "IM", prest.InscricaoMunicipal)
	}
	open(enc, "regTrib")
	if prest.OptanteSimples {
		writeEl(enc, "opSimpNac", pkgnfse.OpSimpNacOptante)
	} else {
		writeEl(enc, "opSimpNac", pkgnfse.OpSimpNacNaoOptante)
	}
	regEsp := prest.RegimeEspecial
	if regEsp == "" {
		regEsp = pkgnfse.RegEspTribNenhum
	}
	writeEl(enc, "regEspTrib", regEsp)
	closeEl(enc, "regTrib")
	closeEl(enc, "prest")
}

func (s *DPSBuilderService) writeTomador(enc *xml.Encoder, ctx *DPSBuildContext) {
	doc := ctx.Documento
	open(enc, "toma")
	tomDoc := pkgnfse.NormalizeCNPJ(doc.TomadorDoc)
	if len(tomDoc) == 14 {
		writeEl(enc, "CNPJ", tomDoc)
	} else {
		writeEl(enc, "CPF", tomDoc)
	}
	writeEl(enc, "xNome", sanitizeText(doc.TomadorNome))
	closeEl(enc, "toma")
}

func (s *DPSBuilderService) writeServico(enc *xml.Encoder, ctx *DPSBuildContext) {
	doc := ctx.Documento
	open(enc, "serv")
	open(enc, "locPrest")
	writeEl(enc, "cLocPrestacao", ctx.Prestador.CodigoMunicipio)
	closeEl(enc, "locPrest")
	open(enc, "cServ")
	writeEl(enc, "cTribNac", doc.CTribNac)
	writeEl(enc, "xDescServ", sanitizeText(doc.DescricaoServico))
	closeEl(enc, "cServ")
	closeEl(enc, "serv")
}

func (s *DPSBuilderService) writeValores(enc *xml.Encoder, ctx *DPSBuildContext) {
	doc := ctx.Documento
	open(enc, "valores")
	open(enc, "vServPrest")
	writeEl(enc, "vServ", formatDecimal(doc.ValorServico))
	closeEl(enc, "vServPrest")
	open(enc, "trib")
	open(enc, "tribMun")
	writeEl(enc, "tribISSQN", pkgnfse.ISSQNExigivel)
	if doc.AliquotaISS.IsPositive() {
		writeEl(enc, "pAliq", formatAliquota(doc.AliquotaISS))
	}
	if doc.ISSRetido {
		writeEl(enc, "tpRetISSQN", pkgnfse.ISSRetido)
	} else {
		writeEl(enc, "tpRetISSQN", pkgnfse.ISSNaoRetido)
	}
	closeEl(enc, "tribMun")
	open(enc, "totTrib")
	// indTotTrib 0: totais de tributos não informados (resolvidos pelo billing).
	writeEl(enc, "indTotTrib", "0")
	closeEl(enc, "totTrib")
	closeEl(enc, "trib")
	closeEl(enc, "valores")
}

// ── helpers de serialização ───────────────────────────────────────────────────

func writeEl(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func open(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func closeEl(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}
