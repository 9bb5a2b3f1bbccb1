package nfse

import (
	"bytes"
	"encoding/xml"
	"fmt"

	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// Versão do pedido de registro de evento no leiaute nacional.
const EventVersion = "1.00"

// EventBuilderService constrói o XML do pedido de registro do evento de
// cancelamento (e101101). Mesmo pipeline build/sign do DPS, especializado
// para o payload de evento.
type EventBuilderService struct{}

// NewEventBuilderService cria o serviço.
func NewEventBuilderService() *EventBuilderService {
	return &EventBuilderService{}
}

// BuildCancelEvent gera o []byte do pedRegEvento para a chave de acesso dada.
// O Id do infPedReg segue o leiaute: "PRE" + chave + código do evento +
// sequencial com 3 dígitos.
func (s *EventBuilderService) BuildCancelEvent(ctx *EventBuildContext) ([]byte, error) {
	if err := s.validate(ctx); err != nil {
		return nil, err
	}

	nSeq := ctx.NPedRegEvento
	if nSeq == 0 {
		nSeq = 1
	}
	infID := fmt.Sprintf("PRE%s%s%03d", ctx.ChaveAcesso, pkgnfse.EventoCancelamento, nSeq)

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "pedRegEvento"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: NsNFSe},
			{Name: xml.Name{Local: "versao"}, Value: EventVersion},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	infPedReg := xml.StartElement{
		Name: xml.Name{Local: "infPedReg"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "Id"}, Value: infID}},
	}
	_ = enc.EncodeToken(infPedReg)

	writeEl(enc, "tpAmb", ctx.Ambiente)
	writeEl(enc, "verAplic", ctx.VerAplic)
	writeEl(enc, "dhEvento", ctx.DhEvento.UTC().Format("2006-01-02T15:04:05Z"))
	writeEl(enc, "CNPJAutor", pkgnfse.NormalizeCNPJ(ctx.CNPJAutor))
	writeEl(enc, "chNFSe", ctx.ChaveAcesso)
	writeEl(enc, "nPedRegEvento", fmt.Sprintf("%d", nSeq))

	// e101101: cancelamento com código de motivo e descrição.
	open(enc, "e101101")
	writeEl(enc, "xDesc", sanitizeText(ctx.Descricao))
	writeEl(enc, "cMotivo", ctx.CodigoMotivo)
	closeEl(enc, "e101101")

	_ = enc.EncodeToken(infPedReg.End())
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *EventBuilderService) validate(ctx *EventBuildContext) error {
	if ctx == nil {
		return &pkgnfse.MalformedInputError{Field: "evento"}
	}
	if err := pkgnfse.ValidateChaveAcesso(ctx.ChaveAcesso); err != nil {
		return &pkgnfse.MalformedInputError{Field: "chNFSe"}
	}
	if err := pkgnfse.ValidateCNPJ(ctx.CNPJAutor); err != nil {
		return &pkgnfse.MalformedInputError{Field: "CNPJAutor"}
	}
	if !pkgnfse.ValidAmbientes[ctx.Ambiente] {
		return &pkgnfse.MalformedInputError{Field: "tpAmb"}
	}
	if ctx.VerAplic == "" {
		return &pkgnfse.MalformedInputError{Field: "verAplic"}
	}
	if !pkgnfse.ValidCancelReasonCodes[ctx.CodigoMotivo] {
		return &pkgnfse.MalformedInputError{Field: "cMotivo"}
	}
	if ctx.Descricao == "" {
		return &pkgnfse.MalformedInputError{Field: "xDesc"}
	}
	if ctx.DhEvento.IsZero() {
		return &pkgnfse.MalformedInputError{Field: "dhEvento"}
	}
	return nil
}
