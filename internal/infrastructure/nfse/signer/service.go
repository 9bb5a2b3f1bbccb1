// Serviço de assinatura digital envelopada (XMLDSig) para NFS-e nacional.
// O documento é opaco: a Reference aponta para o primeiro filho do elemento
// raiz que carrega atributo Id (infDPS no DPS, infPedReg no evento), e o nó
// ds:Signature é acrescentado como último filho da raiz.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// DigitalSignatureService implementa pkg/nfse.Signer.
type DigitalSignatureService struct{}

// NewDigitalSignatureService cria o serviço.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign assina o XML e injeta ds:Signature como último filho da raiz.
// Sem SigningTime: para um mesmo par (documento, certificado) a saída é
// determinística, o que permite verificação por round-trip nos testes.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, &pkgnfse.SigningError{Reason: "XML vazio"}
	}
	leaf, priv, err := ValidateCertificate(cert, time.Now())
	if err != nil {
		return nil, err
	}

	refID, err := referenceID(xmlBytes)
	if err != nil {
		return nil, err
	}

	// 1) Digest do documento canonicalizado (sem assinatura presente ainda,
	// então a transformada enveloped é um no-op neste ponto).
	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		return nil, &pkgnfse.SigningError{Reason: "canonicalizar documento", Err: err}
	}
	docDigest := sha256.Sum256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo (C14N, Reference #Id, digest SHA-256), assinado com RSA-SHA256
	// sobre sua forma canônica.
	signedInfoXML := BuildSignedInfo(docDigestB64, refID)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		return nil, &pkgnfse.SigningError{Reason: "canonicalizar SignedInfo", Err: err}
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, &pkgnfse.SigningError{Reason: "assinar SignedInfo", Err: err}
	}

	// 3) Nó ds:Signature completo (KeyInfo com o certificado em Base64).
	signatureXML := buildSignatureXML(
		signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(leaf.Raw),
	)

	return injectSignature(xmlBytes, signatureXML)
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// referenceID localiza o atributo Id do elemento a referenciar: a própria raiz
// ou seu primeiro filho com Id. Documento sem Id não é assinável neste perfil.
func referenceID(xmlBytes []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return "", &pkgnfse.SigningError{Reason: "parsear XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return "", &pkgnfse.SigningError{Reason: "documento sem raiz"}
	}
	if id := root.SelectAttrValue("Id", ""); id != "" {
		return id, nil
	}
	for _, child := range root.ChildElements() {
		if id := child.SelectAttrValue("Id", ""); id != "" {
			return id, nil
		}
	}
	return "", &pkgnfse.SigningError{Reason: "nenhum atributo Id encontrado para a Reference"}
}

// BuildSignedInfo gera o XML do SignedInfo no formato exato do perfil.
// Exportado porque o formato é parte do protocolo: os testes reconstroem a
// forma canônica para verificar a assinatura.
func BuildSignedInfo(docDigestB64, refID string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="#` + refID + `">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildSignatureXML(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func injectSignature(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, &pkgnfse.SigningError{Reason: "parsear XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &pkgnfse.SigningError{Reason: "documento sem raiz"}
	}

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, &pkgnfse.SigningError{Reason: "parsear nó Signature", Err: err}
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		root.AddChild(sigRoot)
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, &pkgnfse.SigningError{Reason: "serializar XML assinado", Err: err}
	}
	return out.Bytes(), nil
}

var _ pkgnfse.Signer = (*DigitalSignatureService)(nil)
