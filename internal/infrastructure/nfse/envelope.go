package nfse

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// Envelope exigido pela SEFIN: o XML assinado viaja num campo JSON único
// como gzip + Base64 padrão. Algoritmo e codificação são constantes do
// protocolo, reproduzidas bit a bit.

// CompressToGZipB64 comprime o XML com gzip e codifica em Base64.
func CompressToGZipB64(xmlBytes []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(xmlBytes); err != nil {
		return "", fmt.Errorf("gzip: comprimir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip: fechar stream: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeGZipB64 decodifica e descomprime um campo *XmlGZipB64 devolvido pela
// SEFIN (ex.: nfseXmlGZipB64 com a NFS-e autorizada).
func DecodeGZipB64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: decodificar payload: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip: abrir stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, 8<<20)) // máx 8 MB descomprimido
	if err != nil {
		return nil, fmt.Errorf("gzip: descomprimir payload: %w", err)
	}
	return out, nil
}
