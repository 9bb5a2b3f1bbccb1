// Package nfse: composição do identificador do DPS e validação da chave de
// acesso da NFS-e, conforme o leiaute do padrão nacional.

package nfse

import (
	"fmt"
	"strings"
)

// Comprimentos fixos do leiaute nacional.
const (
	dpsIDPrefix    = "DPS"
	dpsSerieLen    = 5
	dpsNumeroLen   = 15
	ChaveAcessoLen = 50
)

// BuildDPSID compõe o atributo Id do elemento infDPS na ordem estrita do
// leiaute: "DPS" + CNPJ do emitente (14) + série (5, zeros à esquerda) +
// número (15, zeros à esquerda).
func BuildDPSID(cnpjEmitente, serie, numero string) (string, error) {
	cnpj := NormalizeCNPJ(cnpjEmitente)
	if len(cnpj) != 14 {
		return "", fmt.Errorf("nfse: CNPJ do emitente deve ter 14 dígitos, encontrados %d", len(cnpj))
	}
	s := strings.TrimSpace(serie)
	if s == "" || len(s) > dpsSerieLen || !onlyDigits(s) {
		return "", fmt.Errorf("nfse: série do DPS inválida: %q", serie)
	}
	n := strings.TrimSpace(numero)
	if n == "" || len(n) > dpsNumeroLen || !onlyDigits(n) {
		return "", fmt.Errorf("nfse: número do DPS inválido: %q", numero)
	}
	return dpsIDPrefix + cnpj + leftPadZeros(s, dpsSerieLen) + leftPadZeros(n, dpsNumeroLen), nil
}

// ValidateChaveAcesso valida o formato da chave de acesso emitida pela SEFIN:
// 50 dígitos numéricos. A chave é imutável depois de emitida; é a join key de
// consulta, cancelamento e DANFSE.
func ValidateChaveAcesso(chave string) error {
	c := strings.TrimSpace(chave)
	if len(c) != ChaveAcessoLen {
		return fmt.Errorf("nfse: chave de acesso deve ter %d dígitos, encontrados %d", ChaveAcessoLen, len(c))
	}
	if !onlyDigits(c) {
		return fmt.Errorf("nfse: chave de acesso deve conter apenas dígitos")
	}
	return nil
}

func leftPadZeros(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func onlyDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
