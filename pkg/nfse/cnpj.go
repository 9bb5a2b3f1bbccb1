package nfse

import (
	"fmt"
	"unicode"
)

// Pesos do módulo 11 para os dígitos verificadores do CNPJ (Receita Federal).
// O primeiro DV usa os pesos sobre os 12 primeiros dígitos; o segundo sobre 13.
var (
	cnpjWeightsFirst  = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// NormalizeCNPJ remove pontuação e devolve apenas os dígitos do CNPJ.
func NormalizeCNPJ(cnpj string) string {
	return string(extractDigits(cnpj))
}

// ValidateCNPJ valida o CNPJ (com ou sem pontuação) pelo algoritmo módulo 11.
// Aceita "12.345.678/0001-95" ou "12345678000195".
func ValidateCNPJ(cnpj string) error {
	digits := extractDigits(cnpj)
	if len(digits) != 14 {
		return fmt.Errorf("nfse: CNPJ deve ter 14 dígitos, encontrados %d", len(digits))
	}
	if allEqual(digits) {
		return fmt.Errorf("nfse: CNPJ com todos os dígitos iguais é inválido")
	}
	dv1 := cnpjCheckDigit(digits[:12], cnpjWeightsFirst[:])
	if digits[12] != dv1 {
		return fmt.Errorf("nfse: primeiro dígito verificador do CNPJ inválido: esperado %c, recebido %c", dv1, digits[12])
	}
	dv2 := cnpjCheckDigit(digits[:13], cnpjWeightsSecond[:])
	if digits[13] != dv2 {
		return fmt.Errorf("nfse: segundo dígito verificador do CNPJ inválido: esperado %c, recebido %c", dv2, digits[13])
	}
	return nil
}

// ComputeCNPJCheckDigits calcula os dois dígitos verificadores para os 12
// primeiros dígitos do CNPJ. Útil para completar cadastros antes da emissão.
func ComputeCNPJCheckDigits(base string) (string, error) {
	digits := extractDigits(base)
	if len(digits) < 12 {
		return "", fmt.Errorf("nfse: são necessários 12 dígitos para calcular os DVs, encontrados %d", len(digits))
	}
	d12 := digits[:12]
	dv1 := cnpjCheckDigit(d12, cnpjWeightsFirst[:])
	dv2 := cnpjCheckDigit(append(append([]byte{}, d12...), dv1), cnpjWeightsSecond[:])
	return string([]byte{dv1, dv2}), nil
}

func cnpjCheckDigit(digits []byte, weights []int) byte {
	var sum int
	for i, d := range digits {
		sum += int(d-'0') * weights[i]
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + (11 - r))
}

func allEqual(digits []byte) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
