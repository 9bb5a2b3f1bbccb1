package nfse

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// sanitizeText normaliza texto livre do DPS (xNome, xDescServ): decomposição
// NFKD com remoção de marcas combinantes e colapso de espaços. Validadores
// municipais legados rejeitam acentuação fora do Latin-1 básico.
func sanitizeText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}
