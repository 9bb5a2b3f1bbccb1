package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zapfy/fiscal-api/internal/infrastructure/nfse/signer"
)

// Ferramenta de diagnóstico do certificado A1: confere se o arquivo abre,
// se a senha está correta e se o certificado serve para assinar hoje.
//
//	go run ./cmd/certinfo -cert certificado.p12 -password 123456
func main() {
	certPath := flag.String("cert", "", "caminho do certificado (.p12, .pfx ou .pem)")
	keyPath := flag.String("key", "", "caminho da chave privada .pem (quando -cert é só o certificado)")
	password := flag.String("password", "", "senha do .p12/.pfx")
	flag.Parse()

	if *certPath == "" {
		fmt.Fprintln(os.Stderr, "uso: certinfo -cert <arquivo> [-key <arquivo>] [-password <senha>]")
		os.Exit(2)
	}

	tlsCert, err := load(*certPath, *keyPath, *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "falha ao carregar o certificado: %v\n", err)
		os.Exit(1)
	}

	x509Cert, _, err := signer.ValidateCertificate(tlsCert, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "certificado carregado mas inutilizável: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("certificado OK para assinatura")
	fmt.Printf("  subject:    %s\n", x509Cert.Subject)
	fmt.Printf("  issuer:     %s\n", x509Cert.Issuer)
	fmt.Printf("  not before: %s\n", x509Cert.NotBefore.Format(time.RFC3339))
	fmt.Printf("  not after:  %s\n", x509Cert.NotAfter.Format(time.RFC3339))
	if remaining := time.Until(x509Cert.NotAfter); remaining < 30*24*time.Hour {
		fmt.Printf("  atenção: expira em %d dias\n", int(remaining.Hours()/24))
	}
}

func load(certPath, keyPath, password string) (tls.Certificate, error) {
	lower := strings.ToLower(certPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return signer.LoadFromP12(certPath, password)
	}
	return signer.LoadFromPEM(certPath, keyPath)
}
