package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config agrupa a configuração da aplicação (leitura via Viper de env e
// opcionalmente arquivo).
type Config struct {
	App  AppConfig
	DB   DBConfig
	JWT  JWTConfig
	HTTP HTTPConfig
	NFSE NFSEConfig
}

// NFSEConfig configuração do motor de emissão de NFS-e (padrão nacional).
type NFSEConfig struct {
	AppEnv         string // "dev" = assina mas não transmite; "homolog" | "prod" = transmite
	Ambiente       string // tpAmb: "1" = Produção, "2" = Homologação (produção restrita)
	VerAplic       string // identificador da versão do aplicativo emissor (verAplic no DPS)
	CertPath       string // caminho do certificado .pem ou .p12 (A1)
	CertKeyPath    string // caminho da chave privada .pem (se CertPath for só o certificado)
	CertPassword   string // senha do .p12 (se CertPath for .p12)
	TimeoutSeconds int    // timeout por chamada ao web service (10–30 s)
}

// AppConfig configuração geral da aplicação.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig configuração do PostgreSQL.
// Se DatabaseURL não estiver vazio, é usado como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devolve o DSN a usar: DATABASE_URL se definido, senão o DSN construído.
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devolve o connection string do PostgreSQL com URL encoding para caracteres especiais.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuração do JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuração do servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devolve host:port para o listener.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lê a configuração de variáveis de ambiente (e opcionalmente de arquivo).
// As env vars têm prioridade. Nomes esperados: APP_ENV, DB_HOST, NFSE_CERT_PATH, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcionais: .env e config.env na raiz
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "fiscal-api"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "fiscal_api"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "fiscal-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		NFSE: NFSEConfig{
			AppEnv:         getString(v, "NFSE_APP_ENV", "dev"),
			Ambiente:       getString(v, "NFSE_AMBIENTE", "2"),
			VerAplic:       getString(v, "NFSE_VER_APLIC", "zapfy-fiscal-1.0"),
			CertPath:       getString(v, "NFSE_CERT_PATH", ""),
			CertKeyPath:    getString(v, "NFSE_CERT_KEY_PATH", ""),
			CertPassword:   getString(v, "NFSE_CERT_PASSWORD", ""),
			TimeoutSeconds: getInt(v, "NFSE_TIMEOUT_SECONDS", 20),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
