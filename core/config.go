package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	AppName  string
	Build    string
	Debug    bool
	TestMode bool

	SecretKey        []byte
	FrontendBaseURL  string
	DefaultFromEmail mail.Address

	// DefaultAccountDomain is the email domain assigned to accounts
	// provisioned in bulk (they have no mailbox of their own).
	DefaultAccountDomain string

	EmailConfirmationTimeout time.Duration
	PasswordResetTimeout     time.Duration
	BatchWorkers             int

	SendgridApiKey string
	RollbarToken   string

	Server struct {
		Host                      string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	Database struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	Redis struct {
		Address  string
		Password string
		DB       int
	}
}

func (conf *Config) DatabaseAddress() string {
	return conf.Database.Host + ":" + conf.Database.Port
}

// NewConfig loads the app configuration: viper defaults, overridden by an
// optional config/.env.<env> file, overridden by ENV-prefixed environment
// variables (eg. PROD_SECRETKEY).
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Seepalaya")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultAccountDomain", "seepalaya.org")
	v.SetDefault("emailConfirmationTimeout", 5*time.Minute)
	v.SetDefault("passwordResetTimeout", 3*24*time.Hour)
	v.SetDefault("batchWorkers", 8)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*7*24*time.Hour)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "seepalaya")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("redis.address", "localhost:6379")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd: %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:                      env,
		AppName:                  v.GetString("appName"),
		Build:                    v.GetString("build"),
		Debug:                    v.GetBool("debug"),
		TestMode:                 env == "TEST",
		SecretKey:                []byte(v.GetString("secretKey")),
		FrontendBaseURL:          v.GetString("frontendBaseURL"),
		DefaultFromEmail:         mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		DefaultAccountDomain:     v.GetString("defaultAccountDomain"),
		EmailConfirmationTimeout: v.GetDuration("emailConfirmationTimeout"),
		PasswordResetTimeout:     v.GetDuration("passwordResetTimeout"),
		BatchWorkers:             v.GetInt("batchWorkers"),
		SendgridApiKey:           v.GetString("sendgridApiKey"),
		RollbarToken:             v.GetString("rollbarToken"),
	}
	conf.Server.Host = v.GetString("server.host")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")
	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")
	conf.Redis.Address = v.GetString("redis.address")
	conf.Redis.Password = v.GetString("redis.password")
	conf.Redis.DB = v.GetInt("redis.db")
	return conf
}
