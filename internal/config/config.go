package config // package config loads application configuration from environment variables

import (
    "log"     // log reports fatal configuration errors before the app logger exists
    "os"      // os provides access to environment variables
    "strings" // strings splits list-valued variables
    "time"    // time parses window durations
)

// Store drivers accepted by STORE_DRIVER.
const (
    DriverMongo  = "mongo"
    DriverMySQL  = "mysql"
    DriverMemory = "memory"
    DriverNone   = "none"
)

// Config holds all runtime configuration values for the API server.  Each
// field corresponds to an environment variable.  Only JWT_SECRET is required,
// and only in production; everything else has a development default so the
// server can run against the JSON mirror alone.
type Config struct {
    Env            string   // application environment (dev, test, prod)
    Port           string   // HTTP port to listen on
    StoreDriver    string   // primary document store: mongo, mysql, memory or none
    MongoURI       string   // mongo connection string
    MongoDB        string   // mongo database name
    DBUser         string   // mysql username
    DBPass         string   // mysql password (optional)
    DBHost         string   // mysql host address
    DBPort         string   // mysql port number
    DBName         string   // mysql database name
    DataDir        string   // directory holding the JSON-file mirror
    JWTSecret      string   // secret used to sign identity tokens
    AccessTTLMin   int      // identity token time-to-live in minutes
    RefreshTTLDays int      // refresh token time-to-live in days
    BcryptCost     int      // bcrypt cost for password hashing
    AdminEmail     string   // the only address granted the admin role
    DevAuth        bool     // accept raw user ids as bearer tokens outside production
    AllowedOrigins []string // CORS origins
    RBACModel      string   // casbin model file
    RBACPolicy     string   // casbin policy file

    ReviewTokenTTL   time.Duration // lifetime of a review token
    ReviewMinComment int           // minimum comment length when a comment is given

    LogLevel       string // logrus level name
    LogFile        string // optional rotated log file path
    JaegerEndpoint string // collector endpoint; tracing is disabled when empty
    RabbitURL      string // broker URL; events are dropped when empty
    SMTP           SMTPConfig
    NotifyEmail    string // recipient of support notifications
}

// SMTPConfig configures outgoing support notifications.
type SMTPConfig struct {
    Host     string
    Port     int
    User     string
    Password string
    From     string
}

// Enabled reports whether enough is configured to send mail.
func (s SMTPConfig) Enabled() bool { return s.Host != "" && s.From != "" }

// IsProduction reports whether the server runs with production safeguards.
func (c Config) IsProduction() bool {
    return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// Load reads configuration values from environment variables and returns a
// Config.  A missing JWT_SECRET in production is fatal.
func Load() Config {
    env := envStr("APP_ENV", "dev")
    cfg := Config{
        Env:            env,
        Port:           envStr("APP_PORT", "3000"),
        StoreDriver:    strings.ToLower(envStr("STORE_DRIVER", DriverNone)),
        MongoURI:       envStr("MONGO_URI", "mongodb://localhost:27017"),
        MongoDB:        envStr("MONGO_DB", "ccr"),
        DBUser:         envStr("DB_USER", "root"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         envStr("DB_HOST", "127.0.0.1"),
        DBPort:         envStr("DB_PORT", "3306"),
        DBName:         envStr("DB_NAME", "ccr"),
        DataDir:        envStr("DATA_DIR", "data"),
        JWTSecret:      envStr("JWT_SECRET", "dev-secret-change-me"),
        AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 60),
        RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 30),
        BcryptCost:     envInt("BCRYPT_COST", 10),
        AdminEmail:     strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
        DevAuth:        envBool("DEV_AUTH_FALLBACK", false),
        AllowedOrigins: envList("ALLOWED_ORIGINS", "*"),
        RBACModel:      envStr("RBAC_MODEL_PATH", "configs/rbac_model.conf"),
        RBACPolicy:     envStr("RBAC_POLICY_PATH", "configs/policy.csv"),

        ReviewTokenTTL:   time.Duration(envInt("REVIEW_TOKEN_TTL_DAYS", 14)) * 24 * time.Hour,
        ReviewMinComment: envInt("REVIEW_MIN_COMMENT", 20),

        LogLevel:       envStr("LOG_LEVEL", "info"),
        LogFile:        os.Getenv("LOG_FILE"),
        JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
        RabbitURL:      envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
        SMTP: SMTPConfig{
            Host:     os.Getenv("SMTP_HOST"),
            Port:     envInt("SMTP_PORT", 587),
            User:     os.Getenv("SMTP_USER"),
            Password: os.Getenv("SMTP_PASSWORD"),
            From:     os.Getenv("SMTP_FROM"),
        },
        NotifyEmail: envStr("NOTIFY_EMAIL", os.Getenv("ADMIN_EMAIL")),
    }
    if cfg.IsProduction() {
        cfg.JWTSecret = must("JWT_SECRET")
        cfg.DevAuth = false // never honoured in production
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// envList splits a comma-separated variable, dropping blanks.
func envList(k, d string) []string {
    var out []string
    for _, p := range strings.Split(envStr(k, d), ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
