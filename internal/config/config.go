// Package config loads pdpsync's environment-variable configuration and
// translates it into the per-component config structs using caarlos0/env
// struct tags.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/wisbric/pdpsync/internal/adminsched"
	"github.com/wisbric/pdpsync/internal/apperr"
	"github.com/wisbric/pdpsync/internal/catalog"
	"github.com/wisbric/pdpsync/internal/eventqueue"
	"github.com/wisbric/pdpsync/internal/journal"
	"github.com/wisbric/pdpsync/internal/orchestrator"
	"github.com/wisbric/pdpsync/internal/skufilter"
	"github.com/wisbric/pdpsync/internal/tokenmgr"
)

// Config is the full set of environment-provided options.
type Config struct {
	Mode       string `env:"MODE" envDefault:"serve"`
	ListenHost string `env:"HOST" envDefault:"0.0.0.0"`
	ListenPort int    `env:"PORT" envDefault:"8080"`

	Org  string `env:"ORG"`
	Site string `env:"SITE"`
	Ref  string `env:"REF" envDefault:"main"`

	ContentURL string `env:"CONTENT_URL"`
	StoreURL   string `env:"STORE_URL"`
	AdminHost  string `env:"ADMIN_HOST" envDefault:"https://admin.hlx.page"`

	ProductsTemplate     string   `env:"PRODUCTS_TEMPLATE"`
	ProductPageURLFormat string   `env:"PRODUCT_PAGE_URL_FORMAT"`
	Locales              []string `env:"LOCALES" envSeparator:","`

	AdminAPIAuthToken string `env:"AEM_ADMIN_API_AUTH_TOKEN"`

	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	IMSOrgID     string `env:"IMS_ORG_ID"`

	JournallingURL string `env:"JOURNALLING_URL"`

	ConfigName  string `env:"CONFIG_NAME"`
	ConfigSheet string `env:"CONFIG_SHEET"`

	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string `env:"LOG_FORMAT" envDefault:"json"`
	LogIngestorEndpoint string `env:"LOG_INGESTOR_ENDPOINT"`

	MaxTokens  int     `env:"MAX_TOKENS" envDefault:"20"`
	RefillRate float64 `env:"REFILL_RATE" envDefault:"20"`

	MaxQueueSize int           `env:"MAX_QUEUE_SIZE" envDefault:"1000"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"5"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	DedupWindow  time.Duration `env:"DEDUP_WINDOW" envDefault:"300000ms"`
	QueueTTL     time.Duration `env:"QUEUE_TTL" envDefault:"3600s"`
	QueueEnabled bool          `env:"QUEUE_ENABLED" envDefault:"true"`

	MaxBatches  int           `env:"MAX_BATCHES" envDefault:"5"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"3600s"`
	RunInterval time.Duration `env:"RUN_INTERVAL" envDefault:"0s"`

	SKUDenyList      []string `env:"SKU_DENY_LIST" envSeparator:","`
	SKUAllowList     []string `env:"SKU_ALLOW_LIST" envSeparator:","`
	SKUDenyPatterns  []string `env:"SKU_DENY_PATTERNS" envSeparator:"|"`
	SKUAllowPatterns []string `env:"SKU_ALLOW_PATTERNS" envSeparator:"|"`
	SKUMinLen        int      `env:"SKU_MIN_LEN" envDefault:"1"`
	SKUMaxLen        int      `env:"SKU_MAX_LEN" envDefault:"64"`

	CatalogEndpoint     string `env:"CATALOG_ENDPOINT"`
	CatalogCustomerGroup string `env:"CATALOG_CUSTOMER_GROUP"`
	CatalogEnvironmentID string `env:"CATALOG_ENVIRONMENT_ID"`
	CatalogStoreCode     string `env:"CATALOG_STORE_CODE"`
	CatalogStoreViewCode string `env:"CATALOG_STORE_VIEW_CODE"`
	CatalogWebsiteCode   string `env:"CATALOG_WEBSITE_CODE"`
	CatalogAPIKey        string `env:"CATALOG_API_KEY"`

	RedisURL       string `env:"REDIS_URL"`
	BlobBucket     string `env:"BLOB_BUCKET"`
	BlobLocalDir   string `env:"BLOB_LOCAL_DIR"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	cfg = cfg.withDerived()
	return cfg, nil
}

func (c Config) withDerived() Config {
	if c.ContentURL == "" && c.Site != "" && c.Org != "" {
		c.ContentURL = fmt.Sprintf("https://main--%s--%s.aem.live", c.Site, c.Org)
	}
	if c.StoreURL == "" {
		c.StoreURL = c.ContentURL
	}
	if c.CatalogEndpoint == "" {
		c.CatalogEndpoint = c.StoreURL
	}
	return c
}

// ListenAddr returns the address the HTTP server should bind.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// Validate enforces the hard preconditions a run requires before it may
// start: credentials and URLs that nothing can proceed without.
func (c Config) Validate() error {
	if c.ContentURL == "" && (c.Org == "" || c.Site == "") {
		return apperr.NewValidation("content_url", "must be set, or both org and site")
	}
	if c.ProductPageURLFormat == "" {
		return apperr.NewValidation("product_page_url_format", "must not be empty")
	}
	if c.ClientID == "" {
		return apperr.NewValidation("client_id", "must not be empty")
	}
	if c.ClientSecret == "" {
		return apperr.NewValidation("client_secret", "must not be empty")
	}
	if c.IMSOrgID == "" {
		return apperr.NewValidation("ims_org_id", "must not be empty")
	}
	if c.JournallingURL == "" {
		return apperr.NewValidation("journalling_url", "must not be empty")
	}
	return nil
}

// TokenManager translates Config into tokenmgr.Config.
func (c Config) TokenManager() tokenmgr.Config {
	return tokenmgr.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		IMSOrgID:     c.IMSOrgID,
	}
}

// Journal translates Config into journal.Config.
func (c Config) Journal() journal.Config {
	return journal.Config{
		JournalURL: c.JournallingURL,
		ClientID:   c.ClientID,
		IMSOrgID:   c.IMSOrgID,
	}
}

// EventQueue translates Config into eventqueue.Config.
func (c Config) EventQueue() eventqueue.Config {
	return eventqueue.Config{
		MaxQueueSize: c.MaxQueueSize,
		MaxRetries:   c.MaxRetries,
		DedupWindow:  c.DedupWindow,
		QueueTTL:     c.QueueTTL,
	}
}

// SKUFilter translates Config into skufilter.Config.
func (c Config) SKUFilter() skufilter.Config {
	return skufilter.Config{
		MinLen:        c.SKUMinLen,
		MaxLen:        c.SKUMaxLen,
		DenyList:      c.SKUDenyList,
		AllowList:     c.SKUAllowList,
		DenyPatterns:  c.SKUDenyPatterns,
		AllowPatterns: c.SKUAllowPatterns,
	}
}

// CatalogHeaders translates Config into catalog.Headers.
func (c Config) CatalogHeaders() catalog.Headers {
	return catalog.Headers{
		CustomerGroup: c.CatalogCustomerGroup,
		EnvironmentID: c.CatalogEnvironmentID,
		StoreCode:     c.CatalogStoreCode,
		StoreViewCode: c.CatalogStoreViewCode,
		WebsiteCode:   c.CatalogWebsiteCode,
		APIKey:        c.CatalogAPIKey,
	}
}

// AdminScheduler translates Config into adminsched.AdminConfig.
func (c Config) AdminScheduler() adminsched.AdminConfig {
	return adminsched.AdminConfig{
		Host:  c.AdminHost,
		Org:   c.Org,
		Site:  c.Site,
		Ref:   c.Ref,
		Token: c.AdminAPIAuthToken,
	}
}

// Orchestrator translates Config into orchestrator.Config.
func (c Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Locales:          c.Locales,
		PathFormat:       c.ProductPageURLFormat,
		ContentExtension: "html",
		CatalogHeaders:   c.CatalogHeaders(),
		MaxBatches:       c.MaxBatches,
		LockTTL:          c.LockTTL,
		QueueEnabled:     c.QueueEnabled,
	}
}
