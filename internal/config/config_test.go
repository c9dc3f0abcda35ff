package config

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ORG", "acme")
	t.Setenv("SITE", "storefront")
	t.Setenv("CLIENT_ID", "client-1")
	t.Setenv("CLIENT_SECRET", "secret-1")
	t.Setenv("IMS_ORG_ID", "ims-org-1")
	t.Setenv("JOURNALLING_URL", "https://journal.example/v1")
	t.Setenv("PRODUCT_PAGE_URL_FORMAT", "/{locale}/products/{urlKey}")
}

func TestLoad_DerivesContentURLFromOrgAndSite(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := "https://main--storefront--acme.aem.live"
	if cfg.ContentURL != want {
		t.Errorf("ContentURL = %q, want %q", cfg.ContentURL, want)
	}
	if cfg.StoreURL != want {
		t.Errorf("StoreURL should fall back to ContentURL, got %q", cfg.StoreURL)
	}
	if cfg.CatalogEndpoint != want {
		t.Errorf("CatalogEndpoint should fall back to StoreURL, got %q", cfg.CatalogEndpoint)
	}
}

func TestLoad_ExplicitContentURLIsNotOverridden(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONTENT_URL", "https://custom.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ContentURL != "https://custom.example" {
		t.Errorf("ContentURL = %q, want explicit override preserved", cfg.ContentURL)
	}
}

func TestValidate_MissingRequiredFieldFails(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to fail on an empty Config")
	}
}

func TestValidate_PassesWithAllRequiredFields(t *testing.T) {
	cfg := Config{
		Org:                  "acme",
		Site:                 "storefront",
		ProductPageURLFormat: "/{locale}/products/{urlKey}",
		ClientID:             "client-1",
		ClientSecret:         "secret-1",
		IMSOrgID:             "ims-org-1",
		JournallingURL:       "https://journal.example/v1",
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected Validate to pass, got %v", err)
	}
}

func TestListenAddr_CombinesHostAndPort(t *testing.T) {
	cfg := Config{ListenHost: "0.0.0.0", ListenPort: 9090}
	if got := cfg.ListenAddr(); got != "0.0.0.0:9090" {
		t.Errorf("ListenAddr = %q", got)
	}
}

func TestTokenManager_TranslatesCredentials(t *testing.T) {
	cfg := Config{ClientID: "cid", ClientSecret: "csecret", IMSOrgID: "iorg"}
	tm := cfg.TokenManager()
	if tm.ClientID != "cid" || tm.ClientSecret != "csecret" || tm.IMSOrgID != "iorg" {
		t.Errorf("unexpected translation: %+v", tm)
	}
}

func TestSKUFilter_TranslatesListsAndBounds(t *testing.T) {
	cfg := Config{
		SKUMinLen:    2,
		SKUMaxLen:    10,
		SKUDenyList:  []string{"BAD1"},
		SKUAllowList: []string{"GOOD1"},
	}
	f := cfg.SKUFilter()
	if f.MinLen != 2 || f.MaxLen != 10 {
		t.Errorf("unexpected bounds: %+v", f)
	}
	if len(f.DenyList) != 1 || f.DenyList[0] != "BAD1" {
		t.Errorf("unexpected deny list: %+v", f.DenyList)
	}
}

func TestCatalogHeaders_TranslatesAllFields(t *testing.T) {
	cfg := Config{
		CatalogCustomerGroup: "g",
		CatalogEnvironmentID: "e",
		CatalogStoreCode:     "s",
		CatalogStoreViewCode: "sv",
		CatalogWebsiteCode:   "w",
		CatalogAPIKey:        "k",
	}
	h := cfg.CatalogHeaders()
	if h.CustomerGroup != "g" || h.EnvironmentID != "e" || h.StoreCode != "s" || h.StoreViewCode != "sv" || h.WebsiteCode != "w" || h.APIKey != "k" {
		t.Errorf("unexpected headers: %+v", h)
	}
}

func TestLoad_AdminHostDefaultsIndependentlyOfContentURL(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminHost != "https://admin.hlx.page" {
		t.Errorf("AdminHost = %q, want the default admin API host", cfg.AdminHost)
	}
	if cfg.AdminHost == cfg.ContentURL {
		t.Errorf("AdminHost must not collapse onto the derived content delivery host")
	}
}

func TestAdminScheduler_TranslatesHostOrgSiteRefAndToken(t *testing.T) {
	cfg := Config{
		AdminHost:         "https://admin.hlx.page",
		Org:               "acme",
		Site:              "storefront",
		Ref:               "main",
		AdminAPIAuthToken: "tok-1",
	}
	ac := cfg.AdminScheduler()
	if ac.Host != "https://admin.hlx.page" || ac.Org != "acme" || ac.Site != "storefront" || ac.Ref != "main" || ac.Token != "tok-1" {
		t.Errorf("unexpected admin scheduler config: %+v", ac)
	}
}

func TestOrchestrator_TranslatesRenderAndLockSettings(t *testing.T) {
	cfg := Config{
		Locales:              []string{"en", "fr"},
		ProductPageURLFormat: "/{locale}/products/{urlKey}",
		MaxBatches:           7,
		QueueEnabled:         true,
	}
	oc := cfg.Orchestrator()
	if len(oc.Locales) != 2 || oc.PathFormat != cfg.ProductPageURLFormat {
		t.Errorf("unexpected orchestrator config: %+v", oc)
	}
	if oc.MaxBatches != 7 || !oc.QueueEnabled {
		t.Errorf("unexpected orchestrator config: %+v", oc)
	}
}
