package infrastructure

import (
	"strings"
	"sync"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

// cookieDomains maps each platform to the domain its session cookies
// are scoped to. Used both for Netscape export and browser-store lookup.
var cookieDomains = map[domain.Platform]string{
	domain.PlatformYouTube:   ".youtube.com",
	domain.PlatformTwitter:   ".x.com",
	domain.PlatformFacebook:  ".facebook.com",
	domain.PlatformTikTok:    ".tiktok.com",
	domain.PlatformInstagram: ".instagram.com",
}

// ConfigAuthProvider builds credential bundles from configuration,
// optionally falling back to the local browser cookie stores when the
// config carries nothing for a platform.
type ConfigAuthProvider struct {
	cfg    domain.AuthConfig
	logger *zap.Logger

	mu     sync.Mutex
	stores []kooky.CookieStore
}

// NewConfigAuthProvider creates the default auth provider
func NewConfigAuthProvider(cfg domain.AuthConfig, logger *zap.Logger) *ConfigAuthProvider {
	return &ConfigAuthProvider{
		cfg:    cfg,
		logger: logger,
	}
}

// AuthFor returns the credential bundle for a platform, or an empty
// context when none is available. Never errors: missing credentials
// just means the cookie strategy will not be applicable.
func (p *ConfigAuthProvider) AuthFor(platform domain.Platform) domain.AuthContext {
	if bundle, ok := p.cfg.Platforms[string(platform)]; ok && len(bundle.Cookies) > 0 {
		dom := bundle.Domain
		if dom == "" {
			dom = cookieDomains[platform]
		}
		cookies := make(map[string]string, len(bundle.Cookies))
		for name, value := range bundle.Cookies {
			cookies[name] = value
		}
		return domain.AuthContext{
			Platform:     platform,
			CookieDomain: dom,
			Cookies:      cookies,
		}
	}

	if p.cfg.BrowserFallback {
		if auth := p.fromBrowserStores(platform); !auth.Empty() {
			return auth
		}
	}
	return domain.AuthContext{}
}

// fromBrowserStores scans the local browser cookie databases for valid
// session cookies scoped to the platform's domain.
func (p *ConfigAuthProvider) fromBrowserStores(platform domain.Platform) domain.AuthContext {
	dom := cookieDomains[platform]
	if dom == "" {
		return domain.AuthContext{}
	}
	lookup := strings.TrimPrefix(dom, ".")

	p.mu.Lock()
	if p.stores == nil {
		p.stores = kooky.FindAllCookieStores()
	}
	stores := p.stores
	p.mu.Unlock()

	cookies := make(map[string]string)
	for _, store := range stores {
		found, err := store.ReadCookies(kooky.Valid, kooky.DomainHasSuffix(lookup))
		if err != nil {
			p.logger.Debug("browser cookie store unreadable",
				zap.String("browser", store.Browser()),
				zap.Error(err))
			continue
		}
		for _, c := range found {
			if _, exists := cookies[c.Name]; !exists {
				cookies[c.Name] = c.Value
			}
		}
	}
	if len(cookies) == 0 {
		return domain.AuthContext{}
	}

	p.logger.Info("using browser session cookies",
		zap.String("platform", string(platform)),
		zap.Int("cookies", len(cookies)))
	return domain.AuthContext{
		Platform:     platform,
		CookieDomain: dom,
		Cookies:      cookies,
	}
}
