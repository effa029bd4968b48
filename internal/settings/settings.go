// Package settings resolves the integration settings that steer a single
// request. Settings are read fresh from the config and secret stores for
// every request so operators can change them without a restart.
package settings

import (
	"regexp"
	"strings"
	"sync"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
)

// Keys looked up in the stores.
const (
	KeyAgentScriptDownloadPath          = "AGENT_SCRIPT_DOWNLOAD_PATH"
	KeyGetResultPath                    = "GET_RESULT_PATH"
	KeyOpenClientResponsePluginsEnabled = "OPEN_CLIENT_RESPONSE_PLUGINS_ENABLED"
	KeyProxySecret                      = "PROXY_SECRET"
	KeyDecryptionKey                    = "DECRYPTION_KEY"
)

const (
	DefaultAgentScriptDownloadPath = "agent"
	DefaultGetResultPath           = "result"
)

// Settings is a per-request view of the integration configuration.
type Settings struct {
	AgentScriptDownloadPath string
	GetResultPath           string
	PluginsEnabled          bool

	// ProxySecret is empty when the secret is not configured. The
	// decryption key is not resolved here; post-processing reads it from
	// the secret store when it runs.
	ProxySecret string
}

// Resolve reads every setting from the stores, applying defaults for blank
// or missing values. Either store may be nil.
func Resolve(cfg ports.ConfigStore, secrets ports.SecretStore) Settings {
	return Settings{
		AgentScriptDownloadPath: orDefault(lookupConfig(cfg, KeyAgentScriptDownloadPath), DefaultAgentScriptDownloadPath),
		GetResultPath:           orDefault(lookupConfig(cfg, KeyGetResultPath), DefaultGetResultPath),
		PluginsEnabled:          strings.EqualFold(lookupConfig(cfg, KeyOpenClientResponsePluginsEnabled), "true"),
		ProxySecret:             lookupSecret(secrets, KeyProxySecret),
	}
}

// ScriptDownloadPath is the absolute path serving the agent script.
func (s Settings) ScriptDownloadPath() string {
	return "/" + s.AgentScriptDownloadPath
}

// resultPatterns caches compiled result path patterns by path value.
var resultPatterns sync.Map // string -> *regexp.Regexp

// ResultPathPattern matches the result path and captures the remainder,
// e.g. "/result/extra" captures "/extra". Patterns are compiled once per
// distinct path.
func (s Settings) ResultPathPattern() *regexp.Regexp {
	if re, ok := resultPatterns.Load(s.GetResultPath); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile("^/" + regexp.QuoteMeta(s.GetResultPath) + "(/.*)?$")
	actual, _ := resultPatterns.LoadOrStore(s.GetResultPath, re)
	return actual.(*regexp.Regexp)
}

// OpenClientResponseEnabled reports whether unsealed results should be sent
// to plugins.
func (s Settings) OpenClientResponseEnabled() bool {
	return s.PluginsEnabled
}

func lookupConfig(store ports.ConfigStore, key string) string {
	if store == nil {
		return ""
	}
	v, _ := store.Get(key)
	return strings.TrimSpace(v)
}

func lookupSecret(store ports.SecretStore, key string) string {
	if store == nil {
		return ""
	}
	v, ok := store.Get(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(v))
}

func orDefault(v, def string) string {
	v = strings.Trim(v, "/")
	if v == "" {
		return def
	}
	return v
}
