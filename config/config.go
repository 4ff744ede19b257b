// Package config builds the immutable runtime configuration of the blocklist
// updater from environment variables. It is loaded once at startup and passed
// by value into every component; nothing else reads the environment.
package config

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("blocklist/config")

const (
	defaultDocumentPath   = "/adguard/AdGuardHome.yaml"
	defaultManualIPsPath  = "/adguard/manually_blocked_ips.conf"
	defaultCIDRBaseURL    = "https://raw.githubusercontent.com/vulnebify/cidre/main/output/cidr/ipv4"
	defaultCountryListURL = "https://raw.githubusercontent.com/datasets/country-list/main/data.csv"
	defaultTargetKey      = "disallowed_clients"
	defaultServiceName    = "adguardhome"
	defaultControlURL     = "http://socket-proxy-adguard:2375"
	defaultFrequency      = "daily"
	defaultTime           = "06:00"
	defaultDay            = "mon"
	defaultPollInterval   = 10 * time.Second
	defaultHTTPTimeout    = 30 * time.Second
	defaultReloadTimeout  = 30 * time.Second
	defaultLogLevel       = "info"

	firstStartSuffix = ".first-start.bak"
	lastUpdateSuffix = ".last-update.bak"
)

// Config holds all runtime configuration.
type Config struct {
	// Countries is the raw country selection, e.g. "fr,de" or "!us,!ca".
	Countries string

	ScheduleFrequency string
	ScheduleTime      string
	ScheduleDay       string

	ServiceName string
	ControlURL  string

	DocumentPath   string
	FirstBackup    string
	LastBackup     string
	ManualIPsPath  string
	CIDRBaseURL    string
	CountryListURL string
	TargetKey      string

	PollInterval  time.Duration
	HTTPTimeout   time.Duration
	ReloadTimeout time.Duration

	CacheDir    string
	MetricsAddr string
	WatchManual bool
	LogLevel    string
}

// Load builds a Config from getenv, typically os.Getenv. Invalid values fall
// back to defaults with a warning.
func Load(getenv func(string) string) Config {
	e := env(getenv)

	doc := e.str("ADGUARD_CONFIG_PATH", defaultDocumentPath)

	return Config{
		Countries:         strings.TrimSpace(getenv("BLOCK_COUNTRIES")),
		ScheduleFrequency: strings.ToLower(e.str("BLOCKLIST_CRON_TYPE", defaultFrequency)),
		ScheduleTime:      e.str("BLOCKLIST_CRON_TIME", defaultTime),
		ScheduleDay:       strings.ToLower(e.str("BLOCKLIST_CRON_DAY", defaultDay)),
		ServiceName:       e.str("ADGUARD_CONTAINER_NAME", defaultServiceName),
		ControlURL:        strings.TrimRight(e.str("DOCKER_API_URL", defaultControlURL), "/"),
		DocumentPath:      doc,
		FirstBackup:       backupPath(doc, firstStartSuffix),
		LastBackup:        backupPath(doc, lastUpdateSuffix),
		ManualIPsPath:     e.str("MANUAL_IPS_FILE", defaultManualIPsPath),
		CIDRBaseURL:       strings.TrimRight(e.str("CIDR_BASE_URL", defaultCIDRBaseURL), "/"),
		CountryListURL:    e.str("COUNTRY_LIST_URL", defaultCountryListURL),
		TargetKey:         e.str("BLOCKLIST_TARGET_KEY", defaultTargetKey),
		PollInterval:      e.duration("BLOCKLIST_POLL_INTERVAL", defaultPollInterval),
		HTTPTimeout:       e.duration("BLOCKLIST_HTTP_TIMEOUT", defaultHTTPTimeout),
		ReloadTimeout:     e.duration("BLOCKLIST_RELOAD_TIMEOUT", defaultReloadTimeout),
		CacheDir:          getenv("BLOCKLIST_CACHE_DIR"),
		MetricsAddr:       getenv("BLOCKLIST_METRICS_ADDR"),
		WatchManual:       e.bool("BLOCKLIST_WATCH_MANUAL", true),
		LogLevel:          strings.ToLower(e.str("BLOCKLIST_LOG_LEVEL", defaultLogLevel)),
	}
}

// backupPath places a backup next to the document so it shares its filesystem.
func backupPath(doc, suffix string) string {
	return filepath.Join(filepath.Dir(doc), filepath.Base(doc)+suffix)
}

type env func(string) string

func (e env) str(key, fallback string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return fallback
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warnf("invalid duration for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}

func (e env) bool(key string, fallback bool) bool {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warnf("invalid boolean for %s=%q, using default %t", key, v, fallback)
		return fallback
	}
	return b
}
