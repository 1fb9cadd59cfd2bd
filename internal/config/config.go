// Package config holds the process-wide configuration read through viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Global configuration values, populated by InitConfig.
var (
	// GoogleAPIKeys are the Custom Search / Places API keys, rotated per request.
	GoogleAPIKeys []string
	// GoogleSearchEngineID is the Custom Search engine (cx) identifier.
	GoogleSearchEngineID string
	// FlickrAPIKey is the Flickr REST API key.
	FlickrAPIKey string
	// GeminiAPIKeys are the generative endpoint keys, rotated across workers.
	GeminiAPIKeys []string

	// RequestDelay is the politeness delay between consecutive requests.
	RequestDelay time.Duration
	// RequestJitter is the random extra added to RequestDelay.
	RequestJitter time.Duration
	// RetryMaxAttempts bounds retries for a single item.
	RetryMaxAttempts int
	// RetryBaseDelay is the first backoff wait; it doubles per attempt.
	RetryBaseDelay time.Duration
)

// InitConfig initializes the global configuration from viper.
func InitConfig() {
	SetDefaults()

	GoogleAPIKeys = splitKeys(viper.GetString("google.apikeys"))
	GoogleSearchEngineID = viper.GetString("google.searchengineid")
	FlickrAPIKey = viper.GetString("flickr.apikey")
	GeminiAPIKeys = splitKeys(viper.GetString("gemini.apikeys"))

	RequestDelay = viper.GetDuration("request.delay")
	RequestJitter = viper.GetDuration("request.jitter")
	RetryMaxAttempts = viper.GetInt("retry.maxattempts")
	RetryBaseDelay = viper.GetDuration("retry.basedelay")
}

// SetDefaults registers every configuration default. Safe to call more than
// once; viper defaults are idempotent.
func SetDefaults() {
	viper.SetDefault("AttractionsDir", "./attractions/")
	viper.SetDefault("LogDir", "./logs/")

	viper.SetDefault("fetch.baseurl", "https://media.taiwan.net.tw/zh-tw/portal/travel/json/")
	viper.SetDefault("fetch.idcolumn", "唯一識別碼")

	viper.SetDefault("rank.mode", "api")
	viper.SetDefault("rank.batchsize", 100)
	viper.SetDefault("rank.topk", 1000)
	viper.SetDefault("rank.namecolumn", "資料名稱")
	viper.SetDefault("rank.citycolumn", "縣市名稱")
	viper.SetDefault("rank.districtcolumn", "行政區(鄉鎮區)名稱")
	viper.SetDefault("rank.descriptioncolumn", "文字描述")

	viper.SetDefault("harvest.outputdir", "./image_data/")
	viper.SetDefault("harvest.maxmaps", 10)
	viper.SetDefault("harvest.maxcse", 100)
	viper.SetDefault("harvest.maxflickr", 10)
	viper.SetDefault("harvest.minimagebytes", 10*1024)

	viper.SetDefault("reason.workers", 4)
	viper.SetDefault("reason.rps", 1)
	viper.SetDefault("reason.model", "gemini-2.5-flash-preview-05-20")
	viper.SetDefault("reason.maxperattraction", 0)
	viper.SetDefault("reason.output", "./result.jsonl")

	viper.SetDefault("request.delay", "1s")
	viper.SetDefault("request.jitter", "500ms")
	viper.SetDefault("retry.maxattempts", 3)
	viper.SetDefault("retry.basedelay", "2s")

	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h")
}

// BindCredentialEnv binds the credential environment variables to their
// config keys. The lookup names match the original tooling's .env files.
func BindCredentialEnv() error {
	binds := map[string]string{
		"google.apikeys":        "GOOGLE_API_KEY",
		"google.searchengineid": "GOOGLE_SEARCH_ENGINE_ID",
		"flickr.apikey":         "FLICKR_API_KEY",
		"gemini.apikeys":        "GEMINI_API_KEY",
	}
	for key, env := range binds {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// splitKeys turns a comma-separated credential list into a slice, trimming
// whitespace and dropping empties.
func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
