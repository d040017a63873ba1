package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/carenest/internal/flagx"
	"github.com/dmitrijs2005/carenest/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "2s" and integer nanoseconds are accepted.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	GRPCAddr                     string         `json:"grpc_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	ExternalIssuer               string         `json:"external_issuer"`
	StrictTokenClassification    bool           `json:"strict_token_classification"`
	UserCacheTTL                 timex.Duration `json:"user_cache_ttl"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	AttachmentTimeout            timex.Duration `json:"attachment_timeout"`
	AttachmentMaxBytes           int64          `json:"attachment_max_bytes"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      int            `json:"redis_db"`
	MirrorEnabled                bool           `json:"mirror_enabled"`
	MirrorTimeout                timex.Duration `json:"mirror_timeout"`
	MirrorMaxLen                 int64          `json:"mirror_max_len"`
	PresenceRelayEnabled         bool           `json:"presence_relay_enabled"`
	NATSURL                      string         `json:"nats_url"`
	NATSSubject                  string         `json:"nats_subject"`
	RateLimitRPS                 float64        `json:"rate_limit_rps"`
	RateLimitBurst               int            `json:"rate_limit_burst"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config in args.
// Keys missing from the file keep their current values. Unreadable or
// invalid files panic.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}
	fromJson(config, c)
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		HTTPAddr:                     c.HTTPAddr,
		GRPCAddr:                     c.GRPCAddr,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		AccessTokenValidityDuration:  timex.Duration{Duration: c.AccessTokenValidityDuration},
		RefreshTokenValidityDuration: timex.Duration{Duration: c.RefreshTokenValidityDuration},
		ExternalIssuer:               c.ExternalIssuer,
		StrictTokenClassification:    c.StrictTokenClassification,
		UserCacheTTL:                 timex.Duration{Duration: c.UserCacheTTL},
		S3RootUser:                   c.S3RootUser,
		S3RootPassword:               c.S3RootPassword,
		S3Bucket:                     c.S3Bucket,
		S3Region:                     c.S3Region,
		S3BaseEndpoint:               c.S3BaseEndpoint,
		AttachmentTimeout:            timex.Duration{Duration: c.AttachmentTimeout},
		AttachmentMaxBytes:           c.AttachmentMaxBytes,
		RedisAddr:                    c.RedisAddr,
		RedisPassword:                c.RedisPassword,
		RedisDB:                      c.RedisDB,
		MirrorEnabled:                c.MirrorEnabled,
		MirrorTimeout:                timex.Duration{Duration: c.MirrorTimeout},
		MirrorMaxLen:                 c.MirrorMaxLen,
		PresenceRelayEnabled:         c.PresenceRelayEnabled,
		NATSURL:                      c.NATSURL,
		NATSSubject:                  c.NATSSubject,
		RateLimitRPS:                 c.RateLimitRPS,
		RateLimitBurst:               c.RateLimitBurst,
		LogLevel:                     c.LogLevel,
	}
}

func fromJson(c *Config, j *JsonConfig) {
	c.HTTPAddr = j.HTTPAddr
	c.GRPCAddr = j.GRPCAddr
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.AccessTokenValidityDuration = j.AccessTokenValidityDuration.Duration
	c.RefreshTokenValidityDuration = j.RefreshTokenValidityDuration.Duration
	c.ExternalIssuer = j.ExternalIssuer
	c.StrictTokenClassification = j.StrictTokenClassification
	c.UserCacheTTL = j.UserCacheTTL.Duration
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.AttachmentTimeout = j.AttachmentTimeout.Duration
	c.AttachmentMaxBytes = j.AttachmentMaxBytes
	c.RedisAddr = j.RedisAddr
	c.RedisPassword = j.RedisPassword
	c.RedisDB = j.RedisDB
	c.MirrorEnabled = j.MirrorEnabled
	c.MirrorTimeout = j.MirrorTimeout.Duration
	c.MirrorMaxLen = j.MirrorMaxLen
	c.PresenceRelayEnabled = j.PresenceRelayEnabled
	c.NATSURL = j.NATSURL
	c.NATSSubject = j.NATSSubject
	c.RateLimitRPS = j.RateLimitRPS
	c.RateLimitBurst = j.RateLimitBurst
	c.LogLevel = j.LogLevel
}
