package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/akulikov/securetext/internal/flagx"
	"github.com/akulikov/securetext/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	GatewayAddr      string         `json:"gateway_addr"`
	GatewayToken     string         `json:"gateway_token"`
	GatewayTokenFile string         `json:"gateway_token_file"`
	DataDir          string         `json:"data_dir"`
	RootFolderName   string         `json:"root_folder_name"`
	AutoLockTimeout  timex.Duration `json:"auto_lock_timeout"`
	SyncInterval     timex.Duration `json:"sync_interval"`
	DecryptPolicy    string         `json:"decrypt_policy"`
	Remote           string         `json:"remote"`
	S3Region         string         `json:"s3_region"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Endpoint       string         `json:"s3_endpoint"`
	S3AccessKey      string         `json:"s3_access_key"`
	S3SecretKey      string         `json:"s3_secret_key"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; with neither present nothing is
// loaded. Only fields actually present in the file override the defaults.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.GatewayAddr != "" {
		cfg.GatewayAddr = jc.GatewayAddr
	}
	if jc.GatewayToken != "" {
		cfg.GatewayToken = jc.GatewayToken
	}
	if jc.GatewayTokenFile != "" {
		cfg.GatewayTokenFile = jc.GatewayTokenFile
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.RootFolderName != "" {
		cfg.RootFolderName = jc.RootFolderName
	}
	if jc.AutoLockTimeout.Duration != 0 {
		cfg.AutoLockTimeout = time.Duration(jc.AutoLockTimeout.Duration)
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.DecryptPolicy != "" {
		cfg.DecryptPolicy = jc.DecryptPolicy
	}
	if jc.Remote != "" {
		cfg.Remote = jc.Remote
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
}
