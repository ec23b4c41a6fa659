package config

import "time"

// Remote backend selectors.
const (
	RemoteGateway = "gateway"
	RemoteS3      = "s3"
)

// Config holds runtime settings for the SecureText client.
//
// Fields:
//   - GatewayAddr: base URL of the drive gateway (Remote == "gateway").
//   - GatewayToken: bearer token for the gateway. The SECURETEXT_TOKEN
//     environment variable takes precedence when set.
//   - GatewayTokenFile: path to a token file kept fresh by an external
//     refresher; re-read on expiry. Takes precedence over GatewayToken.
//   - DataDir: directory for the durable local store.
//   - RootFolderName: name of the vault's root folder on the remote store.
//   - AutoLockTimeout: inactivity window before the session locks itself.
//     Zero disables auto-lock.
//   - SyncInterval: how often the tree fingerprint is re-checked. Zero
//     disables background sync.
//   - DecryptPolicy: "strict" fails loads on undecryptable blobs, "lenient"
//     collapses them to empty documents.
//   - Remote: which backend to use, "gateway" or "s3".
//   - S3*: S3-compatible endpoint settings (Remote == "s3").
type Config struct {
	GatewayAddr      string
	GatewayToken     string
	GatewayTokenFile string
	DataDir          string
	RootFolderName   string
	AutoLockTimeout  time.Duration
	SyncInterval     time.Duration
	DecryptPolicy    string
	Remote           string
	S3Region         string
	S3Bucket         string
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.GatewayAddr = "http://127.0.0.1:8080"
	c.DataDir = ".securetext"
	c.RootFolderName = "SecureText"
	c.AutoLockTimeout = 10 * time.Minute
	c.SyncInterval = 30 * time.Second
	c.DecryptPolicy = "strict"
	c.Remote = RemoteGateway
	c.S3Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
