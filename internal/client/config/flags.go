package config

import (
	"flag"
	"os"
	"time"

	"github.com/akulikov/securetext/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the drive gateway (default from Config)
//	-d string   data directory for the durable store
//	-r string   root folder name on the remote store
//	-l int      auto-lock timeout in seconds, 0 disables
//	-i int      sync interval in seconds, 0 disables
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-l", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.GatewayAddr, "a", cfg.GatewayAddr, "base URL of the drive gateway")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory for the local store")
	fs.StringVar(&cfg.RootFolderName, "r", cfg.RootFolderName, "root folder name on the remote store")
	autoLock := fs.Int("l", int(cfg.AutoLockTimeout.Seconds()), "auto-lock timeout (in seconds)")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.AutoLockTimeout = time.Duration(*autoLock) * time.Second
	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
