// Package canvas parses canvas command flags and composes the engine
// entrypoint.
package canvas

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/gridpaint/internal/platform/cmd"
	server "github.com/louisbranch/gridpaint/internal/services/canvas/app"
	"github.com/louisbranch/gridpaint/internal/services/canvas/storage/sqlite"
)

// Config holds canvas command configuration.
type Config struct {
	HTTPAddr    string `env:"GRIDPAINT_CANVAS_HTTP_ADDR" envDefault:":8080"`
	DBPath      string `env:"GRIDPAINT_CANVAS_DB_PATH"   envDefault:"data/canvas.db"`
	TokenSecret string `env:"GRIDPAINT_TOKEN_SECRET"`

	GridWidth  int `env:"GRIDPAINT_CANVAS_WIDTH"  envDefault:"256"`
	GridHeight int `env:"GRIDPAINT_CANVAS_HEIGHT" envDefault:"256"`

	QuotaCapacity     int           `env:"GRIDPAINT_QUOTA_CAPACITY"           envDefault:"100"`
	ReplenishStep     int           `env:"GRIDPAINT_QUOTA_REPLENISH_STEP"     envDefault:"1"`
	ReplenishInterval time.Duration `env:"GRIDPAINT_QUOTA_REPLENISH_INTERVAL" envDefault:"20s"`

	PeerAddrs  []string `env:"GRIDPAINT_PEER_ADDRS" envSeparator:","`
	PeerSecret string   `env:"GRIDPAINT_PEER_SECRET"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "canvas HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "canvas sqlite database path")
	fs.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "bearer token HMAC secret")
	fs.IntVar(&cfg.GridWidth, "grid-width", cfg.GridWidth, "canvas grid width in cells")
	fs.IntVar(&cfg.GridHeight, "grid-height", cfg.GridHeight, "canvas grid height in cells")
	fs.IntVar(&cfg.QuotaCapacity, "quota-capacity", cfg.QuotaCapacity, "maximum placement balance per participant")
	fs.IntVar(&cfg.ReplenishStep, "replenish-step", cfg.ReplenishStep, "balance units restored per replenishment pass")
	fs.DurationVar(&cfg.ReplenishInterval, "replenish-interval", cfg.ReplenishInterval, "interval between replenishment passes")
	fs.StringVar(&cfg.PeerSecret, "peer-secret", cfg.PeerSecret, "shared secret for the cross-instance relay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens storage, builds the canvas app, and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCanvas, func(context.Context) error {
		if cfg.TokenSecret == "" {
			return fmt.Errorf("token secret is required")
		}

		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open canvas storage: %w", err)
		}
		defer store.Close()

		if err := server.Run(ctx, server.Config{
			HTTPAddr:          cfg.HTTPAddr,
			GridWidth:         cfg.GridWidth,
			GridHeight:        cfg.GridHeight,
			Cells:             store,
			Quotas:            store,
			Identities:        store,
			TokenSecret:       []byte(cfg.TokenSecret),
			QuotaCapacity:     cfg.QuotaCapacity,
			ReplenishStep:     cfg.ReplenishStep,
			ReplenishInterval: cfg.ReplenishInterval,
			PeerAddrs:         cfg.PeerAddrs,
			PeerSecret:        cfg.PeerSecret,
		}); err != nil {
			return fmt.Errorf("serve canvas: %w", err)
		}
		return nil
	})
}
