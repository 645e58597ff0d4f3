package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"echonode/internal/config"
	"echonode/internal/logging"
	"echonode/internal/node"
	"echonode/internal/tap"

	"github.com/google/uuid"
)

// openTap is swapped in tests.
var openTap = newTap

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
		return cfg
	}
	return &config.Config{}
}

func runNode(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	logger := logging.FromContext(ctx)
	cfg := configFromContext(ctx)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	frames, err := openTap(cfg.Tap)
	if err != nil {
		return err
	}
	defer func() {
		if err := frames.Close(); err != nil {
			logger.Warn("close frame tap failed", "err", err.Error())
		}
	}()
	if cfg.Tap.RedisURL != "" {
		logger.Info("frame tap enabled", "session_id", sessionID, "channel", cfg.Tap.Channel)
	}

	n := node.New(stdin, stdout, node.Options{
		IDPolicy:          node.IDPolicy(cfg.Node.MsgIDMode),
		DecodeErrorPolicy: node.DecodeErrorPolicy(cfg.Node.OnDecodeError),
		SessionID:         sessionID,
		Tap:               frames,
		Logger:            logger,
	})
	return n.Run(ctx)
}

func newTap(cfg config.TapConfig) (tap.Tap, error) {
	if cfg.RedisURL == "" {
		return tap.Nop{}, nil
	}
	return tap.NewRedis(tap.RedisOptions{
		URL:     cfg.RedisURL,
		Channel: cfg.Channel,
		Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
	})
}
