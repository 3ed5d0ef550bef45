package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/vulndb-mirror/checkpoint"
	"github.com/aquasecurity/vulndb-mirror/config"
	"github.com/aquasecurity/vulndb-mirror/metrics"
	"github.com/aquasecurity/vulndb-mirror/transport"
	"github.com/aquasecurity/vulndb-mirror/vulndb"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := run(os.Args[1:], &logger); err != nil {
		logger.Error().Err(err).Msg("Mirror failed")
		os.Exit(1)
	}
}

func run(args []string, logger *zerolog.Logger) error {
	appFs := afero.NewOsFs()
	cfg, err := config.Load(appFs, os.Stderr, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	} else if err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	*logger = logger.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = appFs.MkdirAll(cfg.OutputDir, os.ModePerm); err != nil {
		return xerrors.Errorf("failed to mkdir: %w", err)
	}

	opts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
		transport.WithRateLimit(cfg.RateLimit),
	}
	var provider transport.Provider
	switch cfg.Auth {
	case config.AuthOAuth2:
		provider = transport.NewOAuth2Provider(cfg.ConsumerKey, cfg.ConsumerSecret, cfg.TokenURL, opts...)
	default:
		provider = transport.NewOAuth1Provider(cfg.ConsumerKey, cfg.ConsumerSecret, opts...)
	}

	client := vulndb.NewClient(provider,
		vulndb.WithBaseURL(cfg.ParsedBaseURL()),
		vulndb.WithRetry(cfg.Retry),
		vulndb.WithClientLogger(*logger),
	)

	status, err := client.Status(ctx)
	if err != nil {
		if cfg.StatusOnly {
			return xerrors.Errorf("failed to fetch account status: %w", err)
		}
		logger.Warn().Err(err).Msg("Unable to fetch account status")
	} else {
		logStatus(logger, status)
	}
	if cfg.StatusOnly {
		return nil
	}

	store, err := checkpoint.Open(appFs, cfg.OutputDir)
	if err != nil {
		return xerrors.Errorf("failed to open checkpoint: %w", err)
	}

	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	updater := vulndb.NewUpdater(client, store,
		vulndb.WithFs(appFs),
		vulndb.WithOutputDir(cfg.OutputDir),
		vulndb.WithLogger(*logger),
		vulndb.WithMetrics(recorder),
	)
	updateErr := updater.Update(ctx, cfg.Feeds()...)
	if cfg.ProductVersions > 0 {
		if err = updater.MirrorVersions(ctx, cfg.ProductVersions); err != nil {
			logger.Error().Err(err).Msg("Versions failed")
			updateErr = multierror.Append(updateErr, err)
		}
	}

	if err = recorder.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Error().Err(err).Msg("Unable to write metrics")
	}
	if updateErr != nil {
		return xerrors.Errorf("mirror error: %w", updateErr)
	}

	logger.Info().Str("dir", cfg.OutputDir).Msg("Mirror completed")
	return nil
}

var timeNow = time.Now

func logStatus(logger *zerolog.Logger, s vulndb.Status) {
	event := logger.Info()
	for _, field := range []struct {
		key   string
		value *string
	}{
		{"organization", s.OrganizationName},
		{"user", s.UserNameRequesting},
		{"email", s.UserEmailRequesting},
		{"subscription_end", s.SubscriptionEndDate},
		{"api_calls_allowed", s.APICallsAllowedPerMonth},
		{"api_calls_this_month", s.APICallsMadeThisMonth},
	} {
		if field.value != nil {
			event = event.Str(field.key, *field.value)
		}
	}
	if end, ok := s.SubscriptionEnd(); ok {
		event = event.Int("subscription_days_left", int(end.Sub(timeNow()).Hours()/24))
	}
	event.Msg("VulnDB account status")
	logger.Debug().Bytes("raw", s.RawStatus).Msg("Account status response")
}
