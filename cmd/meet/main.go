package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/adapters/rtc"
	signalch "github.com/collabkit/meet/internal/adapters/signal"
	"github.com/collabkit/meet/internal/app"
	"github.com/collabkit/meet/internal/capture"
	"github.com/collabkit/meet/internal/config"
	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
	"github.com/collabkit/meet/internal/meetapi"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	meetingID := "demo"
	if len(os.Args) > 1 {
		meetingID = os.Args[1]
	}

	ctrl := capture.NewController(capture.SyntheticProvider{}, cfg.OutputDir)
	rtcCfg := rtc.ConfigWithServers(cfg.ICEServers)

	channel := signalch.NewChannel(cfg.ServerURL, cfg.ReadLimit)
	channel.SetDisplayName(cfg.LocalName)

	sess := app.NewSession(app.Options{
		MeetingID: meetingID,
		LocalName: cfg.LocalName,
		Channel:   channel,
		Capture:   ctrl,
		NewLink: func() (core.MediaConnection, error) {
			return rtc.NewConnection(rtcCfg, domain.NewID())
		},
		API: meetapi.NewClient(cfg.APIURL),
		OnMeetingEnd: func() {
			log.Info().Str("meeting", meetingID).Msg("meeting ended")
			cancel()
		},
	})

	log.Info().Str("meeting", meetingID).Str("server", cfg.ServerURL).Msg("joining meeting")
	if err := sess.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("session error")
	}
	sess.Teardown()
	log.Info().Msg("left meeting")
}
