package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	natsadapter "github.com/mzabaleta/routefit/internal/adapters/nats"
	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/pkg/config"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
	"github.com/mzabaleta/routefit/internal/pkg/logging"
)

// The simulator replays a recorded GPX track as live position fixes, so a
// directions session can be exercised without going for an actual run.
// Fixes are published on the same subject the WebSocket clients use.
func main() {
	cfg, err := config.Load("routefit-simulator")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("routefit-simulator", logLevel, "text")

	path := cfg.Simulator.GPXPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		log.Fatal("usage: simulator <track.gpx> (or set ROUTEFIT_SIMULATOR_GPX_PATH)")
	}

	sessionID := cfg.Simulator.SessionID
	if sessionID == "" {
		sessionID = "simulator"
	}
	speed := cfg.Simulator.SpeedFactor
	if speed <= 0 {
		speed = 1.0
	}

	fixes, err := loadTrack(path)
	if err != nil {
		log.Fatalf("load track: %v", err)
	}
	if len(fixes) < 2 {
		log.Fatalf("track %s has too few points", path)
	}

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("replaying track",
		"path", path,
		"points", len(fixes),
		"session_id", sessionID,
		"speed_factor", speed,
	)

	replay(ctx, publisher, fixes, sessionID, speed)
	slog.Info("replay finished")
}

type trackFix struct {
	point domain.GeoPoint
	// delay before this fix is published, at real-time pace; the speed
	// factor is applied during replay.
	delay time.Duration
}

// loadTrack flattens every track segment into one fix sequence. Gaps between
// segments replay as ordinary point-to-point delays.
func loadTrack(path string) ([]trackFix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := gpx.Parse(f)
	if err != nil {
		return nil, err
	}

	var fixes []trackFix
	var prev *gpx.GPXPoint
	for _, track := range data.Tracks {
		for _, segment := range track.Segments {
			for i := range segment.Points {
				p := &segment.Points[i]
				fix := trackFix{point: domain.GeoPoint{Lat: p.Latitude, Lon: p.Longitude}}
				if prev != nil {
					fix.delay = fixDelay(prev, p)
				}
				fixes = append(fixes, fix)
				prev = p
			}
		}
	}
	return fixes, nil
}

// fixDelay prefers recorded timestamps; tracks without them replay at a
// walking pace derived from point spacing.
func fixDelay(prev, cur *gpx.GPXPoint) time.Duration {
	if !prev.Timestamp.IsZero() && !cur.Timestamp.IsZero() {
		d := cur.Timestamp.Sub(prev.Timestamp)
		if d > 0 {
			return d
		}
	}
	dist := geospatial.Distance(
		domain.GeoPoint{Lat: prev.Latitude, Lon: prev.Longitude},
		domain.GeoPoint{Lat: cur.Latitude, Lon: cur.Longitude},
	)
	return time.Duration(dist / domain.AverageWalkingSpeed * float64(time.Second))
}

func replay(ctx context.Context, publisher *natsadapter.Publisher, fixes []trackFix, sessionID string, speed float64) {
	published := 0
	for _, fix := range fixes {
		if fix.delay > 0 {
			wait := time.Duration(float64(fix.delay) / speed)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				slog.Info("replay interrupted", "published", published)
				return
			}
		}

		err := publisher.PublishPosition(ctx, &domain.PositionFix{
			SessionID: sessionID,
			Location:  fix.point,
		})
		if err != nil {
			slog.Warn("publish failed", "error", err)
			continue
		}
		published++
	}
	slog.Info("all fixes published", "count", published)
}
