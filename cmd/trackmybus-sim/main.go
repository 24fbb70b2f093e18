// README: Driver simulator; drives a bus along a route and publishes interpolated positions.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trackmybus/internal/config"
	"trackmybus/internal/infra"
	"trackmybus/internal/modules/motion"
	"trackmybus/internal/modules/progress"
	"trackmybus/internal/modules/route"
	"trackmybus/internal/modules/tracking"
	"trackmybus/internal/types"
)

func main() {
	vehicleID := flag.String("vehicle", "bus_1", "vehicle id to publish as")
	routeID := flag.String("route", "", "route id to drive (defaults to the vehicle id)")
	routesFile := flag.String("routes", "", "YAML route file (defaults to routes.file)")
	duration := flag.Duration("duration", 0, "stop after this long; 0 runs until interrupted")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *routeID == "" {
		*routeID = *vehicleID
	}
	if *routesFile == "" {
		*routesFile = cfg.Routes.File
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	routes, err := route.LoadFile(*routesFile)
	if err != nil {
		log.Fatal(err)
	}
	r, err := routes.Get(ctx, types.ID(*routeID))
	if err != nil {
		log.Fatalf("route %s: %v", *routeID, err)
	}

	channel, err := openChannel(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	publisher := tracking.NewPublisher(channel)
	subscriber := tracking.NewSubscriber(ctx, channel)
	interp := motion.Interpolator{Step: cfg.Motion.StepSize}
	src := motion.NewSimulatedSource(r, interp, cfg.Motion.TickPeriod)

	unavailable := make(chan error, 1)
	tracker := tracking.NewTracker(publisher, types.ID(*vehicleID), src,
		tracking.WithFirstFixTimeout(cfg.Tracking.FirstFixTimeout),
		tracking.OnUnavailable(func(err error) { unavailable <- err }),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		unsubscribe, err := subscriber.Subscribe(gctx, types.ID(*vehicleID), func(st tracking.VehicleState) {
			logProgress(st, r)
		})
		if err != nil {
			return err
		}
		defer unsubscribe()
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		if err := tracker.Start(gctx); err != nil {
			return err
		}
		select {
		case <-gctx.Done():
		case err := <-unavailable:
			return err
		}
		return tracker.Stop(context.WithoutCancel(gctx))
	})

	slog.Info("simulating", "vehicle", *vehicleID, "route", r.ID, "stops", len(r.Stops),
		"step", interp.Step, "tick", cfg.Motion.TickPeriod, "channel", cfg.Channel.Driver)
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

func openChannel(ctx context.Context, cfg config.Config) (tracking.Channel, error) {
	switch cfg.Channel.Driver {
	case config.ChannelRedis:
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, err
		}
		return tracking.NewRedisChannel(rdb), nil
	case config.ChannelFirebase:
		fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rtdb, err := fb.Database(ctx)
		if err != nil {
			return nil, err
		}
		return tracking.NewFirebaseChannel(rtdb, cfg.Channel.PollInterval), nil
	default:
		return tracking.NewMemoryChannel(), nil
	}
}

var lastLogged = struct {
	stop int
	at   time.Time
}{stop: -1}

// logProgress logs on every stop change and otherwise at most every few seconds.
func logProgress(st tracking.VehicleState, r route.Route) {
	pos, ok := st.Position()
	if !ok || len(r.Stops) == 0 {
		slog.Info("waiting for signal", "vehicle", st.VehicleID, "active", st.IsActive)
		return
	}
	res := progress.Resolve(pos, r)
	if res.NearestStopIndex == lastLogged.stop && time.Since(lastLogged.at) < 5*time.Second {
		return
	}
	lastLogged.stop, lastLogged.at = res.NearestStopIndex, time.Now()
	slog.Info("progress",
		"vehicle", st.VehicleID,
		"position", pos.String(),
		"stop", r.Stops[res.NearestStopIndex].Name,
		"percent", res.PercentComplete,
		"path_points", len(st.Path),
		"active", st.IsActive,
	)
}
