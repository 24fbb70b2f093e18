// README: Entry point; loads config, wires the tracking engine and serves the HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"trackmybus/internal/config"
	httptransport "trackmybus/internal/http"
	"trackmybus/internal/http/handlers"
	"trackmybus/internal/http/middleware"
	"trackmybus/internal/infra"
	"trackmybus/internal/maps"
	"trackmybus/internal/modules/location"
	"trackmybus/internal/modules/motion"
	"trackmybus/internal/modules/route"
	"trackmybus/internal/modules/tracking"
	"trackmybus/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fb *infra.Firebase
	if cfg.NeedsFirebase() {
		fb, err = infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	}

	var dbPool *pgxpool.Pool
	if cfg.Routes.Source == config.RoutesPostgres || cfg.Tracking.PathLog {
		dbPool, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
	}

	var redisClient *redis.Client
	if cfg.Channel.Driver == config.ChannelRedis || cfg.Tracking.PathLog {
		redisClient, err = infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
	}

	var channel tracking.Channel
	switch cfg.Channel.Driver {
	case config.ChannelRedis:
		channel = tracking.NewRedisChannel(redisClient)
	case config.ChannelFirebase:
		rtdb, err := fb.Database(ctx)
		if err != nil {
			log.Fatal(err)
		}
		channel = tracking.NewFirebaseChannel(rtdb, cfg.Channel.PollInterval)
	default:
		channel = tracking.NewMemoryChannel()
	}

	routes, err := routeDirectory(ctx, cfg, dbPool, fb)
	if err != nil {
		log.Fatalf("route directory: %v", err)
	}

	var pubOpts []tracking.PublisherOption
	var fleet *handlers.FleetHandler
	if cfg.Tracking.PathLog {
		locations := location.NewService(location.NewStore(dbPool, redisClient))
		pubOpts = append(pubOpts, tracking.WithRecorder(locations), tracking.WithHistory(locations))
		fleet = handlers.NewFleetHandler(locations)
	}
	if cfg.Tracking.Notify {
		msgClient, err := fb.Messaging(ctx)
		if err != nil {
			log.Fatal(err)
		}
		pubOpts = append(pubOpts, tracking.WithNotifier(tracking.NewFirebaseNotifier(msgClient)))
	}
	publisher := tracking.NewPublisher(channel, pubOpts...)
	subscriber := tracking.NewSubscriber(ctx, channel)

	var directions maps.TravelEstimator
	if cfg.Maps.APIKey != "" {
		ds, err := maps.NewDirectionsService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			log.Fatal(err)
		}
		directions = ds
	}

	auth := middleware.Anonymous(middleware.Session{UID: "anonymous", Role: middleware.RoleAdmin})
	if !cfg.Auth.Disabled {
		verifier, err := fb.Verifier(ctx)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
		auth = middleware.Auth(verifier)
	}

	interp := motion.Interpolator{Step: cfg.Motion.StepSize}
	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Vehicles: handlers.NewVehicleHandler(handlers.VehicleHandlerDeps{
			Publisher:  publisher,
			Subscriber: subscriber,
			Routes:     routes,
			ETA:        maps.NewETAService(directions),
			Motion:     interp,
			TickPeriod: cfg.Motion.TickPeriod,
		}),
		Fleet: fleet,
		Auth:  auth,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(gctx, cfg.HTTP.Addr, router)
	})
	if cfg.Demo.VehicleID != "" {
		g.Go(func() error {
			return runDemo(gctx, cfg, publisher, routes, interp)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

func routeDirectory(ctx context.Context, cfg config.Config, dbPool *pgxpool.Pool, fb *infra.Firebase) (route.Directory, error) {
	switch cfg.Routes.Source {
	case config.RoutesPostgres:
		store := route.NewStore(dbPool)
		if cfg.Routes.File != "" {
			if err := seedRoutes(ctx, store, cfg.Routes.File); err != nil {
				return nil, err
			}
		}
		return store, nil
	case config.RoutesFirebase:
		rtdb, err := fb.Database(ctx)
		if err != nil {
			return nil, err
		}
		return route.NewFirebaseDirectory(rtdb), nil
	default:
		return route.LoadFile(cfg.Routes.File)
	}
}

// seedRoutes publishes the routes of a YAML file into Postgres. A missing file is not an error.
func seedRoutes(ctx context.Context, store *route.Store, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	file, err := route.LoadFile(path)
	if err != nil {
		return err
	}
	for _, r := range file.Routes() {
		if err := store.Put(ctx, r); err != nil {
			return err
		}
	}
	log.Printf("seeded %d routes from %s", len(file.Routes()), path)
	return nil
}

// runDemo drives a simulated bus until ctx ends.
func runDemo(ctx context.Context, cfg config.Config, pub *tracking.Publisher, routes route.Directory, interp motion.Interpolator) error {
	r, err := routes.Get(ctx, types.ID(cfg.Demo.RouteID))
	if err != nil {
		return err
	}
	src := motion.NewSimulatedSource(r, interp, cfg.Motion.TickPeriod)
	tr := tracking.NewTracker(pub, types.ID(cfg.Demo.VehicleID), src,
		tracking.WithFirstFixTimeout(cfg.Tracking.FirstFixTimeout),
		tracking.OnUnavailable(func(err error) { log.Printf("demo vehicle stopped: %v", err) }),
	)
	if err := tr.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return tr.Stop(context.WithoutCancel(ctx))
}
