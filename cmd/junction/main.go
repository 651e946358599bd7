package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/junction.report/internal/blobsource"
	"github.com/banshee-data/junction.report/internal/config"
	"github.com/banshee-data/junction.report/internal/db"
	"github.com/banshee-data/junction.report/internal/junction"
	"github.com/banshee-data/junction.report/internal/metrics"
	"github.com/banshee-data/junction.report/internal/monitoring"
	"github.com/banshee-data/junction.report/internal/report"
	"github.com/banshee-data/junction.report/internal/timeutil"
	"github.com/banshee-data/junction.report/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to JSON tuning file (defaults are used when empty)")
	fixtures    = flag.String("fixtures", "", "Replay blob frames from a JSON lines file")
	port        = flag.String("port", "", "Serial device streaming blob frames (ignored with -fixtures)")
	baud        = flag.Int("baud", 115200, "Serial baud rate")
	dbFile      = flag.String("db", "", "SQLite database to record the session in (optional)")
	listen      = flag.String("listen", "", "Metrics HTTP listen address, e.g. :9100 (optional)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health service listen address (optional)")
	unpaced     = flag.Bool("unpaced", false, "Process ticks back to back instead of at the tick interval")
	verbose     = flag.Bool("v", false, "Verbose logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options carries the parsed flags into run.
type options struct {
	tuning     *config.TuningConfig
	fixtures   string
	port       string
	serial     blobsource.PortOptions
	dbFile     string
	listen     string
	grpcListen string
	unpaced    bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("junction %s\n", version.String())
		return
	}
	monitoring.SetVerbose(*verbose)
	log.Printf("junction %s", version.String())

	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *configFile)
	}

	if *fixtures == "" && *port == "" {
		log.Fatal("one of -fixtures or -port is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		tuning:     tuning,
		fixtures:   *fixtures,
		port:       *port,
		serial:     blobsource.PortOptions{BaudRate: *baud},
		dbFile:     *dbFile,
		listen:     *listen,
		grpcListen: *grpcListen,
		unpaced:    *unpaced,
	}
	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("junction: %v", err)
	}
}

// run drives one controller session and writes the report to out. Feed
// exhaustion and cancellation are normal ends.
func run(ctx context.Context, opts options, out io.Writer) error {
	cfg := junction.ConfigFromTuning(opts.tuning)
	clock := timeutil.RealClock{}

	var wg sync.WaitGroup
	defer wg.Wait()

	var source junction.BlobSource
	switch {
	case opts.fixtures != "":
		rp, err := blobsource.LoadReplay(opts.fixtures)
		if err != nil {
			return err
		}
		log.Printf("replaying %d north frames from %s", rp.Len(junction.North), opts.fixtures)
		source = rp
	case opts.port != "":
		p, err := blobsource.OpenSerial(opts.port, opts.serial)
		if err != nil {
			return err
		}
		stream := blobsource.NewStream(p, 0)
		monCtx, cancel := context.WithCancel(ctx)
		// Closing the port unblocks the scanner; the deferred wg.Wait runs after.
		defer p.Close()
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stream.Monitor(monCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			dropped := 0
			for _, d := range junction.Directions {
				dropped += stream.Dropped(d)
			}
			log.Printf("monitor routine terminated (%d malformed lines, %d dropped frames)", stream.Malformed(), dropped)
		}()
		source = stream
	default:
		return errors.New("no blob source configured")
	}

	ctrl, err := junction.NewController(cfg, source, clock)
	if err != nil {
		return err
	}
	if opts.unpaced {
		ctrl.Unpaced()
	}
	start := clock.Now()

	summary := report.NewBuilder(start)
	ctrl.AddSink(summary)

	if opts.listen != "" {
		m := metrics.New()
		ctrl.AddSink(m)
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		server := &http.Server{Addr: opts.listen, Handler: mux}

		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("metrics server failed: %v", err)
				}
			}()
			<-srvCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("failed to shut down metrics server: %v", err)
			}
			log.Print("metrics server terminated")
		}()
	}

	var healthSrv *health.Server
	if opts.grpcListen != "" {
		lis, err := net.Listen("tcp", opts.grpcListen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", opts.grpcListen, err)
		}
		grpcServer := grpc.NewServer()
		healthSrv = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthSrv)
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		defer grpcServer.GracefulStop()
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				log.Printf("gRPC server stopped: %v", err)
			}
		}()
		log.Printf("gRPC health service listening on %s", lis.Addr())
	}

	var recorder *db.Recorder
	if opts.dbFile != "" {
		store, err := db.NewDB(opts.dbFile)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		recorder, err = db.NewRecorder(ctx, store, start, opts.tuning.Resolved(), opts.tuning.GetRecordEvery())
		if err != nil {
			return err
		}
		ctrl.AddSink(recorder)
		log.Printf("recording session %s to %s", recorder.SessionID(), opts.dbFile)
	}

	runErr := ctrl.Run(ctx)

	if healthSrv != nil {
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	reason := "feed exhausted"
	switch {
	case errors.Is(runErr, junction.ErrFeedExhausted):
		runErr = nil
	case errors.Is(runErr, context.Canceled):
		reason = "interrupted"
		runErr = nil
	case runErr != nil:
		reason = runErr.Error()
	}

	if recorder != nil {
		// The run context may be cancelled; the final write still has to land.
		if err := recorder.Finish(context.Background(), clock.Now(), reason); err != nil {
			log.Printf("failed to finish session: %v", err)
		}
	}

	if err := summary.Summary().Write(out); err != nil {
		log.Printf("failed to write report: %v", err)
	}
	return runErr
}
