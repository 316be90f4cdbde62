// Command signet-verifyd serves the verifier over gRPC and HTTP.
//
// The gRPC listener carries signet.verify.v1.Verifier and, when a document
// store is configured, signet.verify.storage.v1.CAS for that store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"signet.dev/verify/config"
	"signet.dev/verify/httpapi"
	"signet.dev/verify/internal/log"
	"signet.dev/verify/keys"
	"signet.dev/verify/model"
	"signet.dev/verify/rpc/verifysvc"
	"signet.dev/verify/storage/casconfig"
	"signet.dev/verify/storage/casregistry"
	"signet.dev/verify/storage/grpccas"

	_ "signet.dev/verify/storage/localfs"
	_ "signet.dev/verify/storage/sqlitecas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("signet-verifyd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "YAML config file (SIGNET_* environment variables override it)")
	listBackends := fs.Bool("list-backends", false, "List supported document store backends and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(errOut, "unexpected arguments: %v\n", fs.Args())
		return 2
	}

	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	log.Init(log.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON, Stderr: errOut})

	d, err := newDaemon(ctx, cfg)
	if err != nil {
		log.Error("startup failed", "err", err)
		return 1
	}
	defer d.close()

	var grpcLis, httpLis net.Listener
	if cfg.GRPCListen != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPCListen); err != nil {
			log.Error("listen grpc", "addr", cfg.GRPCListen, "err", err)
			return 1
		}
	}
	if cfg.HTTPListen != "" {
		if httpLis, err = net.Listen("tcp", cfg.HTTPListen); err != nil {
			log.Error("listen http", "addr", cfg.HTTPListen, "err", err)
			if grpcLis != nil {
				_ = grpcLis.Close()
			}
			return 1
		}
	}

	if err := d.serve(ctx, grpcLis, httpLis); err != nil {
		log.Error("serve", "err", err)
		return 1
	}
	log.Info("shut down")
	return 0
}

type daemon struct {
	cfg     config.Config
	log     *slog.Logger
	svc     *model.Service
	closeFn func() error
}

func newDaemon(ctx context.Context, cfg config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log.With("component", "daemon"), closeFn: func() error { return nil }}

	var set keys.Set
	if cfg.JWKSFile != "" {
		b, err := os.ReadFile(cfg.JWKSFile)
		if err != nil {
			return nil, fmt.Errorf("read jwks: %w", err)
		}
		doc, err := keys.ParseJWKS(b)
		if err != nil {
			return nil, fmt.Errorf("jwks %s: %w", cfg.JWKSFile, err)
		}
		if err := doc.Check(); err != nil {
			d.log.Warn("unusable keys in jwks", "path", cfg.JWKSFile, "err", err)
		}
		set = doc.Set()
	} else {
		d.log.Warn("no jwks_file configured; bundle requests must carry their own key set")
	}

	policy := keys.FallbackFirstEd25519
	if cfg.StrictKey {
		policy = keys.FallbackNone
	}
	d.svc = &model.Service{Keys: set, Fallback: policy, Concurrency: cfg.ChainConcurrency}

	if cfg.StoreConfig != "" {
		cas, closeFn, err := casconfig.OpenFile(ctx, cfg.StoreConfig, casregistry.UsageDaemon)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		d.svc.Store = cas
		if closeFn != nil {
			d.closeFn = closeFn
		}
	}
	return d, nil
}

func (d *daemon) close() {
	if err := d.closeFn(); err != nil {
		d.log.Warn("close store", "err", err)
	}
}

// serve runs until ctx is done or a server fails. Either listener may be nil.
func (d *daemon) serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	hydrate := d.svc.Store != nil

	if grpcLis != nil {
		srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(log.With("component", "grpc"))))
		verifysvc.RegisterVerifierServer(srv, &verifysvc.Server{
			Service:          d.svc,
			CheckReceiptHash: d.cfg.CheckReceiptHash,
			Hydrate:          hydrate,
		})
		if d.svc.Store != nil {
			grpccas.RegisterCASServer(srv, &grpccas.Server{CAS: d.svc.Store})
		}
		g.Go(func() error {
			d.log.Info("grpc listening", "addr", grpcLis.Addr().String(), "store", d.svc.Store != nil)
			return srv.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			srv.GracefulStop()
			return nil
		})
	}

	if httpLis != nil {
		srv := &http.Server{
			Handler: httpapi.New(d.svc, httpapi.Options{
				MaxBodyBytes:     d.cfg.HTTP.MaxBodyBytes,
				Logger:           log.Logger().With("component", "http"),
				CheckReceiptHash: d.cfg.CheckReceiptHash,
				Hydrate:          hydrate,
			}),
			ReadHeaderTimeout: d.cfg.HTTP.ReadTimeout,
			ReadTimeout:       d.cfg.HTTP.ReadTimeout,
			WriteTimeout:      d.cfg.HTTP.WriteTimeout,
		}
		g.Go(func() error {
			d.log.Info("http listening", "addr", httpLis.Addr().String())
			if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout())
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (d *daemon) shutdownTimeout() time.Duration {
	if d.cfg.HTTP.ShutdownTimeout > 0 {
		return d.cfg.HTTP.ShutdownTimeout
	}
	return 5 * time.Second
}

func logUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
