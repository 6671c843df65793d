package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ninevoltz/rgbsdk/internal/config"
	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/ninevoltz/rgbsdk/internal/observe"
	"github.com/ninevoltz/rgbsdk/internal/sdk/bridge"
	"github.com/ninevoltz/rgbsdk/internal/sdk/server"
	"github.com/ninevoltz/rgbsdk/pkg/log"
)

// listenFlags collects repeated -listen flags into a []string.
type listenFlags []string

func (l *listenFlags) String() string     { return strings.Join(*l, ",") }
func (l *listenFlags) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	var listen listenFlags
	flag.Var(&listen, "listen", "host:port to bind (repeatable); defaults to the config file's listen list")
	configPath := flag.String("config", "rgbsdkd.yaml", "path to the YAML configuration file")
	legacyProtocol := flag.Bool("legacy-protocol", false, "serve SDK protocol version 0 to sessions that never negotiate a version")
	debugAddr := flag.String("debug-addr", "", "if set, serve the observability websocket bridge on this address")
	flag.Parse()

	logger := log.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}
	if len(listen) > 0 {
		cfg.Listen = listen
	}
	if *legacyProtocol {
		cfg.LegacyProtocol0 = true
	}

	srv := server.New(server.Config{
		ListenAddrs:     cfg.Listen,
		RecvTimeout:     cfg.RecvTimeout,
		QueueDepth:      cfg.QueueDepth,
		LegacyProtocol0: cfg.LegacyProtocol0,
		Profiles:        bridge.NewNoop(),
		Plugins:         bridge.NewNoop(),
		Logger:          logger,
	})

	// A single virtual controller stands in for a real hardware driver
	// until one is wired up; it proves out the full wire path end to
	// end with no physical device attached.
	virtual, err := dal.NewController(dal.Config{
		Name:       "Virtual RGB Controller",
		DeviceType: dal.DeviceUnknown,
		Flags:      dal.FlagVirtual,
		Zones: []dal.Zone{
			{Name: "Zone 1", Type: dal.ZoneLinear, LEDsCount: 12, LEDsMin: 1, LEDsMax: 64},
		},
	})
	if err != nil {
		logger.Errorf("virtual controller: %v", err)
		os.Exit(1)
	}
	srv.RegisterController(virtual)

	srv.OnClientInfoChanged(func(info server.ClientInfo) {
		logger.WithFields(log.Fields{"remote_addr": info.RemoteAddr, "connected": info.Connected}).Infof("client info changed")
	})
	srv.OnServerListeningChanged(func(ev server.ListeningEvent) {
		if ev.Err != nil {
			logger.WithFields(log.Fields{"addr": ev.Addr}).Errorf("listen failed: %v", ev.Err)
			return
		}
		logger.WithFields(log.Fields{"addr": ev.Addr, "listening": ev.Listening}).Infof("server listening changed")
	})

	ctx, cancel := context.WithCancel(context.Background())

	if *debugAddr != "" {
		hub := observe.NewHub(logger)
		hub.Attach(srv, srv.Registry)
		stopped := make(chan struct{})
		go hub.Run(stopped)
		go func() {
			<-ctx.Done()
			close(stopped)
		}()

		mux := http.NewServeMux()
		mux.Handle("/", hub.Handler())
		httpSrv := &http.Server{Addr: *debugAddr, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("observe: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
	}

	watcher, err := config.NewWatcher(*configPath, cfg, func(newCfg config.Config) {
		logger.Infof("config reload observed (not applied to the running server; restart to apply)")
		_ = newCfg
	}, logger)
	if err == nil {
		defer watcher.Close()
	}

	if err := srv.Start(ctx); err != nil {
		logger.Errorf("server start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("received %s, shutting down", sig)

	cancel()
	srv.Stop()
	fmt.Fprintln(os.Stderr, "rgbsdkd: shutdown complete")
}
