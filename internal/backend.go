package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/depth2go/internal/api"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/persistence"
	"github.com/markusressel/depth2go/internal/session"
	"github.com/markusressel/depth2go/internal/statistics"
	"github.com/markusressel/depth2go/internal/telemetry"
	"github.com/markusressel/depth2go/internal/ui"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RunDaemon() {
	config := configuration.CurrentConfig

	pers := persistence.NewPersistence(config.DbPath)
	if err := pers.Init(); err != nil {
		ui.Fatal("Unable to initialize persistence at %s: %v", config.DbPath, err)
	}

	publishers, err := telemetry.NewPublishers(config.Telemetry)
	if err != nil {
		ui.Fatal("Unable to initialize telemetry: %v", err)
	}
	defer telemetry.Close(publishers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := session.NewManager(ctx, config,
		session.WithPersistence(pers),
		session.WithRunListeners(telemetry.RunListener(publishers...)),
	)

	if err := statistics.RegisterCollectors(prometheus.DefaultRegisterer, manager); err != nil {
		ui.Fatal("Unable to register metrics: %v", err)
	}

	var g run.Group
	{
		if config.Statistics.Enabled {
			// === Prometheus Exporter
			port := config.Statistics.Port
			if port <= 0 || port >= 65535 {
				port = 9000
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

			g.Add(func() error {
				ui.Info("Serving metrics on %s/metrics", server.Addr)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("cannot start prometheus metrics endpoint: %w", err)
				}
				return nil
			}, func(err error) {
				ui.Info("Stopping statistics server...")
				timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer timeoutCancel()
				if err := server.Shutdown(timeoutCtx); err != nil {
					ui.Warning("Error stopping statistics server: %v", err)
				} else {
					ui.Info("Statistics server stopped.")
				}
			})
		}
	}
	{
		if config.Api.Enabled {
			// === REST API
			rest := api.CreateRestService(manager, pers, prometheus.DefaultRegisterer)
			addr := fmt.Sprintf("%s:%d", config.Api.Host, config.Api.Port)

			g.Add(func() error {
				ui.Info("Serving operator API on %s", addr)
				if err := rest.Start(addr); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("cannot start api server: %w", err)
				}
				return nil
			}, func(err error) {
				stopRestService(rest)
			})
		}
	}
	{
		// === depth control
		quit := make(chan struct{})

		g.Add(func() error {
			if config.Loop.AutoStart {
				if _, err := manager.Start(nil); err != nil {
					return fmt.Errorf("unable to start depth control: %w", err)
				}
			} else {
				ui.Info("Waiting for an operator to start depth control...")
			}
			<-quit
			manager.Shutdown()
			return nil
		}, func(err error) {
			close(quit)
		})
	}
	{
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		quit := make(chan struct{})

		g.Add(func() error {
			select {
			case <-sig:
				ui.Info("Received SIGTERM signal, exiting...")
			case <-quit:
			}
			return nil
		}, func(err error) {
			signal.Stop(sig)
			close(quit)
		})
	}

	if err := g.Run(); err != nil {
		ui.Error("%v", err)
		telemetry.Close(publishers)
		os.Exit(1)
	}
	ui.Info("Done.")
}

func stopRestService(rest *echo.Echo) {
	ui.Info("Stopping operator API...")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rest.Shutdown(timeoutCtx); err != nil {
		ui.Warning("Error stopping operator API: %v", err)
	} else {
		ui.Info("Operator API stopped.")
	}
}
