package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/taskboard/internal/common"
	"github.com/G-Research/taskboard/internal/common/database"
	"github.com/G-Research/taskboard/internal/taskboard"
	"github.com/G-Research/taskboard/internal/taskboard/configuration"
	"github.com/G-Research/taskboard/internal/taskboard/parser"
	"github.com/G-Research/taskboard/internal/taskboard/status"
)

const CustomConfigLocation string = "config"

func init() {
	pflag.String(CustomConfigLocation, "./config/taskboard", "Path to application configuration directory")
	pflag.Parse()
}

func makeContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(c)
		cancel()
	}
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.TaskboardConfiguration
	common.LoadConfig(&config, viper.GetString(CustomConfigLocation))

	ctx, cleanup := makeContext()
	defer cleanup()

	var statuses status.Source
	var closeDb func() error
	if len(config.Status.Postgres.Connection) > 0 {
		db, err := database.OpenPgxPool(config.Status.Postgres)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to status database")
		}
		statuses = status.NewCachedSource(status.NewSQLStatusRepository(db), config.Status.CacheExpiry)
		closeDb = func() error {
			db.Close()
			return nil
		}
	}

	app := taskboard.NewApplication(config.Stream, parser.NewLineParser(), statuses)
	if closeDb != nil {
		app.RegisterCloser(closeDb)
	}

	app.Start(ctx)
	log.WithField("url", config.Stream.Url).Info("started event stream ingestion")

	if config.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			server := &http.Server{Addr: fmt.Sprintf(":%d", config.MetricsPort), Handler: mux}
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server failure")
			}
		}()
	}

	<-ctx.Done()
	if err := app.Stop(); err != nil {
		log.WithError(err).Error("errors during shutdown")
	}
	log.Info("Shutting down")
}
