package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/dailyboard/internal/config"
	"github.com/okian/dailyboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestBuildService(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.WorkerCount = 2
		cfg.EventQueueSize = 100

		convey.Convey("When the memory backend is selected", func() {
			cfg.Backend = config.BackendMemory
			svc, err := buildService(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			convey.Convey("Then the service reports it", func() {
				convey.So(svc.Stats(ctx)["backend"], convey.ShouldEqual, "memory")
			})
		})

		convey.Convey("When the redis backend is selected", func() {
			mr := miniredis.RunT(t)
			cfg.RedisURL = "redis://" + mr.Addr() + "/0"
			cfg.RedisKeyPrefix = "lb:"
			svc, err := buildService(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			convey.Convey("Then writes land under the configured prefix", func() {
				_, err := svc.AddScore(ctx, "daily", "alice", 3)
				convey.So(err, convey.ShouldBeNil)
				convey.So(mr.Exists("lb:daily"), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the store is unreachable", func() {
			cfg.RedisURL = "redis://127.0.0.1:1/0"
			_, err := buildService(ctx, cfg)

			convey.Convey("Then startup fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "connect backing store")
			})
		})

		convey.Convey("When the timezone is unknown", func() {
			cfg.Timezone = "Mars/Olympus"
			_, err := buildService(ctx, cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the backend is unknown", func() {
			cfg.Backend = "etcd"
			_, err := buildService(ctx, cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the full route table", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Backend = config.BackendMemory
		cfg.WorkerCount = 1
		svc, err := buildService(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		h := newHandler(ctx, cfg, svc)

		for _, path := range []string{"/healthz", "/stats", "/openapi.yaml", "/api-docs", "/leaderboards/daily"} {
			req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)
		}

		req := httptest.NewRequest(http.MethodPost, "/scores", strings.NewReader(`{"board":"daily","member":"alice","delta":2}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
	})

	convey.Convey("Given the system metrics updater", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
