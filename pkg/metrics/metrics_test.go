package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("board"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.scoreUpdates.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_board_score_updates_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering the same manager twice", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then promauto panics on the duplicate", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording leaderboard metrics", func() {
			before := testutil.ToFloat64(globalManager.scoreUpdates)
			RecordScoreUpdate()
			RecordScoreUpdate()

			Convey("Then the counter moves", func() {
				So(testutil.ToFloat64(globalManager.scoreUpdates)-before, ShouldEqual, 2)
			})
		})

		Convey("When recording removals", func() {
			before := testutil.ToFloat64(globalManager.membersRemoved)
			RecordMembersRemoved(3)
			RecordMembersRemoved(0)

			Convey("Then the counter adds the count", func() {
				So(testutil.ToFloat64(globalManager.membersRemoved)-before, ShouldEqual, 3)
			})
		})

		Convey("When updating the queue", func() {
			UpdateQueue(25, 100)

			Convey("Then size and utilization are set", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 25)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.25)
			})
		})

		Convey("When recording labelled metrics", func() {
			So(func() {
				RecordStoreCommand("zincrby", 1.5)
				RecordStoreError("zincrby", "connection")
				RecordQueueRejected("full")
				RecordHTTPRequest("leaderboard", "GET", "200")
				RecordHTTPRequestDuration("leaderboard", "GET", "200", 3)
				RecordHTTPError("scores", "POST", "client_error")
				AddConnectionInflight(1)
				AddConnectionInflight(-1)
			}, ShouldNotPanic)

			Convey("Then the store error series exists", func() {
				So(testutil.ToFloat64(globalManager.storeErrors.WithLabelValues("zincrby", "connection")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("Then the registry exposes the service metrics", func() {
			RecordTopQuery()
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "dailyboard_leaderboard_top_queries_total")
		})
	})
}
