// Package metrics holds the Prometheus collectors for the content core.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnswersRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_answers_recorded_total",
			Help: "Answers recorded by the mastery tracker",
		},
		[]string{"result"},
	)

	BattlesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_battles_recorded_total",
			Help: "Finished battles appended to history",
		},
		[]string{"mode"},
	)

	FriendBattleClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_friend_battle_claims_total",
			Help: "Friend battle claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	FriendBattlesSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vocab_friend_battles_swept_total",
			Help: "Expired friend battles removed by the sweep",
		},
	)

	BattlePlays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_battle_plays_total",
			Help: "Battle plays by lifecycle event",
		},
		[]string{"event"},
	)

	RegenerationScopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vocab_regeneration_scopes_total",
			Help: "Scopes processed by bulk regeneration",
		},
		[]string{"kind", "outcome"},
	)

	RegenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vocab_regeneration_duration_seconds",
			Help:    "Duration of bulk regeneration runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60},
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AnswersRecorded)
		prometheus.MustRegister(BattlesRecorded)
		prometheus.MustRegister(FriendBattleClaims)
		prometheus.MustRegister(FriendBattlesSwept)
		prometheus.MustRegister(BattlePlays)
		prometheus.MustRegister(RegenerationScopes)
		prometheus.MustRegister(RegenerationDuration)
	})
}

func ObserveRegeneration(start time.Time) {
	RegenerationDuration.Observe(time.Since(start).Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
