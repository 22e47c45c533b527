package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "challengequest"

var (
	ChallengeJoins = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "challenge_joins_total", Help: "Total successful challenge joins"},
	)
	StageSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "stage_submissions_total", Help: "Stage submissions by outcome"},
		[]string{"outcome"},
	)
	ChallengeCompletions = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "challenge_completions_total", Help: "Total completed challenges"},
	)
	XPAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "xp_awarded_total", Help: "Total XP awarded"},
	)
	LevelUps = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "level_ups_total", Help: "Total level-ups"},
	)
	PublishedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "outbox_published_total", Help: "Total outbox events published"},
	)
	FailedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "outbox_failed_total", Help: "Total outbox publish failures"},
	)
	DeadEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "outbox_dead_total", Help: "Total outbox events given up after too many attempts"},
	)
	LeaderboardCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "leaderboard_cache_total", Help: "Leaderboard cache lookups by result"},
		[]string{"result"},
	)
	HTTPRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func Register() {
	prometheus.MustRegister(
		ChallengeJoins,
		StageSubmissions,
		ChallengeCompletions,
		XPAwarded,
		LevelUps,
		PublishedEvents,
		FailedEvents,
		DeadEvents,
		LeaderboardCache,
		HTTPRequests,
	)
}
