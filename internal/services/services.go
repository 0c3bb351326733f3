package services

import (
	"time"

	"pulse/internal/docstore"
	"pulse/internal/utils"
)

type Options struct {
	BatchSize        int
	FeedBackfillSize int
	InactiveAfter    time.Duration
	Ranking          utils.RankConfig
	Sender           Sender
}

// Services bundles every service built on one store handle.
type Services struct {
	Store      docstore.Store
	Propagator *Propagator
	Ranking    *RankingService
	Counters   *Counters
	Feed       *FeedBuilder
	Notifier   *Notifier
	Lifecycle  *Lifecycle
	Favorites  *Favorites
	Inactivity *InactivityService
}

func New(store docstore.Store, opts Options) *Services {
	if opts.BatchSize <= 0 || opts.BatchSize > docstore.MaxBatchWrites {
		opts.BatchSize = docstore.MaxBatchWrites
	}
	if opts.FeedBackfillSize <= 0 {
		opts.FeedBackfillSize = 20
	}
	if opts.InactiveAfter <= 0 {
		opts.InactiveAfter = 7 * 24 * time.Hour
	}
	if opts.Ranking == (utils.RankConfig{}) {
		opts.Ranking = utils.DefaultConfig
	}
	s := &Services{Store: store}
	s.Propagator = NewPropagator(store, opts.BatchSize)
	s.Ranking = NewRankingService(store, s.Propagator, opts.Ranking)
	s.Counters = NewCounters(store)
	s.Feed = NewFeedBuilder(store, opts.BatchSize, opts.FeedBackfillSize)
	s.Notifier = NewNotifier(store, opts.Sender, opts.BatchSize)
	s.Lifecycle = NewLifecycle(store, s.Feed, s.Notifier, s.Counters, opts.BatchSize)
	s.Favorites = NewFavorites(store)
	s.Inactivity = NewInactivityService(store, s.Feed, opts.InactiveAfter)
	return s
}
