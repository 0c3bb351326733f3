package services

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

// Entity names the kind of document whose derived fields are propagated.
type Entity string

const (
	EntityPost  Entity = "post"
	EntityTopic Entity = "topic"
	EntityUser  Entity = "user"
)

// Target is a collection group holding denormalized copies of an entity,
// located by equality on KeyField.
type Target struct {
	Group    string
	KeyField string
}

// DefaultTargets lists every place a copy of a post, topic or user lives.
var DefaultTargets = map[Entity][]Target{
	EntityPost: {
		{Group: models.Posts, KeyField: "id"},
		{Group: models.Bookmarks, KeyField: "id"},
		{Group: models.Feed, KeyField: "content_id"},
		{Group: models.Readings, KeyField: "id"},
		{Group: models.Shares, KeyField: "id"},
		{Group: models.Ratings, KeyField: "post"},
	},
	EntityTopic: {
		{Group: models.Topics, KeyField: "id"},
	},
	EntityUser: {
		{Group: models.Subscriptions, KeyField: "id"},
		{Group: models.Subscribers, KeyField: "id"},
		{Group: models.Users, KeyField: "id"},
	},
}

// TargetResult reports the outcome of propagating into one collection group.
type TargetResult struct {
	Group   string
	Matched int
	Updated int
	Err     error
}

// Propagator copies freshly computed fields onto every denormalized copy.
type Propagator struct {
	store     docstore.Store
	targets   map[Entity][]Target
	batchSize int
}

func NewPropagator(store docstore.Store, batchSize int) *Propagator {
	return &Propagator{store: store, targets: DefaultTargets, batchSize: batchSize}
}

// Propagate merges data into every copy of the entity. Targets run in
// parallel and fail independently; the writes of one target are committed in
// sequential chunks. Copies that already hold data are skipped.
func (p *Propagator) Propagate(ctx context.Context, entity Entity, id string, data docstore.Data) []TargetResult {
	targets := p.targets[entity]
	results := make([]TargetResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			results[i] = p.propagateTarget(ctx, entity, id, t, data)
			r := results[i]
			if r.Err != nil {
				slog.Error("failed to propagate updates to collection", "entity", entity, "id", id, "collection", t.Group, "err", r.Err)
				return
			}
			slog.Debug("propagated updates to collection", "entity", entity, "id", id, "collection", t.Group, "matched", r.Matched, "updated", r.Updated)
		}(i, t)
	}
	wg.Wait()
	return results
}

func (p *Propagator) propagateTarget(ctx context.Context, entity Entity, id string, t Target, data docstore.Data) TargetResult {
	res := TargetResult{Group: t.Group}
	docs, err := p.store.Documents(ctx, docstore.CollectionGroup(t.Group).Where(t.KeyField, docstore.Eq, id))
	if err != nil {
		res.Err = err
		return res
	}
	res.Matched = len(docs)
	self := authoritativePath(entity, id)
	writes := make([]docstore.Write, 0, len(docs))
	for _, d := range docs {
		if d.Path == self || holds(d.Data, data) {
			continue
		}
		writes = append(writes, docstore.SetWrite(d.Path, data, true))
	}
	res.Updated, res.Err = docstore.CommitChunked(ctx, p.store, writes, p.batchSize)
	return res
}

func authoritativePath(entity Entity, id string) string {
	switch entity {
	case EntityPost:
		return models.PostPath(id)
	case EntityTopic:
		return models.TopicPath(id)
	case EntityUser:
		return models.UserPath(id)
	}
	return ""
}

// holds reports whether doc already carries every field of data.
func holds(doc, data docstore.Data) bool {
	for k, want := range data {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if gn, ok := docstore.Number(got); ok {
			if wn, ok := docstore.Number(want); ok && gn == wn {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Failed lists the collection groups whose propagation failed.
func Failed(results []TargetResult) []string {
	var groups []string
	for _, r := range results {
		if r.Err != nil {
			groups = append(groups, r.Group)
		}
	}
	return groups
}
