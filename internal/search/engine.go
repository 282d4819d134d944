// Package search answers item lookups against the local replica. The
// contract is soft-fail: internal errors are logged and surface as an
// empty result, never as an error to the caller.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"posbridge/internal/cache"
	"posbridge/internal/domain"
	"posbridge/internal/store"
)

// scanMultiplier bounds the fallback full scan to limit * scanMultiplier
// candidate rows.
const scanMultiplier = 10

// Relevance tiers for the scored fallback. An exact name beats an exact
// code, prefixes beat substrings.
const (
	scoreExactName  = 100.0
	scoreExactCode  = 90.0
	scoreNamePrefix = 70.0
	scoreCodePrefix = 60.0
	scoreSubstring  = 40.0
)

// RepoSource hands out the ready store; the durable handle implements it.
type RepoSource interface {
	Acquire(ctx context.Context) (store.Repository, error)
}

type Engine struct {
	repos RepoSource
	cache cache.QueryCache
}

func NewEngine(repos RepoSource, cacheStore cache.QueryCache) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopQueryCache{}
	}
	return &Engine{repos: repos, cache: cacheStore}
}

// SearchItems resolves a free-text term to at most limit non-disabled
// items. Single-word terms try the barcode index, then code prefix, then
// name prefix; the first strategy with any hit wins. Multi-word terms and
// single-word misses fall through to a bounded scored scan.
func (e *Engine) SearchItems(ctx context.Context, term string, limit int) []domain.Item {
	if limit <= 0 {
		limit = 20
	}
	term = strings.TrimSpace(term)

	cacheKey := fmt.Sprintf("%s%s:%d", cache.PrefixSearch, strings.ToLower(term), limit)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		var items []domain.Item
		if err := json.Unmarshal(cached, &items); err == nil {
			return items
		}
	}

	items, err := e.lookup(ctx, term, limit)
	if err != nil {
		log.Printf("[search] lookup %q failed: %v", term, err)
		return []domain.Item{}
	}
	if items == nil {
		items = []domain.Item{}
	}

	if encoded, err := json.Marshal(items); err == nil {
		if err := e.cache.Put(ctx, cacheKey, encoded); err != nil {
			log.Printf("[search] cache put failed: %v", err)
		}
	}
	return items
}

func (e *Engine) lookup(ctx context.Context, term string, limit int) ([]domain.Item, error) {
	repo, err := e.repos.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if term == "" {
		return repo.ListItems(ctx, limit)
	}

	words := strings.Fields(term)
	if len(words) == 1 {
		for _, strategy := range []func(context.Context, string, int) ([]domain.Item, error){
			repo.ItemsByBarcode,
			repo.ItemsByCodePrefix,
			repo.ItemsByNamePrefix,
		} {
			items, err := strategy(ctx, term, limit)
			if err != nil {
				return nil, err
			}
			if len(items) > 0 {
				return items, nil
			}
		}
	}

	return e.scoredScan(ctx, repo, term, words, limit)
}

// scoredScan ranks a bounded sample of the catalog by relevance to the
// term and truncates to limit.
func (e *Engine) scoredScan(ctx context.Context, repo store.Repository, term string, words []string, limit int) ([]domain.Item, error) {
	sample, err := repo.SampleItems(ctx, limit*scanMultiplier)
	if err != nil {
		return nil, err
	}

	type scored struct {
		item  domain.Item
		score float64
	}
	lowered := strings.ToLower(term)
	matches := make([]scored, 0, limit)
	for _, item := range sample {
		score := scoreItem(item, lowered, words)
		if score <= 0 {
			continue
		}
		matches = append(matches, scored{item: item, score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	items := make([]domain.Item, 0, len(matches))
	for _, m := range matches {
		items = append(items, m.item)
	}
	return items, nil
}

func scoreItem(item domain.Item, term string, words []string) float64 {
	name := strings.ToLower(item.ItemName)
	code := strings.ToLower(item.ItemCode)

	switch {
	case name == term:
		return scoreExactName
	case code == term:
		return scoreExactCode
	case strings.HasPrefix(name, term):
		return scoreNamePrefix
	case strings.HasPrefix(code, term):
		return scoreCodePrefix
	}

	haystack := name + " " + code + " " + strings.ToLower(item.Description)
	for _, word := range words {
		if !strings.Contains(haystack, strings.ToLower(word)) {
			return 0
		}
	}
	return scoreSubstring
}
