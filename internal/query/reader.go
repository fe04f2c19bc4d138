package query

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"frintab/internal/cache"
	"frintab/internal/core"
	"frintab/internal/gateway"
)

// Source is the remote read surface the Reader caches.
type Source interface {
	gateway.GroupReader
	gateway.TransactionReader
}

// ReaderOptions sizes the caches. A zero TTL disables caching.
type ReaderOptions struct {
	TTL     time.Duration
	Size    int
	Manager *cache.Manager
}

// Reader serves reads through a keyed TTL+LRU cache. Errors are never cached.
type Reader struct {
	src     Source
	groups  *cache.LRUCache[[]core.Group]
	details *cache.LRUCache[core.Group]
	pages   *cache.LRUCache[core.Page]

	mu     sync.Mutex
	totals map[string]pageTotals
}

// pageTotals is what every page of one group and page size must agree on.
type pageTotals struct {
	pages        int
	transactions int
	balance      decimal.Decimal
}

func totalsOf(p core.Page) pageTotals {
	return pageTotals{pages: p.TotalPages, transactions: p.TotalTransactions, balance: p.Group.TotalBalance}
}

func (t pageTotals) equal(o pageTotals) bool {
	return t.pages == o.pages && t.transactions == o.transactions && t.balance.Equal(o.balance)
}

var _ Source = (*Reader)(nil)

func NewReader(src Source, opts ReaderOptions) *Reader {
	r := &Reader{
		src:     src,
		groups:  cache.NewLRUCache[[]core.Group](1, opts.TTL),
		details: cache.NewLRUCache[core.Group](opts.Size, opts.TTL),
		pages:   cache.NewLRUCache[core.Page](opts.Size, opts.TTL),
		totals:  map[string]pageTotals{},
	}
	if opts.Manager != nil {
		opts.Manager.Register(r.groups)
		opts.Manager.Register(r.details)
		opts.Manager.Register(r.pages)
	}
	return r
}

func (r *Reader) ListMyGroups(ctx context.Context) ([]core.Group, error) {
	key := GroupList().cacheKey(0)
	if groups, ok := r.groups.Get(key); ok {
		return cloneGroups(groups), nil
	}
	groups, err := r.src.ListMyGroups(ctx)
	if err != nil {
		return nil, err
	}
	r.groups.Set(key, cloneGroups(groups))
	return groups, nil
}

func (r *Reader) GetGroup(ctx context.Context, groupID string) (core.Group, error) {
	key := GroupDetail(groupID).cacheKey(0)
	if g, ok := r.details.Get(key); ok {
		return g, nil
	}
	g, err := r.src.GetGroup(ctx, groupID)
	if err != nil {
		return core.Group{}, err
	}
	r.details.Set(key, g)
	return g, nil
}

func (r *Reader) GetTransactionPage(ctx context.Context, groupID string, page, limit int) (core.Page, error) {
	key := TransactionPage(groupID, page).cacheKey(limit)
	if p, ok := r.pages.Get(key); ok {
		return p, nil
	}
	p, err := r.src.GetTransactionPage(ctx, groupID, page, limit)
	if err != nil {
		return core.Page{}, err
	}
	r.dropIfMoved(groupID, limit, p)
	r.pages.Set(key, p)
	return p, nil
}

// dropIfMoved evicts the group's other cached pages when a fresh page
// reports different totals, so paging back never shows an older balance.
func (r *Reader) dropIfMoved(groupID string, limit int, fresh core.Page) {
	id := groupID + "|" + strconv.Itoa(limit)
	now := totalsOf(fresh)

	r.mu.Lock()
	prev, seen := r.totals[id]
	r.totals[id] = now
	r.mu.Unlock()

	if seen && !prev.equal(now) {
		r.Evict(TransactionPages(groupID))
	}
}

// Evict drops every cached entry matched by keys and reports how many went.
func (r *Reader) Evict(keys ...Key) int {
	match := func(cached string) bool {
		k, ok := parseCacheKey(cached)
		if !ok {
			return true
		}
		for _, want := range keys {
			if want.Matches(k) {
				return true
			}
		}
		return false
	}
	return r.groups.DeleteFunc(match) + r.details.DeleteFunc(match) + r.pages.DeleteFunc(match)
}

// Purge empties every cache, e.g. when the signed-in user changes.
func (r *Reader) Purge() {
	all := func(string) bool { return true }
	r.groups.DeleteFunc(all)
	r.details.DeleteFunc(all)
	r.pages.DeleteFunc(all)

	r.mu.Lock()
	r.totals = map[string]pageTotals{}
	r.mu.Unlock()
}

func cloneGroups(in []core.Group) []core.Group {
	if in == nil {
		return nil
	}
	out := make([]core.Group, len(in))
	copy(out, in)
	return out
}
