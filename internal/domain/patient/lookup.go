package patient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Seeded lookup ids. They match the rows inserted by the patient migration.
const (
	GenderMale    = 1
	GenderFemale  = 2
	GenderOther   = 3
	GenderUnknown = 4

	ActiveTrue  = 1
	ActiveFalse = 2
)

const (
	DefaultGender = "unknown"
	DefaultActive = false
)

// Lookup is one row of a code table.
type Lookup struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
}

// SeedGenders and SeedActives are the rows every database must carry.
var (
	SeedGenders = []Lookup{
		{ID: GenderMale, Code: "male"},
		{ID: GenderFemale, Code: "female"},
		{ID: GenderOther, Code: "other"},
		{ID: GenderUnknown, Code: "unknown"},
	}
	SeedActives = []Lookup{
		{ID: ActiveTrue, Code: "true"},
		{ID: ActiveFalse, Code: "false"},
	}
)

// Lookups is a point-in-time view of both code tables used to map between
// stored ids and API codes.
type Lookups struct {
	Genders []Lookup
	Actives []Lookup
}

// SeedLookups returns the built-in tables.
func SeedLookups() Lookups {
	return Lookups{Genders: SeedGenders, Actives: SeedActives}
}

func findByID(items []Lookup, id int) (Lookup, bool) {
	for _, l := range items {
		if l.ID == id {
			return l, true
		}
	}
	return Lookup{}, false
}

func findByCode(items []Lookup, code string) (Lookup, bool) {
	for _, l := range items {
		if strings.EqualFold(l.Code, code) {
			return l, true
		}
	}
	return Lookup{}, false
}

// GenderCode maps a gender id to its code, or DefaultGender.
func (l Lookups) GenderCode(id int) string {
	if g, ok := findByID(l.Genders, id); ok {
		return g.Code
	}
	return DefaultGender
}

// GenderID maps a code case-insensitively. Blank and unknown codes resolve
// to the id of DefaultGender.
func (l Lookups) GenderID(code string) int {
	code = strings.TrimSpace(code)
	if code != "" {
		if g, ok := findByCode(l.Genders, code); ok {
			return g.ID
		}
	}
	if g, ok := findByCode(l.Genders, DefaultGender); ok {
		return g.ID
	}
	return GenderUnknown
}

// Active maps an active id to its boolean. Missing rows and codes that are
// not booleans read as false.
func (l Lookups) Active(id int) bool {
	a, ok := findByID(l.Actives, id)
	if !ok {
		return false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(a.Code))
	if err != nil {
		return false
	}
	return v
}

// ActiveID maps an optional flag to its id. A nil flag means DefaultActive.
func (l Lookups) ActiveID(active *bool) int {
	v := DefaultActive
	if active != nil {
		v = *active
	}
	if a, ok := findByCode(l.Actives, strconv.FormatBool(v)); ok {
		return a.ID
	}
	if a, ok := findByCode(l.Actives, strconv.FormatBool(DefaultActive)); ok {
		return a.ID
	}
	return ActiveFalse
}

// LookupSource loads the code tables from storage.
type LookupSource interface {
	ListGenders(ctx context.Context) ([]Lookup, error)
	ListActives(ctx context.Context) ([]Lookup, error)
}

type cachedTable struct {
	items   []Lookup
	expires time.Time
}

const (
	gendersKey = "lookup_genders"
	activesKey = "lookup_actives"
)

// LookupCache keeps the code tables in memory for ttl. Concurrent misses
// for the same table share one load.
type LookupCache struct {
	src   LookupSource
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu     sync.RWMutex
	tables map[string]cachedTable
}

func NewLookupCache(src LookupSource, ttl time.Duration) *LookupCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LookupCache{
		src:    src,
		ttl:    ttl,
		now:    time.Now,
		tables: make(map[string]cachedTable),
	}
}

func (c *LookupCache) get(ctx context.Context, key string, load func(context.Context) ([]Lookup, error)) ([]Lookup, error) {
	c.mu.RLock()
	t, ok := c.tables[key]
	c.mu.RUnlock()
	if ok && c.now().Before(t.expires) {
		return t.items, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		c.mu.Lock()
		c.tables[key] = cachedTable{items: items, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Lookup), nil
}

func (c *LookupCache) Genders(ctx context.Context) ([]Lookup, error) {
	return c.get(ctx, gendersKey, c.src.ListGenders)
}

func (c *LookupCache) Actives(ctx context.Context) ([]Lookup, error) {
	return c.get(ctx, activesKey, c.src.ListActives)
}

// Snapshot returns both tables, loading whichever has expired.
func (c *LookupCache) Snapshot(ctx context.Context) (Lookups, error) {
	genders, err := c.Genders(ctx)
	if err != nil {
		return Lookups{}, err
	}
	actives, err := c.Actives(ctx)
	if err != nil {
		return Lookups{}, err
	}
	return Lookups{Genders: genders, Actives: actives}, nil
}

// Preload fills both tables.
func (c *LookupCache) Preload(ctx context.Context) error {
	_, err := c.Snapshot(ctx)
	return err
}

func (c *LookupCache) ResetGenders() {
	c.mu.Lock()
	delete(c.tables, gendersKey)
	c.mu.Unlock()
}

func (c *LookupCache) ResetActives() {
	c.mu.Lock()
	delete(c.tables, activesKey)
	c.mu.Unlock()
}
