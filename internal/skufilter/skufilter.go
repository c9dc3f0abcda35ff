// Package skufilter implements the SKU allow/deny predicate: a
// short-circuit evaluation over format, deny/allow lists, and deny/allow
// regex patterns, memoized with an LRU cache (hashicorp/golang-lru/v2).
package skufilter

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stage names a point in the evaluation pipeline, replacing the
// duck-typed "reason" strings with a small closed set.
type Stage string

const (
	StageFormat       Stage = "format"
	StageDenyList     Stage = "deny_list"
	StageDenyPattern  Stage = "deny_pattern"
	StageAllowList    Stage = "allow_list"
	StageAllowPattern Stage = "allow_pattern"
	StageApproved     Stage = "approved"
)

// Decision is the outcome of ShouldProcess.
type Decision struct {
	Allowed bool
	Reason  string
	Stage   Stage
}

// Event carries the SKU under evaluation.
type Event struct {
	SKU string
}

// Config configures a Filter.
type Config struct {
	MinLen          int
	MaxLen          int
	DenyList        []string
	AllowList       []string
	DenyPatterns    []string
	AllowPatterns   []string
	CacheSize       int
}

// Filter evaluates whether a SKU should be processed.
type Filter struct {
	minLen, maxLen int
	denyList       map[string]struct{}
	allowList      map[string]struct{}
	denyPatterns   []*regexp.Regexp
	allowPatterns  []*regexp.Regexp
	cache          *lru.Cache[string, Decision]
}

// New compiles a Filter from Config. Returns an error if a pattern fails to
// compile.
func New(cfg Config) (*Filter, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	cache, err := lru.New[string, Decision](cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	f := &Filter{
		minLen:    cfg.MinLen,
		maxLen:    cfg.MaxLen,
		denyList:  toSet(cfg.DenyList),
		allowList: toSet(cfg.AllowList),
		cache:     cache,
	}

	for _, p := range cfg.DenyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		f.denyPatterns = append(f.denyPatterns, re)
	}
	for _, p := range cfg.AllowPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		f.allowPatterns = append(f.allowPatterns, re)
	}

	return f, nil
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[strings.ToLower(it)] = struct{}{}
	}
	return m
}

// ShouldProcess evaluates event.SKU through the short-circuit pipeline:
// format → deny list → deny patterns → allow list → allow patterns →
// approved. Results are memoized over the raw SKU string.
func (f *Filter) ShouldProcess(event Event) Decision {
	if d, ok := f.cache.Get(event.SKU); ok {
		return d
	}

	d := f.evaluate(event.SKU)
	f.cache.Add(event.SKU, d)
	return d
}

func (f *Filter) evaluate(sku string) Decision {
	if sku == "" {
		return Decision{Allowed: false, Reason: "empty sku", Stage: StageFormat}
	}
	if f.minLen > 0 && len(sku) < f.minLen {
		return Decision{Allowed: false, Reason: "below minimum length", Stage: StageFormat}
	}
	if f.maxLen > 0 && len(sku) > f.maxLen {
		return Decision{Allowed: false, Reason: "above maximum length", Stage: StageFormat}
	}

	lower := strings.ToLower(sku)

	if _, denied := f.denyList[lower]; denied {
		return Decision{Allowed: false, Reason: "sku in deny list", Stage: StageDenyList}
	}
	for _, re := range f.denyPatterns {
		if re.MatchString(sku) {
			return Decision{Allowed: false, Reason: "sku matches deny pattern: " + re.String(), Stage: StageDenyPattern}
		}
	}

	if len(f.allowList) > 0 {
		if _, allowed := f.allowList[lower]; !allowed {
			return Decision{Allowed: false, Reason: "sku not in allow list", Stage: StageAllowList}
		}
	}
	if len(f.allowPatterns) > 0 {
		matched := false
		for _, re := range f.allowPatterns {
			if re.MatchString(sku) {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Allowed: false, Reason: "sku matches no allow pattern", Stage: StageAllowPattern}
		}
	}

	return Decision{Allowed: true, Reason: "approved", Stage: StageApproved}
}
