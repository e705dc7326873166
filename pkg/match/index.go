package match

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"officeradar/pkg/model"
)

// variant is one matchable name form of a company: its primary name or one
// of its aliases.
type variant struct {
	companyID   int64
	companyName string
	raw         string
	source      string // "company_name" or "alias"
	norm        string
	tokens      []string
	tokenSet    map[string]bool
}

// Index holds normalized company name variants for candidate lookup.
type Index struct {
	variants   []variant
	exactIndex map[string][]int
	tokenIndex map[string][]int
	companies  int
}

// NewIndex builds an Index over the companies' names and aliases. Variants
// that normalize to nothing, or duplicate another variant of the same
// company, are skipped.
func NewIndex(companies []model.Company) *Index {
	idx := &Index{
		exactIndex: make(map[string][]int),
		tokenIndex: make(map[string][]int),
		companies:  len(companies),
	}
	for _, c := range companies {
		seen := map[string]bool{}
		idx.add(&c, c.CompanyName, "company_name", seen)
		if c.KnownAliases == nil {
			continue
		}
		for _, alias := range strings.Split(*c.KnownAliases, "|") {
			alias = strings.TrimSpace(alias)
			if alias == "" {
				continue
			}
			idx.add(&c, alias, "alias", seen)
		}
	}
	return idx
}

func (idx *Index) add(c *model.Company, raw, source string, seen map[string]bool) {
	normalized := Normalize(raw)
	if normalized == "" || seen[normalized] {
		return
	}
	seen[normalized] = true

	tokens := strings.Fields(normalized)
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}

	i := len(idx.variants)
	idx.variants = append(idx.variants, variant{
		companyID:   c.ID,
		companyName: c.CompanyName,
		raw:         raw,
		source:      source,
		norm:        normalized,
		tokens:      tokens,
		tokenSet:    set,
	})
	idx.exactIndex[normalized] = append(idx.exactIndex[normalized], i)
	for t := range set {
		idx.tokenIndex[t] = append(idx.tokenIndex[t], i)
	}
}

// Size returns the number of indexed variants.
func (idx *Index) Size() int {
	return len(idx.variants)
}

// Companies returns the number of companies the index was built from.
func (idx *Index) Companies() int {
	return idx.companies
}

// Provider builds the company index on first use and caches it until
// invalidated. A CSV upload invalidates the cache so the next refresh or
// read sees the new companies.
type Provider struct {
	mu     sync.Mutex
	idx    *Index
	loader func(ctx context.Context) ([]model.Company, error)
}

// NewProvider creates a Provider that loads companies through loader.
func NewProvider(loader func(ctx context.Context) ([]model.Company, error)) *Provider {
	return &Provider{loader: loader}
}

// Index returns the cached index, building it if necessary.
func (p *Provider) Index(ctx context.Context) (*Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx == nil {
		companies, err := p.loader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load companies: %w", err)
		}
		p.idx = NewIndex(companies)
	}
	return p.idx, nil
}

// Invalidate drops the cached index so the next call to Index rebuilds it.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.idx = nil
	p.mu.Unlock()
}
