package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/ahrav/go-bomcheck/internal/domain"
	"github.com/ahrav/go-bomcheck/internal/ports"
)

// Step is one scripted outcome of a provider call.
type Step struct {
	Offers []domain.CatalogOffer
	Err    error
}

// Respond returns a successful step.
func Respond(offers ...domain.CatalogOffer) Step { return Step{Offers: offers} }

// Fail returns a failing step.
func Fail(err error) Step { return Step{Err: err} }

var _ ports.CatalogProvider = (*ScriptedProvider)(nil)

// ScriptedProvider implements ports.CatalogProvider with per-MPN scripts
// for deterministic orchestrator tests. Each call consumes the next step of
// the MPN's script; the last step repeats once the script runs out. MPNs
// without a script use the default script, and with no default a lookup
// returns no offers.
type ScriptedProvider struct {
	id string

	mu       sync.Mutex
	scripts  map[string][]Step
	fallback []Step
	keyword  []Step
	lookups  []string
	keywords []string
}

// NewScriptedProvider creates a provider with no scripts.
func NewScriptedProvider(id string) *ScriptedProvider {
	return &ScriptedProvider{
		id:      id,
		scripts: make(map[string][]Step),
	}
}

// OnLookup scripts the lookups of one MPN.
func (p *ScriptedProvider) OnLookup(mpn string, steps ...Step) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[strings.ToUpper(mpn)] = steps
	return p
}

// OnAnyLookup scripts lookups of every MPN without its own script.
func (p *ScriptedProvider) OnAnyLookup(steps ...Step) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = steps
	return p
}

// OnKeyword scripts keyword searches.
func (p *ScriptedProvider) OnKeyword(steps ...Step) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyword = steps
	return p
}

// ID implements ports.CatalogProvider.
func (p *ScriptedProvider) ID() string { return p.id }

// Lookup implements ports.CatalogProvider.
func (p *ScriptedProvider) Lookup(ctx context.Context, q domain.PartQuery) ([]domain.CatalogOffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := strings.ToUpper(q.ManufacturerPartNumber)
	p.lookups = append(p.lookups, key)

	if script, ok := p.scripts[key]; ok {
		step := next(&script)
		p.scripts[key] = script
		return p.stamp(step.Offers), step.Err
	}
	if len(p.fallback) > 0 {
		step := next(&p.fallback)
		return p.stamp(step.Offers), step.Err
	}
	return nil, nil
}

// SearchKeyword implements ports.CatalogProvider.
func (p *ScriptedProvider) SearchKeyword(ctx context.Context, keyword, _ string, limit int) ([]domain.CatalogOffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.keywords = append(p.keywords, keyword)
	if len(p.keyword) == 0 {
		return nil, nil
	}
	step := next(&p.keyword)
	offers := p.stamp(step.Offers)
	if limit > 0 && len(offers) > limit {
		offers = offers[:limit]
	}
	return offers, step.Err
}

// LookupCount returns the number of Lookup calls.
func (p *ScriptedProvider) LookupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lookups)
}

// LookupsFor returns the number of Lookup calls for one MPN.
func (p *ScriptedProvider) LookupsFor(mpn string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.lookups {
		if k == strings.ToUpper(mpn) {
			n++
		}
	}
	return n
}

// KeywordCount returns the number of SearchKeyword calls.
func (p *ScriptedProvider) KeywordCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keywords)
}

func (p *ScriptedProvider) stamp(offers []domain.CatalogOffer) []domain.CatalogOffer {
	if offers == nil {
		return nil
	}
	out := make([]domain.CatalogOffer, len(offers))
	for i, o := range offers {
		if o.ProviderID == "" {
			o.ProviderID = p.id
		}
		out[i] = o
	}
	return out
}

// next pops the head of script, keeping the last step in place.
func next(script *[]Step) Step {
	s := *script
	if len(s) == 0 {
		return Step{}
	}
	step := s[0]
	if len(s) > 1 {
		*script = s[1:]
	}
	return step
}
