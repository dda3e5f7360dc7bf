// Package scanner selects the trading window to run next.
//
// Windows follow a timestamp-slug naming scheme (prefix + aligned unix
// start time). The selector probes the deterministic slugs first and
// only falls back to a keyword search when none of them is eligible.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/polyscalp/polyscalp/internal/gamma"
	"github.com/polyscalp/polyscalp/internal/types"
)

// ErrNoEligibleWindow is returned when both the slug probe and the
// search fallback yield nothing. Callers back off and retry rather
// than treating it as fatal.
var ErrNoEligibleWindow = errors.New("no eligible window found")

// MetadataClient is the slice of the gamma client the scanner needs.
type MetadataClient interface {
	EventBySlug(ctx context.Context, slug string) (gamma.Event, error)
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Params configure the window probe.
type Params struct {
	SlugPrefix    string        // e.g. "btc-updown-15m-"
	Interval      time.Duration // window length, e.g. 15m
	Lookahead     int           // how many future intervals to probe
	FallbackQuery string
	FallbackLimit int

	// Eligibility bounds on time-to-expiry: a window is accepted when
	// MinTTE < tte <= MaxTTE.
	MinTTE time.Duration
	MaxTTE time.Duration
}

// DefaultParams returns the stock BTC 15-minute probe.
func DefaultParams() Params {
	return Params{
		SlugPrefix:    "btc-updown-15m-",
		Interval:      15 * time.Minute,
		Lookahead:     12,
		FallbackQuery: "btc updown 15m",
		FallbackLimit: 50,
		MinTTE:        2 * time.Minute,
		MaxTTE:        20 * time.Minute,
	}
}

// Selector picks the best eligible window.
type Selector struct {
	client MetadataClient
	params Params
	now    func() time.Time
}

// New creates a selector.
func New(client MetadataClient, params Params) *Selector {
	return &Selector{client: client, params: params, now: time.Now}
}

type candidate struct {
	tte  time.Duration
	spec types.MarketSpec
}

// Select returns the eligible window with the smallest time-to-expiry:
// the window closest to resolving while still legal is preferred, which
// keeps rotation fast. Malformed or out-of-bounds candidates are
// skipped, never fatal. Returns ErrNoEligibleWindow when both the
// deterministic probe and the search fallback come up empty.
func (s *Selector) Select(ctx context.Context) (types.MarketSpec, error) {
	now := s.now()

	intervalSec := int64(s.params.Interval / time.Second)
	start := (now.Unix() / intervalSec) * intervalSec

	var cands []candidate
	for i := 0; i < s.params.Lookahead; i++ {
		slug := fmt.Sprintf("%s%d", s.params.SlugPrefix, start+int64(i)*intervalSec)
		c, ok := s.evaluate(ctx, slug, now)
		if ok {
			cands = append(cands, c)
		}
	}

	if best, ok := pickBest(cands); ok {
		return best, nil
	}

	log.Debug().
		Str("query", s.params.FallbackQuery).
		Msg("slug probe found nothing, falling back to search")

	slugs, err := s.client.Search(ctx, s.params.FallbackQuery, s.params.FallbackLimit)
	if err != nil {
		return types.MarketSpec{}, fmt.Errorf("scanner: search fallback: %w", err)
	}

	cands = cands[:0]
	for _, slug := range slugs {
		c, ok := s.evaluate(ctx, slug, now)
		if ok {
			cands = append(cands, c)
		}
	}

	if best, ok := pickBest(cands); ok {
		return best, nil
	}
	return types.MarketSpec{}, ErrNoEligibleWindow
}

// evaluate fetches one slug and applies the eligibility filter.
func (s *Selector) evaluate(ctx context.Context, slug string, now time.Time) (candidate, bool) {
	event, err := s.client.EventBySlug(ctx, slug)
	if err != nil {
		log.Debug().Str("slug", slug).Err(err).Msg("reject: fetch failed")
		return candidate{}, false
	}

	spec, err := extract(event)
	if err != nil {
		log.Debug().Str("slug", slug).Err(err).Msg("reject: malformed metadata")
		return candidate{}, false
	}
	spec.Slug = slug

	tte := time.Unix(spec.EndTS, 0).Sub(now)
	if tte <= s.params.MinTTE {
		log.Debug().Str("slug", slug).Dur("tte", tte).Msg("reject: expires too soon")
		return candidate{}, false
	}
	if tte > s.params.MaxTTE {
		log.Debug().Str("slug", slug).Dur("tte", tte).Msg("reject: expires too late")
		return candidate{}, false
	}

	return candidate{tte: tte, spec: spec}, true
}

// pickBest returns the candidate with the smallest tte.
func pickBest(cands []candidate) (types.MarketSpec, bool) {
	if len(cands) == 0 {
		return types.MarketSpec{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.tte < best.tte {
			best = c
		}
	}
	return best.spec, true
}

// extract pulls the two CLOB token ids and the end timestamp out of a
// raw event. Anything short of that exact shape is a rejection.
func extract(event gamma.Event) (types.MarketSpec, error) {
	if len(event.Markets) == 0 {
		return types.MarketSpec{}, fmt.Errorf("no markets in event")
	}
	m := event.Markets[0]

	ids, err := m.TokenIDs()
	if err != nil {
		return types.MarketSpec{}, err
	}
	if len(ids) < 2 {
		return types.MarketSpec{}, fmt.Errorf("need 2 token ids, have %d", len(ids))
	}

	endDate := m.EndDate
	if endDate == "" {
		endDate = event.EndDate
	}
	if endDate == "" {
		return types.MarketSpec{}, fmt.Errorf("missing endDate")
	}

	end, err := time.Parse(time.RFC3339, endDate)
	if err != nil {
		return types.MarketSpec{}, fmt.Errorf("bad endDate %q: %w", endDate, err)
	}

	return types.MarketSpec{
		YesAsset: ids[0],
		NoAsset:  ids[1],
		EndTS:    end.Unix(),
	}, nil
}
