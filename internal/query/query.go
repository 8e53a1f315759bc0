// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package query filters, sorts and paginates normalized torrents.
package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/autobrr/unitorrent/internal/domain"
)

// DefaultSort applies when the requested sort key is empty or unknown.
const DefaultSort = "position"

const programCacheTTL = 10 * time.Minute

// Options selects and orders a torrent list.
type Options struct {
	Hashes     []string
	Filter     domain.Filter
	Sort       string
	Reverse    bool
	SearchTerm string
	// Fuzzy matches search tokens against the name as ordered subsequences.
	Fuzzy bool
	// Expr is a boolean expression over the canonical field names.
	Expr        string
	PerPage     int
	CurrentPage int

	Raw   bool
	Fresh bool
}

// Result is a page of torrents together with the query that produced it.
type Result struct {
	Filter      string           `json:"filter"`
	Reverse     bool             `json:"reverse"`
	SearchTerm  string           `json:"searchTerm"`
	Fresh       bool             `json:"fresh"`
	Hashes      []string         `json:"hashes"`
	Sort        string           `json:"sort"`
	TimestampS  int64            `json:"timestampS"`
	Total       int              `json:"total"`
	Torrents    []domain.Torrent `json:"torrents"`
	PerPage     int              `json:"perPage"`
	CurrentPage int              `json:"currentPage"`
}

// Engine applies queries. It caches compiled expressions and is safe for
// concurrent use.
type Engine struct {
	programs *ttlcache.Cache[string, *vm.Program]
}

func NewEngine() *Engine {
	return &Engine{
		programs: ttlcache.New(ttlcache.Options[string, *vm.Program]{}.SetDefaultTTL(programCacheTTL)),
	}
}

func (e *Engine) Close() {
	e.programs.Close()
}

// Apply runs hashes, search, filter, expr, sort and pagination in that order.
// The input slice is not modified.
func (e *Engine) Apply(torrents []domain.Torrent, timestampS int64, opts Options) (Result, error) {
	out := slices.Clone(torrents)

	out = filterHashes(out, opts.Hashes)
	out = filterSearch(out, opts.SearchTerm, opts.Fuzzy)
	out = slices.DeleteFunc(out, func(t domain.Torrent) bool { return !opts.Filter.Match(&t) })

	if strings.TrimSpace(opts.Expr) != "" {
		var err error
		if out, err = e.filterExpr(out, opts.Expr); err != nil {
			return Result{}, err
		}
	}

	sortKey := SortKey(opts.Sort)
	Sort(out, sortKey, opts.Reverse)

	total := len(out)
	page := max(opts.CurrentPage, 1)
	out = Paginate(out, opts.PerPage, page)
	if out == nil {
		out = []domain.Torrent{}
	}

	return Result{
		Filter:      opts.Filter.String(),
		Reverse:     opts.Reverse,
		SearchTerm:  opts.SearchTerm,
		Fresh:       opts.Fresh,
		Hashes:      opts.Hashes,
		Sort:        sortKey,
		TimestampS:  timestampS,
		Total:       total,
		Torrents:    out,
		PerPage:     opts.PerPage,
		CurrentPage: page,
	}, nil
}

func filterHashes(torrents []domain.Torrent, hashes []string) []domain.Torrent {
	if len(hashes) == 0 {
		return torrents
	}
	return slices.DeleteFunc(torrents, func(t domain.Torrent) bool {
		for _, h := range hashes {
			if strings.EqualFold(h, t.Hash) || (t.HashV2 != "" && strings.EqualFold(h, t.HashV2)) {
				return false
			}
		}
		return true
	})
}

func filterSearch(torrents []domain.Torrent, term string, fuzzyMode bool) []domain.Torrent {
	tokens := strings.Fields(strings.ToLower(term))
	if len(tokens) == 0 {
		return torrents
	}

	return slices.DeleteFunc(torrents, func(t domain.Torrent) bool {
		name := strings.ToLower(t.Name)
		hash := strings.ToLower(t.Hash)
		hashV2 := strings.ToLower(t.HashV2)
		for _, token := range tokens {
			if fuzzyMode {
				if !fuzzy.MatchNormalizedFold(token, t.Name) {
					return true
				}
				continue
			}
			if !strings.Contains(name, token) && !strings.Contains(hash, token) && !strings.Contains(hashV2, token) {
				return true
			}
		}
		return false
	})
}

// exprEnv exposes the canonical fields under their canonical names.
func exprEnv(t *domain.Torrent) map[string]any {
	env := make(map[string]any, len(domain.TorrentFields))
	for _, name := range domain.TorrentFields {
		v, _ := t.TorrentField(name)
		switch n := v.(type) {
		case int64:
			env[name] = int(n)
		case domain.Status:
			env[name] = int(n)
		default:
			env[name] = v
		}
	}
	return env
}

func (e *Engine) program(input string) (*vm.Program, error) {
	if p, ok := e.programs.Get(input); ok {
		return p, nil
	}

	p, err := expr.Compile(input, expr.Env(exprEnv(&domain.Torrent{})), expr.AsBool())
	if err != nil {
		return nil, &domain.ConfigError{Field: "expr", Reason: err.Error()}
	}
	e.programs.Set(input, p, ttlcache.DefaultTTL)
	return p, nil
}

func (e *Engine) filterExpr(torrents []domain.Torrent, input string) ([]domain.Torrent, error) {
	p, err := e.program(input)
	if err != nil {
		return nil, err
	}

	var runErr error
	out := slices.DeleteFunc(torrents, func(t domain.Torrent) bool {
		if runErr != nil {
			return true
		}
		res, err := expr.Run(p, exprEnv(&t))
		if err != nil {
			runErr = errors.Wrapf(err, "could not evaluate expression for %s", t.Hash)
			return true
		}
		match, _ := res.(bool)
		return !match
	})
	if runErr != nil {
		log.Debug().Err(runErr).Str("expr", input).Msg("Expression filter failed")
		return nil, runErr
	}
	return out, nil
}

// SortKey resolves a requested sort key to a canonical field name.
func SortKey(key string) string {
	if key == "" {
		return DefaultSort
	}
	for _, name := range domain.TorrentFields {
		if strings.EqualFold(name, key) {
			return name
		}
	}
	return DefaultSort
}

// Sort orders torrents in place by a canonical field. The sort is stable and
// reverse flips the comparator, so ties keep their relative order.
func Sort(torrents []domain.Torrent, key string, reverse bool) {
	key = SortKey(key)
	kind, _ := domain.FieldKindOf(key)

	var compare func(a, b *domain.Torrent) int
	switch kind {
	case domain.KindString:
		collator := collate.New(language.Und, collate.IgnoreCase)
		compare = func(a, b *domain.Torrent) int {
			av, _ := a.TorrentField(key)
			bv, _ := b.TorrentField(key)
			return collator.CompareString(av.(string), bv.(string))
		}
	case domain.KindBool:
		compare = func(a, b *domain.Torrent) int {
			av, _ := a.TorrentField(key)
			bv, _ := b.TorrentField(key)
			return cmp.Compare(boolRank(av.(bool)), boolRank(bv.(bool)))
		}
	default:
		compare = func(a, b *domain.Torrent) int {
			av, _ := a.TorrentField(key)
			bv, _ := b.TorrentField(key)
			return cmp.Compare(number(av), number(bv))
		}
	}

	slices.SortStableFunc(torrents, func(a, b domain.Torrent) int {
		if reverse {
			return compare(&b, &a)
		}
		return compare(&a, &b)
	})
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func number(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case domain.Status:
		return float64(n)
	}
	return 0
}

// Paginate returns the 1-indexed page of items. A perPage below 1 disables
// pagination; pages past the end are empty.
func Paginate[T any](items []T, perPage, currentPage int) []T {
	if perPage < 1 {
		return items
	}
	currentPage = max(currentPage, 1)

	offset := (currentPage - 1) * perPage
	if offset >= len(items) {
		return items[:0]
	}
	end := min(offset+perPage, len(items))
	return items[offset:end]
}
