package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/albapepper/gamedeals-data/internal/provider"
)

// ConfigurationError reports invalid pipeline settings. It is fatal to the
// whole batch and is raised before any record is read or written.
type ConfigurationError struct {
	Problems []string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error: " + strings.Join(e.Problems, "; ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Pipeline holds the options that shape a run. Zero values in a config file
// keep the defaults; near_duplicate_threshold is a pointer so 0 can disable
// the check.
type Pipeline struct {
	Sources             []string           `json:"sources"`
	Inputs              map[string]string  `json:"inputs"`
	CurrencyRates       map[string]float64 `json:"currency_rates"`
	ExchangeRates       map[string]float64 `json:"exchange_rates"`
	EURToUSD            float64            `json:"eur_to_usd"`
	DiscountThreshold   float64            `json:"discount_threshold"`
	PriceTierBoundaries []float64          `json:"price_tier_boundaries"`
	DuplicateKey        []string           `json:"duplicate_key"`
	NearDupThreshold    *float64           `json:"near_duplicate_threshold"`
	AsOf                string             `json:"as_of"`
	Workers             int                `json:"workers"`
}

// DefaultPipeline returns the built-in options.
func DefaultPipeline() Pipeline {
	nearDup := 0.97
	sources := make([]string, 0, len(provider.AllSources))
	for _, id := range provider.AllSources {
		sources = append(sources, string(id))
	}
	return Pipeline{
		Sources: sources,
		Inputs:  map[string]string{},
		CurrencyRates: map[string]float64{
			string(provider.SourceSteam):     0.9259,
			string(provider.SourceEpicGames): 0.0111,
			string(provider.SourceXbox):      0.9259,
			string(provider.SourceGOG):       0.9259,
			string(provider.SourceLoaded):    1.17,
		},
		ExchangeRates: map[string]float64{
			string(provider.USD): 0.9259,
			string(provider.GBP): 1.17,
			string(provider.INR): 0.0111,
		},
		EURToUSD:            1.08,
		DiscountThreshold:   25,
		PriceTierBoundaries: []float64{0, 10, 30, 60},
		DuplicateKey:        []string{"title", "source"},
		NearDupThreshold:    &nearDup,
		Workers:             2,
	}
}

// ReadPipeline loads pipeline options from a JSON5 file merged over the
// defaults. A sibling "<name>.local.<ext>" file, when present, overrides the
// base file. An empty path returns the defaults.
func ReadPipeline(path string) (Pipeline, error) {
	out := DefaultPipeline()
	if path == "" {
		return out, nil
	}

	base, err := readPipelineFile(path)
	if err != nil {
		return out, &ConfigurationError{Problems: []string{"read " + path}, Err: err}
	}
	if err := mergePipeline(&out, base); err != nil {
		return out, &ConfigurationError{Problems: []string{"merge " + path}, Err: err}
	}

	local := localPath(path)
	override, err := readPipelineFile(local)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return out, &ConfigurationError{Problems: []string{"read " + local}, Err: err}
	default:
		if err := mergePipeline(&out, override); err != nil {
			return out, &ConfigurationError{Problems: []string{"merge " + local}, Err: err}
		}
		slog.Info("merging pipeline config with local overrides", "local", local)
	}
	return out, nil
}

// mergePipeline overlays src on dst. mergo treats a dereferenced 0 as empty,
// so an explicit near_duplicate_threshold is copied by hand.
func mergePipeline(dst *Pipeline, src Pipeline) error {
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return err
	}
	if src.NearDupThreshold != nil {
		v := *src.NearDupThreshold
		dst.NearDupThreshold = &v
	}
	return nil
}

func readPipelineFile(path string) (Pipeline, error) {
	var p Pipeline
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json5.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// localPath maps "dir/pipeline.json5" to "dir/pipeline.local.json5".
func localPath(path string) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".local"+ext)
}

// ApplyEnv layers process settings over the file options.
func (p *Pipeline) ApplyEnv(cfg *Config) {
	if cfg.Workers > 0 {
		p.Workers = cfg.Workers
	}
	if len(cfg.Sources) > 0 {
		p.Sources = append([]string(nil), cfg.Sources...)
	}
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// Validate checks every setting and reports all problems at once.
func (p Pipeline) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(p.Sources) == 0 {
		add("no sources enabled")
	}
	seen := make(map[provider.SourceID]bool)
	for _, s := range p.Sources {
		id, ok := provider.ParseSourceID(s)
		if !ok {
			add("unknown source %q", s)
			continue
		}
		if seen[id] {
			add("source %q listed twice", s)
			continue
		}
		seen[id] = true
		m, _ := provider.Lookup(id)
		if m.NeedsConversion() {
			if r, ok := p.sourceRates()[id]; !ok || r <= 0 {
				add("missing currency rate for source %q (%s)", id, m.NativeCurrency)
			}
		}
	}

	for s := range p.Inputs {
		if _, ok := provider.ParseSourceID(s); !ok {
			add("input override for unknown source %q", s)
		}
	}
	for s, r := range p.CurrencyRates {
		if _, ok := provider.ParseSourceID(s); !ok {
			add("currency rate for unknown source %q", s)
		} else if r <= 0 {
			add("currency rate for %q must be positive", s)
		}
	}
	for c, r := range p.ExchangeRates {
		switch provider.Currency(strings.ToUpper(c)) {
		case provider.EUR, provider.USD, provider.GBP, provider.INR:
		default:
			add("exchange rate for unsupported currency %q", c)
		}
		if r <= 0 {
			add("exchange rate for %q must be positive", c)
		}
	}

	if p.EURToUSD <= 0 {
		add("eur_to_usd must be positive")
	}
	if p.DiscountThreshold < 0 || p.DiscountThreshold > 100 {
		add("discount_threshold %.2f outside [0, 100]", p.DiscountThreshold)
	}
	if err := validateBoundaries(p.PriceTierBoundaries); err != "" {
		add("%s", err)
	}

	if len(p.DuplicateKey) == 0 {
		add("duplicate_key is empty")
	}
	keyCols := make(map[string]bool)
	for _, c := range p.DuplicateKey {
		if !provider.IsColumn(c) {
			add("duplicate_key column %q is not a canonical column", c)
		}
		if keyCols[c] {
			add("duplicate_key column %q listed twice", c)
		}
		keyCols[c] = true
	}

	if p.NearDupThreshold != nil && (*p.NearDupThreshold < 0 || *p.NearDupThreshold > 1) {
		add("near_duplicate_threshold %.2f outside [0, 1]", *p.NearDupThreshold)
	}
	if p.AsOf != "" {
		if _, err := time.Parse("2006-01-02", p.AsOf); err != nil {
			add("as_of %q is not a YYYY-MM-DD date", p.AsOf)
		}
	}
	if p.Workers < 1 {
		add("workers must be at least 1")
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func validateBoundaries(b []float64) string {
	if len(b) != 4 {
		return fmt.Sprintf("price_tier_boundaries needs 4 values, got %d", len(b))
	}
	if b[0] < 0 {
		return "price_tier_boundaries must start at or above 0"
	}
	for i := 1; i < len(b); i++ {
		if b[i] <= b[i-1] {
			return "price_tier_boundaries must be strictly increasing"
		}
	}
	return ""
}

// --------------------------------------------------------------------------
// Typed accessors: call only after Validate succeeds
// --------------------------------------------------------------------------

// SourceIDs returns the enabled sources in configured order.
func (p Pipeline) SourceIDs() []provider.SourceID {
	ids := make([]provider.SourceID, 0, len(p.Sources))
	for _, s := range p.Sources {
		if id, ok := provider.ParseSourceID(s); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// InputFile returns the configured input override for a source, if any.
func (p Pipeline) InputFile(id provider.SourceID) (string, bool) {
	for s, path := range p.Inputs {
		if sid, ok := provider.ParseSourceID(s); ok && sid == id {
			return path, true
		}
	}
	return "", false
}

// AsOfDate returns the preorder reference date, falling back to now.
func (p Pipeline) AsOfDate(now time.Time) time.Time {
	if t, err := time.Parse("2006-01-02", p.AsOf); err == nil {
		return t
	}
	return now
}

// NearDuplicateThreshold returns the title-similarity threshold; 0 disables.
func (p Pipeline) NearDuplicateThreshold() float64 {
	if p.NearDupThreshold == nil {
		return 0
	}
	return *p.NearDupThreshold
}

// NormalizerOptions converts the rate tables for the provider package.
func (p Pipeline) NormalizerOptions(asOf time.Time) provider.Options {
	opts := provider.Options{
		Rates:         make(map[provider.SourceID]float64, len(p.CurrencyRates)),
		ExchangeRates: make(map[provider.Currency]float64, len(p.ExchangeRates)),
		EURToUSD:      p.EURToUSD,
		AsOf:          asOf,
	}
	for id, r := range p.sourceRates() {
		opts.Rates[id] = r
	}
	for c, r := range p.ExchangeRates {
		opts.ExchangeRates[provider.Currency(strings.ToUpper(c))] = r
	}
	return opts
}

// sourceRates keys the currency rates by resolved source identifier.
func (p Pipeline) sourceRates() map[provider.SourceID]float64 {
	rates := make(map[provider.SourceID]float64, len(p.CurrencyRates))
	for s, r := range p.CurrencyRates {
		if id, ok := provider.ParseSourceID(s); ok {
			rates[id] = r
		}
	}
	return rates
}
