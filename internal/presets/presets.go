// Package presets loads named filter parameter bundles and matches
// candidate metrics against them, independent of the pipeline's own
// active thresholds.
package presets

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/viper"

	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/models"
)

// Matcher evaluates candidate metrics against the loaded presets.
// Matching never mutates a preset; presets are read-only configuration.
type Matcher struct {
	configDir string

	mu          sync.RWMutex
	presets     map[string]models.FilterParams
	defaultName string
}

// Load reads presets.toml from the config directory and returns a Matcher.
// The file must define at least one preset and a default_preset key.
func Load(configDir string) (*Matcher, error) {
	m := &Matcher{configDir: configDir}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the presets file, replacing the loaded set on success.
func (m *Matcher) Reload() error {
	v := viper.New()
	v.SetConfigName("presets")
	v.SetConfigType("toml")
	v.AddConfigPath(m.configDir)

	if err := v.ReadInConfig(); err != nil {
		return apperrors.Wrap(err, "reading presets.toml")
	}

	raw := map[string]models.FilterParams{}
	if err := v.UnmarshalKey("presets", &raw); err != nil {
		return apperrors.Wrap(err, "parsing presets")
	}
	if len(raw) == 0 {
		return apperrors.NewValidationError("presets", nil, "no presets defined")
	}
	for name, p := range raw {
		if err := p.Validate(); err != nil {
			return apperrors.NewValidationError("presets."+name, nil, err.Error())
		}
	}

	defaultName := v.GetString("default_preset")
	if defaultName == "" {
		return apperrors.NewValidationError("default_preset", "", "must be set")
	}
	if _, ok := raw[defaultName]; !ok {
		return apperrors.NewValidationError("default_preset", defaultName, "names an unknown preset")
	}

	m.mu.Lock()
	m.presets = raw
	m.defaultName = defaultName
	m.mu.Unlock()

	return nil
}

// Default returns the configured default preset name.
func (m *Matcher) Default() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// Names returns all loaded preset names, sorted.
func (m *Matcher) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.presets))
	for name := range m.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the threshold set for a named preset. Unknown names are a
// configuration error, not a silent empty match.
func (m *Matcher) Get(name string) (models.FilterParams, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.presets[name]
	if !ok {
		return models.FilterParams{}, apperrors.Wrapf(apperrors.ErrPresetNotFound, "preset %q", name)
	}
	return p, nil
}

// Match reports whether the candidate's metrics satisfy every one of the
// preset's seven threshold predicates.
func (m *Matcher) Match(c models.Candidate, name string) (bool, error) {
	p, err := m.Get(name)
	if err != nil {
		return false, err
	}
	for _, check := range checks(c, p) {
		if !check.pass {
			return false, nil
		}
	}
	return true, nil
}

// AllMatches returns the sorted set of preset names the candidate matches.
func (m *Matcher) AllMatches(c models.Candidate) []string {
	matched := []string{}
	for _, name := range m.Names() {
		ok, err := m.Match(c, name)
		if err == nil && ok {
			matched = append(matched, name)
		}
	}
	return matched
}

// MismatchReasons returns one human-readable line per failed predicate,
// with the criterion name, actual value and required bound. Diagnostics
// only; it never affects matching.
func (m *Matcher) MismatchReasons(c models.Candidate, name string) ([]string, error) {
	p, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	var reasons []string
	for _, check := range checks(c, p) {
		if !check.pass {
			reasons = append(reasons, fmt.Sprintf("%s: %s (required: %s)", check.name, check.actual, check.required))
		}
	}
	return reasons, nil
}

// dteBound renders the DTE range; a zero MaxDTE means unbounded.
func dteBound(p models.FilterParams) string {
	if p.MaxDTE == 0 {
		return fmt.Sprintf(">=%d", p.MinDTE)
	}
	return fmt.Sprintf("%d-%d", p.MinDTE, p.MaxDTE)
}

type criterion struct {
	name     string
	actual   string
	required string
	pass     bool
}

// checks builds the seven predicate results for a candidate against a
// threshold set. Predicates are independent, so evaluation order cannot
// change the overall outcome.
func checks(c models.Candidate, p models.FilterParams) []criterion {
	return []criterion{
		{
			name:     "Delta",
			actual:   fmt.Sprintf("%.3f", c.Delta),
			required: fmt.Sprintf("%g-%g", p.MinDelta, p.MaxDelta),
			pass:     p.MinDelta <= c.Delta && c.Delta <= p.MaxDelta,
		},
		{
			name:     "Intrinsic %",
			actual:   fmt.Sprintf("%.2f%%", c.IntrinsicPct*100),
			required: fmt.Sprintf(">=%g", p.MinIntrinsicPct),
			pass:     c.IntrinsicPct >= p.MinIntrinsicPct,
		},
		{
			name:     "Extrinsic %",
			actual:   fmt.Sprintf("%.2f%%", c.ExtrinsicPct*100),
			required: fmt.Sprintf("<=%g", p.MaxExtrinsicPct),
			pass:     c.ExtrinsicPct <= p.MaxExtrinsicPct,
		},
		{
			name:     "Days to Expiration",
			actual:   fmt.Sprintf("%d", c.DTE),
			required: dteBound(p),
			pass:     p.MinDTE <= c.DTE && (p.MaxDTE == 0 || c.DTE <= p.MaxDTE),
		},
		{
			name:     "Implied Volatility",
			actual:   fmt.Sprintf("%.2f%%", c.IV*100),
			required: fmt.Sprintf("<=%g", p.MaxIV),
			pass:     c.IV <= p.MaxIV,
		},
		{
			name:     "Bid-Ask Spread %",
			actual:   fmt.Sprintf("%.2f%%", c.SpreadPct*100),
			required: fmt.Sprintf("<=%g", p.MaxSpreadPct),
			pass:     c.SpreadPct <= p.MaxSpreadPct,
		},
		{
			name:     "Open Interest",
			actual:   fmt.Sprintf("%d", c.OpenInterest),
			required: fmt.Sprintf(">=%d", p.MinOI),
			pass:     c.OpenInterest >= p.MinOI,
		},
	}
}
