package stats

import (
	"fmt"
	"strings"

	"metabostat/domain/core"
)

// ============================================================================
// MODEL SPECIFICATION
// ============================================================================

// InteractionMode selects which interaction terms a formula carries
type InteractionMode int

const (
	// InteractionNone fits main effects only
	InteractionNone InteractionMode = iota
	// InteractionPairwise adds every two-way interaction
	InteractionPairwise
	// InteractionFull adds every interaction order up to the number of predictors
	InteractionFull
)

// ParseInteractionMode accepts the canonical names plus the legacy
// "no"/"double"/"multiple" spellings used by older pipeline configs.
func ParseInteractionMode(s string) (InteractionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no":
		return InteractionNone, nil
	case "pairwise", "double":
		return InteractionPairwise, nil
	case "full", "multiple":
		return InteractionFull, nil
	}
	return 0, core.NewInvalidModeError(s)
}

func (m InteractionMode) String() string {
	switch m {
	case InteractionNone:
		return "none"
	case InteractionPairwise:
		return "pairwise"
	case InteractionFull:
		return "full"
	}
	return fmt.Sprintf("InteractionMode(%d)", int(m))
}

// Valid reports whether m is one of the declared modes
func (m InteractionMode) Valid() bool {
	return m >= InteractionNone && m <= InteractionFull
}

// MarshalText lets modes round-trip through JSON and YAML as their names
func (m InteractionMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, core.NewInvalidModeError(m.String())
	}
	return []byte(m.String()), nil
}

func (m *InteractionMode) UnmarshalText(text []byte) error {
	parsed, err := ParseInteractionMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Term is one model term: a main effect (one factor) or an interaction (several).
// Factors hold raw column names; Name joins their quoted forms with ':'.
type Term struct {
	Name    string   `json:"name"`
	Factors []string `json:"factors"`
}

// Order is the interaction order of the term (1 for a main effect)
func (t Term) Order() int {
	return len(t.Factors)
}

// FormulaSpec is an immutable model specification for one response column
type FormulaSpec struct {
	Response   string          `json:"response"`
	Predictors []string        `json:"predictors"`
	Mode       InteractionMode `json:"mode"`
	Terms      []Term          `json:"terms"`
	Text       string          `json:"text"`
}

// String returns the formula in Wilkinson notation
func (f FormulaSpec) String() string {
	return f.Text
}

// TermNames lists term names in formula order
func (f FormulaSpec) TermNames() []string {
	names := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		names[i] = t.Name
	}
	return names
}

// ============================================================================
// FIT RESULTS
// ============================================================================

// ModelResult holds the ANOVA decomposition for one peak. The residual row is never included.
type ModelResult struct {
	Peak       string             `json:"peak"`
	Terms      []string           `json:"terms"`
	PValues    map[string]float64 `json:"p_values"`
	FStats     map[string]float64 `json:"-"`
	DF         map[string]int     `json:"df"`
	ResidualDF int                `json:"residual_df"`
	SampleSize int                `json:"sample_size"`
}

// PValueTable holds raw p-values, rows = terms, columns = peaks
type PValueTable struct {
	Terms  []string    `json:"terms"`
	Peaks  []string    `json:"peaks"`
	Values [][]float64 `json:"values"` // Values[term][peak]
}

// NewPValueTable allocates an empty terms × peaks table
func NewPValueTable(terms, peaks []string) *PValueTable {
	values := make([][]float64, len(terms))
	for i := range values {
		values[i] = make([]float64, len(peaks))
	}
	return &PValueTable{
		Terms:  append([]string(nil), terms...),
		Peaks:  append([]string(nil), peaks...),
		Values: values,
	}
}

// Shape returns (rows, cols)
func (t *PValueTable) Shape() (int, int) {
	return len(t.Terms), len(t.Peaks)
}

// SetColumn writes a ModelResult into column j in term order
func (t *PValueTable) SetColumn(j int, res ModelResult) {
	for i, term := range t.Terms {
		t.Values[i][j] = res.PValues[term]
	}
}

// Get returns the p-value for a term/peak pair
func (t *PValueTable) Get(term, peak string) (float64, bool) {
	i := indexOf(t.Terms, term)
	j := indexOf(t.Peaks, peak)
	if i < 0 || j < 0 {
		return 0, false
	}
	return t.Values[i][j], true
}

// Column returns the p-values of one peak in term order, or nil for an unknown peak
func (t *PValueTable) Column(peak string) []float64 {
	j := indexOf(t.Peaks, peak)
	if j < 0 {
		return nil
	}
	col := make([]float64, len(t.Terms))
	for i := range t.Terms {
		col[i] = t.Values[i][j]
	}
	return col
}

// Flatten returns the values in term-major order
func (t *PValueTable) Flatten() []float64 {
	rows, cols := t.Shape()
	flat := make([]float64, 0, rows*cols)
	for _, row := range t.Values {
		flat = append(flat, row...)
	}
	return flat
}

// CorrectedResult holds FDR-adjusted p-values and rejection flags in PValueTable shape
type CorrectedResult struct {
	Terms     []string    `json:"terms"`
	Peaks     []string    `json:"peaks"`
	Corrected [][]float64 `json:"corrected"`
	Rejected  [][]bool    `json:"rejected"`
	Alpha     float64     `json:"alpha"`
}

// Shape returns (rows, cols) of the unmasked tables
func (r *CorrectedResult) Shape() (int, int) {
	return len(r.Terms), len(r.Peaks)
}

// SignificantView maps term -> peak -> corrected p-value for rejected hypotheses only.
// A missing entry means "not significant", never "p = 0".
func (r *CorrectedResult) SignificantView() map[string]map[string]float64 {
	view := make(map[string]map[string]float64)
	for i, term := range r.Terms {
		for j, peak := range r.Peaks {
			if !r.Rejected[i][j] {
				continue
			}
			if view[term] == nil {
				view[term] = make(map[string]float64)
			}
			view[term][peak] = r.Corrected[i][j]
		}
	}
	return view
}

// SignificantPeaks lists rejected peaks for a term in table column order
func (r *CorrectedResult) SignificantPeaks(term string) []string {
	i := indexOf(r.Terms, term)
	if i < 0 {
		return nil
	}
	peaks := make([]string, 0)
	for j, peak := range r.Peaks {
		if r.Rejected[i][j] {
			peaks = append(peaks, peak)
		}
	}
	return peaks
}

// SignificantCount counts rejected entries across the table
func (r *CorrectedResult) SignificantCount() int {
	n := 0
	for _, row := range r.Rejected {
		for _, rej := range row {
			if rej {
				n++
			}
		}
	}
	return n
}

// ============================================================================
// PERMUTATION RESULTS
// ============================================================================

// PermutationRecord lists, per term, the peaks found significant in one iteration
type PermutationRecord struct {
	Iteration   int                 `json:"iteration"`
	Significant map[string][]string `json:"significant"`
}

// PermutationTable accumulates records over every iteration of a run
type PermutationTable struct {
	RunID       core.RunID          `json:"run_id"`
	Seed        int64               `json:"seed"`
	Mode        InteractionMode     `json:"mode"`
	Permuted    []string            `json:"permuted"`
	Terms       []string            `json:"terms"`
	Peaks       []string            `json:"peaks"`
	Records     []PermutationRecord `json:"records"`
	Fingerprint core.Hash           `json:"dataset_fingerprint"`
	CreatedAt   core.Timestamp      `json:"created_at"`
}

// Iterations returns the number of completed records
func (p *PermutationTable) Iterations() int {
	return len(p.Records)
}

// Cell returns the significant peaks for one iteration and term
func (p *PermutationTable) Cell(iteration int, term string) []string {
	if iteration < 0 || iteration >= len(p.Records) {
		return nil
	}
	return p.Records[iteration].Significant[term]
}

// PeakHitCounts counts, per peak, the iterations in which it was significant for term
func (p *PermutationTable) PeakHitCounts(term string) map[string]int {
	counts := make(map[string]int)
	for _, rec := range p.Records {
		for _, peak := range rec.Significant[term] {
			counts[peak]++
		}
	}
	return counts
}

// FalsePositiveRate is the mean fraction of peaks flagged for term per iteration
func (p *PermutationTable) FalsePositiveRate(term string) float64 {
	if len(p.Records) == 0 || len(p.Peaks) == 0 {
		return 0
	}
	total := 0
	for _, rec := range p.Records {
		total += len(rec.Significant[term])
	}
	return float64(total) / float64(len(p.Records)*len(p.Peaks))
}

// AnyHitRate is the fraction of iterations that flagged at least one peak for term
func (p *PermutationTable) AnyHitRate(term string) float64 {
	if len(p.Records) == 0 {
		return 0
	}
	hits := 0
	for _, rec := range p.Records {
		if len(rec.Significant[term]) > 0 {
			hits++
		}
	}
	return float64(hits) / float64(len(p.Records))
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
