// Package testkit generates synthetic metabolomics tables for tests and demos.
package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"metabostat/domain/dataset"
)

// PeakEffect shifts the mean intensity of one peak for samples matching Tissue and Age.
// An empty Tissue or Age matches every level, so setting both gives an interaction effect.
type PeakEffect struct {
	Peak   int     `json:"peak"`
	Tissue string  `json:"tissue,omitempty"`
	Age    string  `json:"age,omitempty"`
	Shift  float64 `json:"shift"`
}

// MetabolomeGeneratorConfig configures the synthetic sample table
type MetabolomeGeneratorConfig struct {
	Tissues       []string     `json:"tissues"`
	Ages          []string     `json:"ages"`
	Replicates    int          `json:"replicates"`
	PeakCount     int          `json:"peak_count"`
	BaseIntensity float64      `json:"base_intensity"`
	Noise         float64      `json:"noise"`
	Effects       []PeakEffect `json:"effects"`
	NumericNames  bool         `json:"numeric_names"` // name peaks by integer m/z instead of peak_NNN
	Seed          int64        `json:"seed"`
}

// DefaultMetabolomeConfig returns a balanced 2x2 tissue/age design with no real effects
func DefaultMetabolomeConfig() MetabolomeGeneratorConfig {
	return MetabolomeGeneratorConfig{
		Tissues:       []string{"liver", "muscle"},
		Ages:          []string{"old", "young"},
		Replicates:    4,
		PeakCount:     20,
		BaseIntensity: 10,
		Noise:         1,
		Seed:          42,
	}
}

// MetabolomeGenerator produces Gaussian peak intensities around group means
type MetabolomeGenerator struct {
	config MetabolomeGeneratorConfig
	rng    *rand.Rand
}

// NewMetabolomeGenerator creates a generator
func NewMetabolomeGenerator(config MetabolomeGeneratorConfig) *MetabolomeGenerator {
	return &MetabolomeGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// PeakName returns the column name used for peak j
func (g *MetabolomeGenerator) PeakName(j int) string {
	if g.config.NumericNames {
		return fmt.Sprintf("%d", 100+j)
	}
	return fmt.Sprintf("peak_%03d", j)
}

// Generate builds the dataset: peak columns first, then "tissue" and "age"
func (g *MetabolomeGenerator) Generate() (*dataset.Dataset, error) {
	var sampleIDs, tissues, ages []string
	for _, tissue := range g.config.Tissues {
		for _, age := range g.config.Ages {
			for r := 0; r < g.config.Replicates; r++ {
				sampleIDs = append(sampleIDs, fmt.Sprintf("S%03d", len(sampleIDs)+1))
				tissues = append(tissues, tissue)
				ages = append(ages, age)
			}
		}
	}

	ds := dataset.New(sampleIDs)
	for j := 0; j < g.config.PeakCount; j++ {
		values := make([]float64, len(sampleIDs))
		for i := range values {
			mean := g.config.BaseIntensity + g.shift(j, tissues[i], ages[i])
			values[i] = math.Max(0, mean+g.rng.NormFloat64()*g.config.Noise)
		}
		if err := ds.AddNumeric(g.PeakName(j), values); err != nil {
			return nil, err
		}
	}
	if err := ds.AddCategorical("tissue", tissues); err != nil {
		return nil, err
	}
	if err := ds.AddCategorical("age", ages); err != nil {
		return nil, err
	}
	return ds, nil
}

func (g *MetabolomeGenerator) shift(peak int, tissue, age string) float64 {
	total := 0.0
	for _, e := range g.config.Effects {
		if e.Peak != peak {
			continue
		}
		if e.Tissue != "" && e.Tissue != tissue {
			continue
		}
		if e.Age != "" && e.Age != age {
			continue
		}
		total += e.Shift
	}
	return total
}

// NullDataset is a convenience wrapper for a table without any real group effects
func NullDataset(peaks int, seed int64) (*dataset.Dataset, error) {
	config := DefaultMetabolomeConfig()
	config.PeakCount = peaks
	config.Seed = seed
	return NewMetabolomeGenerator(config).Generate()
}
