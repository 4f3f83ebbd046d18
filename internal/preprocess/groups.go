// Package preprocess cleans and normalises wide instrument exports (peaks x samples)
// and reshapes them into the analysis-ready sample table.
package preprocess

import (
	"regexp"
	"strings"
)

// AnnotationColumns are the feature-level columns of an XCMS/CAMERA style export. Every
// other column of the export holds per-sample intensities.
var AnnotationColumns = []string{
	"mz", "mzmin", "mzmax", "rt", "rtmin", "rtmax",
	"npeaks", "samples", "isotopes", "adduct", "pcgroup",
}

var (
	blankPattern = regexp.MustCompile(`(?i)blank`)
	qcPattern    = regexp.MustCompile(`(?i)qc`)
	washPattern  = regexp.MustCompile(`(?i)wash`)
)

// ColumnGroups partitions the sample columns of an export
type ColumnGroups struct {
	Blanks       []string `json:"blanks"`
	QC           []string `json:"qc"`
	Washes       []string `json:"washes"`
	Samples      []string `json:"samples"`       // every intensity column, controls included
	StudySamples []string `json:"study_samples"` // Samples without blanks and washes; QC stays
}

// DivideColumns classifies export headers by name, preserving header order in every group
func DivideColumns(headers []string) ColumnGroups {
	annotation := make(map[string]bool, len(AnnotationColumns))
	for _, name := range AnnotationColumns {
		annotation[name] = true
	}

	var g ColumnGroups
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" || annotation[h] {
			continue
		}
		g.Samples = append(g.Samples, h)

		blank := blankPattern.MatchString(h)
		wash := washPattern.MatchString(h)
		if blank {
			g.Blanks = append(g.Blanks, h)
		}
		if qcPattern.MatchString(h) {
			g.QC = append(g.QC, h)
		}
		if wash {
			g.Washes = append(g.Washes, h)
		}
		if !blank && !wash {
			g.StudySamples = append(g.StudySamples, h)
		}
	}
	return g
}

// IsAnnotation reports whether header names a feature annotation column
func IsAnnotation(header string) bool {
	for _, name := range AnnotationColumns {
		if header == name {
			return true
		}
	}
	return false
}
