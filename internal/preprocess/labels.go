package preprocess

import (
	"fmt"
	"regexp"
	"strings"
)

// BrainRegions are region abbreviations that appear in brain sample names
var BrainRegions = []string{
	"precuneus", "amygdala", "hippocampus", "caudate", "putamen",
	"thalamus", "hypothalamus", "cb", "pfc", "pmc", "claustrum", "striatum",
	"hippocamp", "cb-gm", "ba40a", "ba7p", "ba7a", "ba29/30", "ba37-amt", "ba47", "ba23a",
	"pop", "ba18/19p", "ba21p", "ba6p", "ba6prc", "ba17p", "ba4", "ba41/42",
	"ba17a", "ba3/1/2", "ba37-pmt", "ba37m", "ba8", "ba6m", "insa", "ba23p",
	"ba20p", "ba22a", "ba18/19a", "ba22p", "ba7m", "ba6a", "ba40p", "ba44",
	"ba20a", "ba9", "ba9m", "ba8m", "ba21a", "ba10", "ba10fp", "ba32g", "ba39",
	"ba25", "ba38", "ba46", "ba45", "ba10m", "ba31", "ba24", "ba32", "ba11",
	"pirctx", "amg", "insp", "entctx", "ca3/dg", "nacc", "caud", "put", "dentn",
	"supcll", "pulth", "rn", "sn", "gp", "ca1", "sub", "vath", "mdth", "hyp",
	"vlth", "ec", "ic", "cca", "ccp", "cb-wm",
}

// OtherTissues are whole-tissue labels
var OtherTissues = []string{
	"brain", "plasma", "muscle", "liver", "epithelium",
	"endoneurium", "perineurium", "epineurium", "vascular",
	"connective", "lymphoid", "meristem", "qc",
}

var brainSeparators = []string{".", "_", "|", "$", "#", "@"}

// DefaultTissues returns the tissue vocabulary in matching priority: "brain<sep><region>"
// encodings first, then whole tissues, then bare regions.
func DefaultTissues() []string {
	labels := make([]string, 0, len(brainSeparators)*len(BrainRegions)+len(OtherTissues)+len(BrainRegions))
	for _, sep := range brainSeparators {
		for _, region := range BrainRegions {
			labels = append(labels, "brain"+sep+region)
		}
	}
	labels = append(labels, OtherTissues...)
	labels = append(labels, BrainRegions...)
	return labels
}

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// ExtractLabels assigns every sample the first label contained in its lower-cased name.
// The first punctuation mark found in the label is normalised to '_'. Samples matching no
// label get "" (missing).
func ExtractLabels(samples, labels []string) []string {
	out := make([]string, len(samples))
	for i, sample := range samples {
		name := strings.ToLower(sample)
		for _, label := range labels {
			if strings.Contains(name, label) {
				out[i] = normalizeSeparator(label)
				break
			}
		}
	}
	return out
}

func normalizeSeparator(label string) string {
	for _, mark := range asciiPunctuation {
		if strings.ContainsRune(label, mark) {
			return strings.ReplaceAll(label, string(mark), "_")
		}
	}
	return label
}

var sampleIDPattern = regexp.MustCompile(`(?i)ms\d+`)

// ExtractSampleID returns the animal identifier (e.g. "MS12") embedded in a sample column
// name, or "" when there is none
func ExtractSampleID(sample string) string {
	return sampleIDPattern.FindString(sample)
}

var (
	agePattern  = regexp.MustCompile(`(?i)age`)
	massPattern = regexp.MustCompile(`(?i)mass|weight`)
	idPattern   = regexp.MustCompile(`(?i)id|ms`)
)

// SampleMetadata is one row of the animal metadata sheet
type SampleMetadata struct {
	ID   string
	Age  string
	Mass string
}

// ParseMetadata locates the id, age and mass (or weight) columns of a metadata sheet by
// header name and indexes its rows by id
func ParseMetadata(headers []string, rows [][]string) (map[string]SampleMetadata, error) {
	idCol := findHeader(headers, idPattern)
	ageCol := findHeader(headers, agePattern)
	massCol := findHeader(headers, massPattern)
	if idCol < 0 {
		return nil, fmt.Errorf("metadata: no id column among %v", headers)
	}
	if ageCol < 0 && massCol < 0 {
		return nil, fmt.Errorf("metadata: neither age nor mass column among %v", headers)
	}

	out := make(map[string]SampleMetadata, len(rows))
	for _, row := range rows {
		rec := SampleMetadata{ID: cell(row, idCol), Age: cell(row, ageCol), Mass: cell(row, massCol)}
		if rec.ID == "" {
			continue
		}
		out[strings.ToUpper(rec.ID)] = rec
	}
	return out, nil
}

// LookupMetadata finds the metadata row of a sample column through its embedded identifier
func LookupMetadata(meta map[string]SampleMetadata, sample string) (SampleMetadata, bool) {
	id := ExtractSampleID(sample)
	if id == "" {
		return SampleMetadata{}, false
	}
	rec, ok := meta[strings.ToUpper(id)]
	return rec, ok
}

func findHeader(headers []string, pat *regexp.Regexp) int {
	for i, h := range headers {
		if pat.MatchString(h) {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
