// Package formula builds ANOVA model specifications from a response column,
// an ordered predictor list and an interaction mode.
package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"metabostat/domain/core"
	"metabostat/domain/stats"
)

// Build creates the FormulaSpec for response ~ predictors under mode.
//
// Terms are emitted in model order: all main effects in predictor order, then
// every two-way interaction, then higher orders, each order listing factor
// combinations in lexicographic predictor order.
func Build(response string, predictors []string, mode stats.InteractionMode) (stats.FormulaSpec, error) {
	if !mode.Valid() {
		return stats.FormulaSpec{}, core.NewInvalidModeError(mode.String())
	}
	if strings.TrimSpace(response) == "" {
		return stats.FormulaSpec{}, core.NewInvalidSpecError("response column name is empty")
	}
	if len(predictors) == 0 {
		return stats.FormulaSpec{}, core.NewInvalidSpecError("predictor list is empty")
	}

	seen := make(map[string]bool, len(predictors))
	for _, p := range predictors {
		if strings.TrimSpace(p) == "" {
			return stats.FormulaSpec{}, core.NewInvalidSpecError("predictor column name is empty")
		}
		if p == response {
			return stats.FormulaSpec{}, core.NewInvalidSpecError(fmt.Sprintf("response %q is also a predictor", p))
		}
		if seen[p] {
			return stats.FormulaSpec{}, core.NewInvalidSpecError(fmt.Sprintf("predictor %q listed twice", p))
		}
		seen[p] = true
	}

	degree := Degree(mode, len(predictors))

	var terms []stats.Term
	for order := 1; order <= degree; order++ {
		for _, combo := range combinations(len(predictors), order) {
			factors := make([]string, order)
			quoted := make([]string, order)
			for k, idx := range combo {
				factors[k] = predictors[idx]
				quoted[k] = QuoteName(predictors[idx])
			}
			terms = append(terms, stats.Term{
				Name:    strings.Join(quoted, ":"),
				Factors: factors,
			})
		}
	}

	return stats.FormulaSpec{
		Response:   response,
		Predictors: append([]string(nil), predictors...),
		Mode:       mode,
		Terms:      terms,
		Text:       render(response, predictors, mode),
	}, nil
}

// Degree returns the highest interaction order for mode over n predictors
func Degree(mode stats.InteractionMode, n int) int {
	switch mode {
	case stats.InteractionPairwise:
		if n < 2 {
			return n
		}
		return 2
	case stats.InteractionFull:
		return n
	default:
		return 1
	}
}

// QuoteName wraps purely numeric column names as Q("123") so that the model
// layer treats them as identifiers rather than literals.
func QuoteName(name string) string {
	if isDigits(name) {
		return "Q(" + strconv.Quote(name) + ")"
	}
	return name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func render(response string, predictors []string, mode stats.InteractionMode) string {
	quoted := make([]string, len(predictors))
	for i, p := range predictors {
		quoted[i] = QuoteName(p)
	}
	sum := strings.Join(quoted, " + ")
	y := QuoteName(response)

	switch mode {
	case stats.InteractionPairwise:
		return fmt.Sprintf("%s ~ (%s) ** 2", y, sum)
	case stats.InteractionFull:
		return fmt.Sprintf("%s ~ (%s) ** %d", y, sum, len(predictors))
	default:
		return fmt.Sprintf("%s ~ %s", y, sum)
	}
}

// combinations lists k-subsets of [0, n) in lexicographic order
func combinations(n, k int) [][]int {
	if k <= 0 || k > n {
		return nil
	}
	var out [][]int
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		out = append(out, append([]int(nil), idx...))
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return out
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
