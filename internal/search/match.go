package search

import (
	"iter"
	"slices"
	"strings"

	"github.com/wolfman30/virevamind/internal/catalog"
)

// Source is the read side of the catalog.
type Source interface {
	Query(pred catalog.Predicate, opts ...catalog.QueryOption) iter.Seq[catalog.TherapistProfile]
}

// Match lazily yields profiles from src that satisfy every populated
// criterion, in catalog order (or the requested sort order). It keeps no
// state between calls.
func Match(src Source, c Criteria) iter.Seq[catalog.TherapistProfile] {
	return src.Query(Predicate(c), catalog.SortBy(c.Sort))
}

// Collect materializes a match into a slice.
func Collect(src Source, c Criteria) []catalog.TherapistProfile {
	out := slices.Collect(Match(src, c))
	if out == nil {
		out = []catalog.TherapistProfile{}
	}
	return out
}

// Predicate compiles criteria into a catalog predicate.
func Predicate(c Criteria) catalog.Predicate {
	c = c.Normalize()
	var preds []catalog.Predicate

	if c.Text != "" {
		needle := strings.ToLower(c.Text)
		preds = append(preds, func(p catalog.TherapistProfile) bool {
			return strings.Contains(strings.ToLower(p.Name), needle) ||
				strings.Contains(strings.ToLower(p.Bio), needle)
		})
	}
	if c.Certification != "" {
		needle := strings.ToLower(c.Certification)
		preds = append(preds, func(p catalog.TherapistProfile) bool {
			return strings.Contains(strings.ToLower(p.Certification.Label()), needle)
		})
	}
	if c.FocusArea != "" {
		preds = append(preds, func(p catalog.TherapistProfile) bool { return containsFold(p.FocusAreas, c.FocusArea) })
	}
	if c.Language != "" {
		preds = append(preds, func(p catalog.TherapistProfile) bool { return containsFold(p.Languages, c.Language) })
	}
	switch c.Insured {
	case InsuredRequire:
		preds = append(preds, func(p catalog.TherapistProfile) bool { return p.Insured })
	case InsuredExclude:
		preds = append(preds, func(p catalog.TherapistProfile) bool { return !p.Insured })
	}
	if c.VerifiedOnly {
		preds = append(preds, func(p catalog.TherapistProfile) bool {
			return p.Verification == catalog.VerificationVerified
		})
	}

	if len(preds) == 0 {
		return nil
	}
	return func(p catalog.TherapistProfile) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}

func containsFold(values []string, want string) bool {
	return slices.ContainsFunc(values, func(v string) bool { return strings.EqualFold(v, want) })
}
