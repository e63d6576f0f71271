package search

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/virevamind/internal/catalog"
)

func seededStore(t *testing.T) *catalog.Store {
	t.Helper()
	store := catalog.NewStore(nil)
	_, err := store.LoadDefaultSeed()
	require.NoError(t, err)
	return store
}

func matchIDs(src Source, c Criteria) []string {
	var out []string
	for p := range Match(src, c) {
		out = append(out, p.ID)
	}
	return out
}

func TestEmptyCriteriaReturnsWholeCatalogInOrder(t *testing.T) {
	store := seededStore(t)
	want := []string{"sarah-johnson", "michael-chen", "emily-rodriguez", "james-wilson"}
	assert.Equal(t, want, matchIDs(store, Criteria{}))
	assert.Equal(t, want, matchIDs(store, Criteria{Text: "   ", Language: " "}))
	assert.True(t, Criteria{Text: "  "}.IsEmpty())
}

func TestMatchCriteria(t *testing.T) {
	store := seededStore(t)
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{"text matches name case-insensitively", Criteria{Text: "CHEN"}, []string{"michael-chen"}},
		{"text matches bio", Criteria{Text: "cognitive restructuring"}, []string{"emily-rodriguez"}},
		{"cbt substring includes dual certified", Criteria{Certification: "CBT"}, []string{"sarah-johnson", "emily-rodriguez", "james-wilson"}},
		{"nlp substring includes dual certified", Criteria{Certification: "nlp"}, []string{"michael-chen", "emily-rodriguez"}},
		{"full label is exact", Criteria{Certification: "Both CBT & NLP"}, []string{"emily-rodriguez"}},
		{"focus area membership", Criteria{FocusArea: "self-esteem"}, []string{"sarah-johnson", "james-wilson"}},
		{"language membership", Criteria{Language: "Spanish"}, []string{"sarah-johnson", "emily-rodriguez"}},
		{"insured required", Criteria{Insured: InsuredRequire}, []string{"sarah-johnson", "emily-rodriguez"}},
		{"insured excluded", Criteria{Insured: InsuredExclude}, []string{"michael-chen", "james-wilson"}},
		{"criteria are ANDed", Criteria{Certification: "CBT", FocusArea: "Anxiety", Language: "French"}, []string{"james-wilson"}},
		{"unknown focus area matches nothing", Criteria{FocusArea: "Phobias"}, nil},
		{"unknown language matches nothing", Criteria{Language: "Klingon"}, nil},
		{"focus is membership not substring", Criteria{FocusArea: "Anx"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchIDs(store, tt.criteria))
		})
	}
}

func TestMatchVerifiedOnlyAndSort(t *testing.T) {
	store := seededStore(t)
	_, err := store.SetVerification("sarah-johnson", catalog.VerificationFailed)
	require.NoError(t, err)

	assert.Equal(t, []string{"michael-chen", "emily-rodriguez", "james-wilson"}, matchIDs(store, Criteria{VerifiedOnly: true}))
	assert.Equal(t, []string{"emily-rodriguez", "michael-chen", "james-wilson"}, matchIDs(store, Criteria{VerifiedOnly: true, Sort: catalog.SortSessions}))
}

func TestMatchIsIdempotent(t *testing.T) {
	store := seededStore(t)
	c := Criteria{Certification: "CBT", Insured: InsuredRequire}
	first := Collect(store, c)
	second := Collect(store, c)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"sarah-johnson", "emily-rodriguez"}, matchIDs(store, c))
}

func TestCollectNeverNil(t *testing.T) {
	store := seededStore(t)
	got := Collect(store, Criteria{Language: "Latin"})
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPredicateNilForEmptyCriteria(t *testing.T) {
	assert.Nil(t, Predicate(Criteria{}))
	assert.NotNil(t, Predicate(Criteria{Insured: InsuredExclude}))
}

type staticSource []catalog.TherapistProfile

func (s staticSource) Query(pred catalog.Predicate, _ ...catalog.QueryOption) iter.Seq[catalog.TherapistProfile] {
	return func(yield func(catalog.TherapistProfile) bool) {
		for _, p := range s {
			if pred != nil && !pred(p) {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

func TestMatchWorksAgainstAnySource(t *testing.T) {
	src := staticSource{
		{ID: "a", Name: "Ana", Languages: []string{"Portuguese"}},
		{ID: "b", Name: "Ben", Languages: []string{"English"}},
	}
	got := slices.Collect(Match(src, Criteria{Language: "portuguese"}))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}
