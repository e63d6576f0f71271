package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/wolfman30/virevamind/internal/catalog"
)

// InsuredFilter is a tri-state insurance requirement.
type InsuredFilter int

const (
	InsuredAny InsuredFilter = iota
	InsuredRequire
	InsuredExclude
)

func (f InsuredFilter) String() string {
	switch f {
	case InsuredRequire:
		return "require"
	case InsuredExclude:
		return "exclude"
	default:
		return "any"
	}
}

// ParseInsured accepts require/exclude/any and boolean spellings.
func ParseInsured(raw string) (InsuredFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "any":
		return InsuredAny, nil
	case "require", "required", "only":
		return InsuredRequire, nil
	case "exclude", "excluded":
		return InsuredExclude, nil
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
		if b {
			return InsuredRequire, nil
		}
		return InsuredExclude, nil
	}
	return InsuredAny, &catalog.ValidationError{Field: "insured", Reason: "must be require, exclude or any"}
}

// Criteria is a directory search. Empty fields match everything and
// populated fields are ANDed.
type Criteria struct {
	Text          string
	Certification string
	FocusArea     string
	Language      string
	Insured       InsuredFilter
	VerifiedOnly  bool
	Sort          catalog.SortKey
}

// Normalize trims every text field.
func (c Criteria) Normalize() Criteria {
	c.Text = strings.TrimSpace(c.Text)
	c.Certification = strings.TrimSpace(c.Certification)
	c.FocusArea = strings.TrimSpace(c.FocusArea)
	c.Language = strings.TrimSpace(c.Language)
	return c
}

// IsEmpty reports whether the criteria select the whole catalog.
func (c Criteria) IsEmpty() bool {
	c = c.Normalize()
	return c.Text == "" && c.Certification == "" && c.FocusArea == "" &&
		c.Language == "" && c.Insured == InsuredAny && !c.VerifiedOnly
}

// ParseCriteria reads criteria from query parameters q, certification,
// focus, language, insured, verified and sort.
func ParseCriteria(values url.Values) (Criteria, error) {
	c := Criteria{
		Text:          values.Get("q"),
		Certification: values.Get("certification"),
		FocusArea:     values.Get("focus"),
		Language:      values.Get("language"),
	}
	insured, err := ParseInsured(values.Get("insured"))
	if err != nil {
		return Criteria{}, err
	}
	c.Insured = insured

	if raw := strings.TrimSpace(values.Get("verified")); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			return Criteria{}, &catalog.ValidationError{Field: "verified", Reason: "must be a boolean"}
		}
		c.VerifiedOnly = verified
	}

	sort, err := catalog.ParseSortKey(values.Get("sort"))
	if err != nil {
		return Criteria{}, err
	}
	c.Sort = sort
	return c.Normalize(), nil
}

// Values renders the criteria back into query parameters.
func (c Criteria) Values() url.Values {
	v := url.Values{}
	c = c.Normalize()
	if c.Text != "" {
		v.Set("q", c.Text)
	}
	if c.Certification != "" {
		v.Set("certification", c.Certification)
	}
	if c.FocusArea != "" {
		v.Set("focus", c.FocusArea)
	}
	if c.Language != "" {
		v.Set("language", c.Language)
	}
	if c.Insured != InsuredAny {
		v.Set("insured", c.Insured.String())
	}
	if c.VerifiedOnly {
		v.Set("verified", "true")
	}
	if c.Sort != catalog.SortInsertion {
		v.Set("sort", string(c.Sort))
	}
	return v
}
