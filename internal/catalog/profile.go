package catalog

import (
	"slices"
	"strings"
	"time"
)

// CertificationType is the practitioner's credential family.
type CertificationType string

const (
	CertificationCBT  CertificationType = "cbt"
	CertificationNLP  CertificationType = "nlp"
	CertificationBoth CertificationType = "both"
)

// Label is the display form used by directory filters.
func (c CertificationType) Label() string {
	switch c {
	case CertificationCBT:
		return "CBT"
	case CertificationNLP:
		return "NLP"
	case CertificationBoth:
		return "Both CBT & NLP"
	default:
		return ""
	}
}

// Valid reports whether c is one of the known certification types.
func (c CertificationType) Valid() bool {
	return c.Label() != ""
}

// ParseCertification accepts either the stored value or the display label.
func ParseCertification(raw string) (CertificationType, bool) {
	raw = strings.TrimSpace(raw)
	for _, c := range []CertificationType{CertificationCBT, CertificationNLP, CertificationBoth} {
		if strings.EqualFold(raw, string(c)) || strings.EqualFold(raw, c.Label()) {
			return c, true
		}
	}
	return "", false
}

// VerificationStatus tracks the credential check outcome.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationFailed:
		return true
	}
	return false
}

// TherapistProfile is a directory entry. ID, Name, Certification and a set
// LicenseNumber are fixed once stored; Rating and Sessions only change
// through RecordReview. CertifyingInstitution and CertifiedOn are
// descriptive and play no part in matching or verification.
type TherapistProfile struct {
	ID                    string             `json:"id" yaml:"id"`
	Name                  string             `json:"name" yaml:"name"`
	Certification         CertificationType  `json:"certification" yaml:"certification"`
	LicenseNumber         string             `json:"license_number,omitempty" yaml:"license_number"`
	CertifyingInstitution string             `json:"certifying_institution,omitempty" yaml:"certifying_institution"`
	CertifiedOn           string             `json:"certified_on,omitempty" yaml:"certified_on"`
	Bio                   string             `json:"bio" yaml:"bio"`
	FocusAreas            []string           `json:"focus_areas" yaml:"focus_areas"`
	Languages             []string           `json:"languages" yaml:"languages"`
	Location              string             `json:"location" yaml:"location"`
	Timezone              string             `json:"timezone,omitempty" yaml:"timezone"`
	Insured               bool               `json:"insured" yaml:"insured"`
	Verification          VerificationStatus `json:"verification" yaml:"verification"`
	Rating                float64            `json:"rating" yaml:"rating"`
	Sessions              int                `json:"sessions" yaml:"sessions"`
	UpdatedAt             time.Time          `json:"updated_at" yaml:"-"`
}

// CertificationLabel is a convenience for templates and filters.
func (p TherapistProfile) CertificationLabel() string {
	return p.Certification.Label()
}

// clone copies the profile so callers never share slice backing arrays with the store.
func (p TherapistProfile) clone() TherapistProfile {
	p.FocusAreas = slices.Clone(p.FocusAreas)
	p.Languages = slices.Clone(p.Languages)
	return p
}

func (p TherapistProfile) normalized() TherapistProfile {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.LicenseNumber = strings.TrimSpace(p.LicenseNumber)
	p.Bio = strings.TrimSpace(p.Bio)
	p.Location = strings.TrimSpace(p.Location)
	p.Timezone = strings.TrimSpace(p.Timezone)
	p.CertifyingInstitution = strings.TrimSpace(p.CertifyingInstitution)
	p.CertifiedOn = strings.TrimSpace(p.CertifiedOn)
	p.FocusAreas = dedupeFold(p.FocusAreas)
	p.Languages = dedupeFold(p.Languages)
	return p
}

func (p TherapistProfile) validate() error {
	if p.ID == "" {
		return invalid("id", "is required")
	}
	if p.Name == "" {
		return invalid("name", "is required")
	}
	if !p.Certification.Valid() {
		return invalid("certification", "must be one of cbt, nlp, both")
	}
	if p.Certification == CertificationCBT && p.LicenseNumber == "" {
		return invalid("license_number", "is required for CBT certification")
	}
	if p.Verification != "" && !p.Verification.Valid() {
		return invalid("verification", "must be one of pending, verified, failed")
	}
	if p.CertifiedOn != "" {
		if _, err := time.Parse(time.DateOnly, p.CertifiedOn); err != nil {
			return invalid("certified_on", "must be YYYY-MM-DD")
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return invalid("timezone", "is not a known IANA zone")
		}
	}
	return nil
}

// dedupeFold trims entries and drops case-insensitive duplicates, keeping the first spelling.
func dedupeFold(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
