// Package verification checks therapist credentials and records the outcome
// on the catalog.
package verification

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/virevamind/internal/catalog"
)

// Document is an uploaded credential file.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Documents is what a therapist submits for verification.
type Documents struct {
	LicenseNumber string     `json:"license_number"`
	Files         []Document `json:"files"`
}

// Result is a verifier's verdict.
type Result struct {
	Status  catalog.VerificationStatus `json:"status"`
	Details string                     `json:"details,omitempty"`
}

// Verifier decides whether a set of documents proves a certification.
type Verifier interface {
	Verify(ctx context.Context, docs Documents, cert catalog.CertificationType) (Result, error)
}

// SimulatedVerifier stands in for a real credential check. After Delay it
// passes any submission with files, and CBT submissions also need a
// license number.
type SimulatedVerifier struct {
	Delay time.Duration
}

func (v SimulatedVerifier) Verify(ctx context.Context, docs Documents, cert catalog.CertificationType) (Result, error) {
	if v.Delay > 0 {
		t := time.NewTimer(v.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if len(docs.Files) == 0 {
		return Result{Status: catalog.VerificationFailed, Details: "no documents provided"}, nil
	}
	if cert == catalog.CertificationCBT && strings.TrimSpace(docs.LicenseNumber) == "" {
		return Result{Status: catalog.VerificationFailed, Details: "CBT certification requires a license number"}, nil
	}
	return Result{Status: catalog.VerificationVerified}, nil
}
