package verification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/virevamind/internal/catalog"
	"github.com/wolfman30/virevamind/internal/observability/metrics"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// Catalog is the part of the therapist catalog verification writes to.
type Catalog interface {
	Get(id string) (catalog.TherapistProfile, error)
	SetVerification(id string, status catalog.VerificationStatus) (catalog.TherapistProfile, error)
}

// Task tracks one asynchronous verification.
type Task struct {
	ID          string
	TherapistID string

	done   chan struct{}
	result Result
	err    error
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Callback is invoked once per finished task.
type Callback func(task *Task, res Result, err error)

// Service runs verifications in the background.
type Service struct {
	catalog  Catalog
	verifier Verifier
	docs     DocumentStore
	metrics  *metrics.LedgerMetrics
	logger   *logging.Logger
	timeout  time.Duration
	callback Callback

	wg sync.WaitGroup
}

func NewService(cat Catalog, verifier Verifier, docs DocumentStore, logger *logging.Logger) *Service {
	if cat == nil {
		panic("verification: catalog required")
	}
	if verifier == nil {
		panic("verification: verifier required")
	}
	if docs == nil {
		docs = NewMemoryDocumentStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{catalog: cat, verifier: verifier, docs: docs, logger: logger, timeout: 5 * time.Minute}
}

func (s *Service) WithCallback(cb Callback) *Service {
	s.callback = cb
	return s
}

func (s *Service) WithMetrics(m *metrics.LedgerMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Submit validates the request, marks the therapist pending and returns
// immediately. Upload, verification and the catalog update happen on the
// returned task.
func (s *Service) Submit(ctx context.Context, therapistID string, docs Documents) (*Task, error) {
	therapistID = strings.TrimSpace(therapistID)
	profile, err := s.catalog.Get(therapistID)
	if err != nil {
		return nil, err
	}
	if len(docs.Files) == 0 {
		return nil, &catalog.ValidationError{Field: "documents", Reason: "at least one file is required"}
	}
	if strings.TrimSpace(docs.LicenseNumber) == "" {
		docs.LicenseNumber = profile.LicenseNumber
	}
	if _, err := s.catalog.SetVerification(therapistID, catalog.VerificationPending); err != nil {
		return nil, fmt.Errorf("verification: mark pending: %w", err)
	}

	task := &Task{ID: uuid.NewString(), TherapistID: therapistID, done: make(chan struct{})}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(runCtx, task, profile.Certification, docs)
	}()
	s.logger.Info("verification submitted", "therapist_id", therapistID, "task_id", task.ID, "files", len(docs.Files))
	return task, nil
}

func (s *Service) run(ctx context.Context, task *Task, cert catalog.CertificationType, docs Documents) {
	defer close(task.done)
	logger := s.logger.With("therapist_id", task.TherapistID, "task_id", task.ID)

	res, err := s.verify(ctx, task.TherapistID, cert, docs)
	if err != nil {
		s.metrics.ObserveVerification("error")
		logger.Error("verification failed to run", "error", err)
		task.err = err
	} else {
		s.metrics.ObserveVerification(string(res.Status))
		logger.Info("verification finished", "status", res.Status, "details", res.Details)
		task.result = res
	}
	if s.callback != nil {
		s.callback(task, task.result, task.err)
	}
}

func (s *Service) verify(ctx context.Context, therapistID string, cert catalog.CertificationType, docs Documents) (Result, error) {
	for _, doc := range docs.Files {
		if _, err := s.docs.Put(ctx, therapistID, doc); err != nil {
			return Result{}, err
		}
	}
	res, err := s.verifier.Verify(ctx, docs, cert)
	if err != nil {
		return Result{}, fmt.Errorf("verification: verify: %w", err)
	}
	if res.Status != catalog.VerificationVerified {
		res.Status = catalog.VerificationFailed
	}
	if _, err := s.catalog.SetVerification(therapistID, res.Status); err != nil {
		return Result{}, fmt.Errorf("verification: record status: %w", err)
	}
	return res, nil
}

// Wait blocks until every submitted task finished or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
