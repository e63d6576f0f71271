package verification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// DocumentStore keeps submitted credential files.
type DocumentStore interface {
	Put(ctx context.Context, therapistID string, doc Document) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3API is the subset of the S3 client used by S3DocumentStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3DocumentStore writes documents under verification/<therapist>/<date>/.
type S3DocumentStore struct {
	bucket string
	client S3API
	now    func() time.Time
}

func NewS3DocumentStore(client S3API, bucket string) *S3DocumentStore {
	if client == nil {
		panic("verification: S3 client cannot be nil")
	}
	if bucket == "" {
		panic("verification: bucket cannot be empty")
	}
	return &S3DocumentStore{bucket: bucket, client: client, now: time.Now}
}

func objectKey(therapistID string, doc Document, now time.Time) string {
	name := path.Base(strings.ReplaceAll(doc.Name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	return fmt.Sprintf("verification/%s/%s/%s-%s", therapistID, now.UTC().Format("2006-01-02"), uuid.NewString()[:8], name)
}

func (s *S3DocumentStore) Put(ctx context.Context, therapistID string, doc Document) (string, error) {
	key := objectKey(therapistID, doc, s.now())
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(doc.Data),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("verification: s3 put %s: %w", key, err)
	}
	return key, nil
}

func (s *S3DocumentStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("verification: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// MemoryDocumentStore keeps documents in process, for local runs and tests.
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	now  func() time.Time
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string][]byte), now: time.Now}
}

func (m *MemoryDocumentStore) Put(_ context.Context, therapistID string, doc Document) (string, error) {
	key := objectKey(therapistID, doc, m.now())
	m.mu.Lock()
	m.docs[key] = bytes.Clone(doc.Data)
	m.mu.Unlock()
	return key, nil
}

func (m *MemoryDocumentStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, fmt.Errorf("verification: document %q not found", key)
	}
	return bytes.Clone(data), nil
}

// Len reports how many documents are stored.
func (m *MemoryDocumentStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
