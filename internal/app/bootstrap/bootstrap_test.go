package bootstrap

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/virevamind/internal/config"
	"github.com/wolfman30/virevamind/internal/meeting"
	"github.com/wolfman30/virevamind/internal/notify"
	"github.com/wolfman30/virevamind/internal/verification"
	"github.com/wolfman30/virevamind/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), nil, nil, true))
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.New("error"), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.New("error"), true))
}

func TestBuildPostgresPoolDisabled(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestBuildPostgresPoolRejectsBadURL(t *testing.T) {
	_, err := BuildPostgresPool(context.Background(), &appconfig.Config{DatabaseURL: "postgres://%zz"}, nil)
	assert.Error(t, err)
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")
	tests := []struct {
		name         string
		cfg          *appconfig.Config
		wantProvider string
		wantReason   bool
	}{
		{name: "nil config", cfg: nil, wantProvider: "stub", wantReason: true},
		{name: "stub", cfg: &appconfig.Config{EmailProvider: "stub"}, wantProvider: "stub"},
		{name: "sendgrid without key", cfg: &appconfig.Config{EmailProvider: "sendgrid"}, wantProvider: "stub", wantReason: true},
		{name: "sendgrid", cfg: &appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.test", EmailFrom: "a@b.c"}, wantProvider: "sendgrid"},
		{name: "ses without client", cfg: &appconfig.Config{EmailProvider: "ses"}, wantProvider: "stub", wantReason: true},
		{name: "unknown", cfg: &appconfig.Config{EmailProvider: "pigeon"}, wantProvider: "stub", wantReason: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, provider, reason := BuildEmailSender(tt.cfg, nil, logger)
			require.NotNil(t, sender)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantReason, reason != "")
		})
	}
}

func TestBuildNotifierAddsQueueOnlyWhenConfigured(t *testing.T) {
	logger := logging.New("error")
	sender := notify.NewStubEmailSender(logger)

	n := BuildNotifier(&appconfig.Config{}, sender, nil, logger)
	fanout, ok := n.(notify.Fanout)
	require.True(t, ok)
	assert.Len(t, fanout, 1)

	n = BuildNotifier(&appconfig.Config{NotifyQueueURL: "https://sqs.local/queue"}, sender, nil, logger)
	assert.Len(t, n.(notify.Fanout), 1, "queue needs a client")
}

func TestBuildMeetingProvider(t *testing.T) {
	_, ok := BuildMeetingProvider(&appconfig.Config{}).(meeting.StubProvider)
	assert.True(t, ok)
	_, ok = BuildMeetingProvider(&appconfig.Config{MeetingProviderURL: "https://meet.example.com/api"}).(*meeting.HTTPProvider)
	assert.True(t, ok)
}

func TestBuildDocumentStoreDefaultsToMemory(t *testing.T) {
	_, ok := BuildDocumentStore(&appconfig.Config{VerificationBucket: "docs"}, nil).(*verification.MemoryDocumentStore)
	assert.True(t, ok)
}
