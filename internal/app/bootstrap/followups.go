package bootstrap

import (
	"net/http"
	"strings"
	"time"

	appconfig "github.com/wolfman30/virevamind/internal/config"
	"github.com/wolfman30/virevamind/internal/meeting"
	"github.com/wolfman30/virevamind/internal/notify"
	"github.com/wolfman30/virevamind/internal/verification"
	"github.com/wolfman30/virevamind/pkg/logging"
)

// BuildEmailSender picks the configured email provider. Misconfigured
// providers fall back to the stub sender; provider and reason report what
// was chosen and why.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (sender notify.EmailSender, provider, reason string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub", "missing config"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if s == nil {
			return notify.NewStubEmailSender(logger), "stub", "SENDGRID_API_KEY not set"
		}
		return s, "sendgrid", ""
	case "ses":
		s := notify.NewSESSender(ses, notify.SESConfig{FromEmail: cfg.EmailFrom, FromName: cfg.EmailFromName}, logger)
		if s == nil {
			return notify.NewStubEmailSender(logger), "stub", "ses client unavailable"
		}
		return s, "ses", ""
	case "", "stub":
		return notify.NewStubEmailSender(logger), "stub", ""
	default:
		return notify.NewStubEmailSender(logger), "stub", "unknown EMAIL_PROVIDER " + cfg.EmailProvider
	}
}

// BuildNotifier combines the email notifier with the booking event queue
// when NOTIFY_QUEUE_URL is set.
func BuildNotifier(cfg *appconfig.Config, sender notify.EmailSender, sqsClient notify.SQSAPI, logger *logging.Logger) notify.Notifier {
	fanout := notify.Fanout{notify.NewEmailNotifier(sender, logger)}
	if cfg != nil && strings.TrimSpace(cfg.NotifyQueueURL) != "" && sqsClient != nil {
		fanout = append(fanout, notify.NewQueuePublisher(sqsClient, cfg.NotifyQueueURL))
	}
	return fanout
}

// BuildMeetingProvider uses the configured meeting endpoint or the stub.
func BuildMeetingProvider(cfg *appconfig.Config) meeting.Provider {
	if cfg == nil || strings.TrimSpace(cfg.MeetingProviderURL) == "" {
		return meeting.StubProvider{}
	}
	return meeting.NewHTTPProvider(cfg.MeetingProviderURL, &http.Client{Timeout: 10 * time.Second})
}

// BuildDocumentStore stores verification uploads in S3 when a bucket is
// configured and in memory otherwise.
func BuildDocumentStore(cfg *appconfig.Config, s3Client verification.S3API) verification.DocumentStore {
	if cfg == nil || strings.TrimSpace(cfg.VerificationBucket) == "" || s3Client == nil {
		return verification.NewMemoryDocumentStore()
	}
	return verification.NewS3DocumentStore(s3Client, cfg.VerificationBucket)
}
