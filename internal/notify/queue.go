package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/virevamind/internal/ledger"
)

// BookingConfirmedEvent is the event type published for every confirmation.
const BookingConfirmedEvent = "booking.confirmed.v1"

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// BookingConfirmedV1 is the queue payload for a confirmed booking.
type BookingConfirmedV1 struct {
	Type        string         `json:"type"`
	Booking     ledger.Booking `json:"booking"`
	Therapist   string         `json:"therapist_name,omitempty"`
	MeetingURL  string         `json:"meeting_url,omitempty"`
	PublishedAt time.Time      `json:"published_at"`
}

// QueuePublisher publishes confirmations to SQS for downstream consumers.
type QueuePublisher struct {
	client   SQSAPI
	queueURL string
	now      func() time.Time
}

func NewQueuePublisher(client SQSAPI, queueURL string) *QueuePublisher {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &QueuePublisher{client: client, queueURL: queueURL, now: time.Now}
}

func (q *QueuePublisher) Send(ctx context.Context, c Confirmation) error {
	body, err := json.Marshal(BookingConfirmedV1{
		Type:        BookingConfirmedEvent,
		Booking:     c.Booking,
		Therapist:   c.TherapistName,
		MeetingURL:  c.MeetingURL,
		PublishedAt: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(BookingConfirmedEvent)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: send SQS message: %w", err)
	}
	return nil
}
