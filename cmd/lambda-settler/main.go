package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-settler

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"talentpool-backend/internal/bootstrap"
	"talentpool-backend/internal/settlement"
	"talentpool-backend/internal/shared/config"
	"talentpool-backend/internal/shared/storage/db"
	"talentpool-backend/internal/shared/telemetry"
)

var (
	initOnce  sync.Once
	initErr   error
	processor payoutProcessor
)

type payoutProcessor interface {
	Process(ctx context.Context, body string) (settlement.Outcome, error)
}

func initApp() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	ctx := context.Background()
	sqlDB, err := bootstrap.BuildDB(ctx, cfg, db.DefaultSettlerOptions())
	if err != nil {
		initErr = err
		return
	}
	rdb, err := bootstrap.BuildRedis(cfg)
	if err != nil {
		initErr = err
		return
	}
	processor = bootstrap.BuildProcessor(sqlDB, rdb, 0)
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return settleBatch(ctx, processor, event), nil
}

// settleBatch reports only transient failures back to SQS; malformed
// payloads are dropped since redelivery cannot fix them.
func settleBatch(ctx context.Context, p payoutProcessor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		outcome, err := p.Process(ctx, record.Body)
		if err == nil {
			telemetry.Info("settler.payout.completed", map[string]any{
				"sqs_message_id": record.MessageId,
				"outcome":        string(outcome),
			})
			continue
		}
		fields := map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()}
		if settlement.IsPermanent(err) {
			telemetry.Error("settler.payout.unrecoverable", fields)
			continue
		}
		telemetry.Error("settler.payout.failed", fields)
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
