package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type auditItem struct {
	ID          string    `dynamodbav:"id"`
	Provider    string    `dynamodbav:"provider"`
	PayloadHash string    `dynamodbav:"payload_hash"`
	Result      string    `dynamodbav:"result"`
	Error       string    `dynamodbav:"error,omitempty"`
	ReceivedAt  time.Time `dynamodbav:"received_at"`
}

// AuditLog appends webhook deliveries to their own table. Entries are write-once.
type AuditLog struct {
	Client DynamoDBAPI
	Table  string
}

var _ domain.CallbackAuditLog = (*AuditLog)(nil)

func NewAuditLog(client DynamoDBAPI, table string) *AuditLog {
	return &AuditLog{Client: client, Table: table}
}

func (l *AuditLog) Record(ctx context.Context, entry domain.CallbackAuditEntry) error {
	av, err := attributevalue.MarshalMap(auditItem{
		ID:          entry.ID,
		Provider:    entry.Provider,
		PayloadHash: entry.PayloadHash,
		Result:      entry.Result,
		Error:       entry.Error,
		ReceivedAt:  entry.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	_, err = l.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.Table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put audit entry %s: %w", entry.ID, err)
	}
	return nil
}
