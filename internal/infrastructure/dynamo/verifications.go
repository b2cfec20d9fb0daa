package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-cardlink-api/internal/domain"
)

// VerificationRepo stores pending one-time codes for one keyspace (email or phone).
// PK: identifier. DynamoDB TTL purges items at purge_at, which trails expires_at by the retention window.
type VerificationRepo struct {
	client    API
	tableName string
	retention time.Duration
}

func NewVerificationRepo(client API, tableName string, retention time.Duration) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName, retention: retention}
}

type verificationItem struct {
	domain.PendingVerification
	PurgeAt int64 `dynamodbav:"purge_at"`
}

func (r *VerificationRepo) Set(ctx context.Context, identifier string, v *domain.PendingVerification) error {
	rec := *v
	rec.Identifier = identifier
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid verification record: %w", err)
	}
	item, err := attributevalue.MarshalMap(verificationItem{
		PendingVerification: rec,
		PurgeAt:             rec.ExpiresAt + int64(r.retention/time.Second),
	})
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put verification: %w", err)
	}
	return nil
}

// Get returns the record regardless of expiry; callers decide what expired means.
func (r *VerificationRepo) Get(ctx context.Context, identifier string) (*domain.PendingVerification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldIdentifier, identifier),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	var item verificationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal verification: %w", err)
	}
	v := item.PendingVerification
	return &v, nil
}

func (r *VerificationRepo) Delete(ctx context.Context, identifier string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldIdentifier, identifier),
	})
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	return nil
}
