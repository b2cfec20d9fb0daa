package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-cardlink-api/internal/domain"
)

// ClaimRepo reserves usernames. PK: username. Each user also owns a pointer
// item keyed user#<user_id> whose current attribute names the username they
// hold; it is read with strong consistency and guarded in every claim
// transaction so a user can never end up holding two names.
type ClaimRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewClaimRepo(client API, tableName string) *ClaimRepo {
	return &ClaimRepo{client: client, tableName: tableName, now: time.Now}
}

type claimPointer struct {
	Key       string    `dynamodbav:"username"`
	Current   string    `dynamodbav:"current"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// Positions of the items in a claim transaction.
const (
	txClaimName = iota
	txClaimPointer
	txClaimRelease
)

func pointerKey(userID string) string { return claimPointerPrefix + userID }

func (r *ClaimRepo) Get(ctx context.Context, username string) (*domain.UsernameClaim, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUsername, username),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("claim %s: %w", username, domain.ErrNotFound)
	}
	var c domain.UsernameClaim
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal claim: %w", err)
	}
	return &c, nil
}

// GetByUser returns the claim currently held by userID, read through the
// user's pointer item.
func (r *ClaimRepo) GetByUser(ctx context.Context, userID string) (*domain.UsernameClaim, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUsername, pointerKey(userID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get claim pointer: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("claim for user %s: %w", userID, domain.ErrNotFound)
	}
	var p claimPointer
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal claim pointer: %w", err)
	}
	if p.Current == "" {
		return nil, fmt.Errorf("claim for user %s: %w", userID, domain.ErrNotFound)
	}
	return &domain.UsernameClaim{Username: p.Current, UserID: userID}, nil
}

// Claim reserves c.Username for c.UserID and moves the user's pointer from
// previous to the new name in one transaction, releasing previous when
// non-empty. The pointer write is conditioned on still naming previous, so a
// concurrent claim by the same user fails instead of leaving two names held.
// A name held by someone else, or a lost race, yields domain.ErrConflict.
func (r *ClaimRepo) Claim(ctx context.Context, c *domain.UsernameClaim, previous string) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal claim: %w", err)
	}
	ptr, err := attributevalue.MarshalMap(claimPointer{Key: pointerKey(c.UserID), Current: c.Username, UpdatedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal claim pointer: %w", err)
	}

	pointerPut := &types.Put{
		TableName:           aws.String(r.tableName),
		Item:                ptr,
		ConditionExpression: aws.String("attribute_not_exists(username)"),
	}
	if previous != "" {
		pointerPut.ConditionExpression = aws.String("#cur = :prev")
		pointerPut.ExpressionAttributeNames = map[string]string{"#cur": fieldCurrent}
		pointerPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: previous},
		}
	}

	items := []types.TransactWriteItem{
		txClaimName: {Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(username)"),
		}},
		txClaimPointer: {Put: pointerPut},
	}
	if previous != "" {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName:           aws.String(r.tableName),
			Key:                 strKey(fieldUsername, previous),
			ConditionExpression: aws.String("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: c.UserID},
			},
		}})
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("claim username: %w", err)
	}
	failed := failedConditions(tce.CancellationReasons)
	if slices.Contains(failed, txClaimName) {
		return fmt.Errorf("username %s: %w", c.Username, domain.ErrConflict)
	}
	if len(failed) > 0 || len(transactionConflicts(tce.CancellationReasons)) > 0 {
		return fmt.Errorf("username changed concurrently for user %s: %w", c.UserID, domain.ErrConflict)
	}
	return fmt.Errorf("claim username: %w", err)
}
