package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-cardlink-api/internal/domain"
)

// Positions of the items written by Create's transaction.
const (
	txUserItem = iota
	txEmailGuard
	txPhoneGuard
)

// UserRepo stores users in the users table and keeps email/phone uniqueness
// through guard items in the user_uniques table.
type UserRepo struct {
	client          API
	tableName       string
	uniqueTable     string
	conflictBackoff time.Duration
}

// createAttempts bounds how often Create retries a transaction that collided
// with a concurrent create of the same email or phone.
const createAttempts = 3

func NewUserRepo(client API, tableName, uniqueTable string) *UserRepo {
	return &UserRepo{
		client:          client,
		tableName:       tableName,
		uniqueTable:     uniqueTable,
		conflictBackoff: 50 * time.Millisecond,
	}
}

type uniqueGuard struct {
	UniqueKey string `dynamodbav:"unique_key"`
	UserID    string `dynamodbav:"user_id"`
}

// Create writes the user and its guards in one transaction. A lost guard is
// reported as domain.ErrEmailTaken or domain.ErrPhoneTaken.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(user_id)"),
		}},
	}
	guardPut, err := r.guardPut(uniqueEmailPrefix+u.Email, u.UserID)
	if err != nil {
		return err
	}
	items = append(items, guardPut)
	if u.PhoneNumber != nil && *u.PhoneNumber != "" {
		guardPut, err := r.guardPut(uniquePhonePrefix+*u.PhoneNumber, u.UserID)
		if err != nil {
			return err
		}
		items = append(items, guardPut)
	}

	for attempt := 1; ; attempt++ {
		_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
		if err == nil {
			return nil
		}
		var tce *types.TransactionCanceledException
		if !errors.As(err, &tce) {
			return fmt.Errorf("create user: %w", err)
		}
		if gerr := guardError(u, failedConditions(tce.CancellationReasons)); gerr != nil {
			return gerr
		}
		conflicts := transactionConflicts(tce.CancellationReasons)
		if len(conflicts) == 0 {
			return fmt.Errorf("create user: %w", err)
		}
		// A concurrent create holds the same guard. Once it commits, the retry
		// fails its condition check and reports which value was taken.
		if attempt == createAttempts {
			if gerr := guardError(u, conflicts); gerr != nil {
				return gerr
			}
			return fmt.Errorf("create user: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.conflictBackoff):
		}
	}
}

// guardError maps the failing transaction positions to the uniqueness error
// of the first guard that lost, or nil when none did.
func guardError(u *domain.User, positions []int) error {
	for _, i := range positions {
		switch i {
		case txEmailGuard:
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrEmailTaken)
		case txPhoneGuard:
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrPhoneTaken)
		case txUserItem:
			return fmt.Errorf("create user %s: %w", u.UserID, domain.ErrConflict)
		}
	}
	return nil
}

func (r *UserRepo) guardPut(key, userID string) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(uniqueGuard{UniqueKey: key, UserID: userID})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal guard: %w", err)
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           aws.String(r.uniqueTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(unique_key)"),
	}}, nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getByGuard(ctx, uniqueEmailPrefix+email)
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getByGuard(ctx, uniquePhonePrefix+phone)
}

// getByGuard resolves a guard item to its owning user with strongly consistent reads,
// so a record written by a concurrent winner is visible immediately.
func (r *UserRepo) getByGuard(ctx context.Context, key string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.uniqueTable),
		Key:            strKey(fieldUniqueKey, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get unique %s: %w", key, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("unique %s: %w", key, domain.ErrNotFound)
	}
	var g uniqueGuard
	if err := attributevalue.UnmarshalMap(out.Item, &g); err != nil {
		return nil, fmt.Errorf("unmarshal guard: %w", err)
	}
	return r.Get(ctx, g.UserID)
}

// UpdateVerificationStatus sets one verification flag on the user owning email.
func (r *UserRepo) UpdateVerificationStatus(ctx context.Context, email string, channel domain.Channel, value bool) error {
	field := fieldEmailVerified
	if channel == domain.ChannelMobile {
		field = fieldMobileVerified
	}
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	ue, err := buildUpdateExpr(map[string]interface{}{
		field:          value,
		fieldUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, u.UserID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("user %s: %w", u.UserID, domain.ErrNotFound)
		}
		return fmt.Errorf("update verification status: %w", err)
	}
	return nil
}
