// Package dynamo persists idempotency records in a DynamoDB table.
//
// The table needs a string partition key (default attribute name "id") and,
// optionally, TTL enabled on the expiration attribute so DynamoDB garbage
// collects stale records. Expiry correctness does not depend on TTL: the
// conditional put treats a past expiration as an absent record either way.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/julianobarbosa/lambdakit/idempotency"
)

// Client is the subset of the DynamoDB API the backend needs. *dynamodb.Client
// satisfies it; tests substitute a fake.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Backend implements idempotency.Backend on a DynamoDB table.
type Backend struct {
	client Client
	table  string

	keyAttr        string
	expiryAttr     string
	statusAttr     string
	dataAttr       string
	validationAttr string

	now func() int64
}

// Compile-time check against the persistence contract.
var _ idempotency.Backend = (*Backend)(nil)

// Option customizes attribute names.
type Option func(*Backend)

// WithKeyAttr overrides the partition key attribute name.
func WithKeyAttr(name string) Option { return func(b *Backend) { b.keyAttr = name } }

// WithExpiryAttr overrides the expiry attribute name.
func WithExpiryAttr(name string) Option { return func(b *Backend) { b.expiryAttr = name } }

// WithStatusAttr overrides the status attribute name.
func WithStatusAttr(name string) Option { return func(b *Backend) { b.statusAttr = name } }

// WithDataAttr overrides the response data attribute name.
func WithDataAttr(name string) Option { return func(b *Backend) { b.dataAttr = name } }

// WithValidationAttr overrides the validation hash attribute name.
func WithValidationAttr(name string) Option { return func(b *Backend) { b.validationAttr = name } }

// New builds a backend for the given table.
func New(client Client, table string, opts ...Option) *Backend {
	if client == nil {
		panic("dynamo: client cannot be nil")
	}
	if table == "" {
		panic("dynamo: table name cannot be empty")
	}

	b := &Backend{
		client:         client,
		table:          table,
		keyAttr:        "id",
		expiryAttr:     "expiration",
		statusAttr:     "status",
		dataAttr:       "data",
		validationAttr: "validation",
		now:            nowEpoch,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PutRecord writes record only when the key is absent or the standing record
// has expired, in a single conditional put.
func (b *Backend) PutRecord(ctx context.Context, record *idempotency.Record) error {
	item := map[string]types.AttributeValue{
		b.keyAttr:    &types.AttributeValueMemberS{Value: record.IdempotencyKey},
		b.expiryAttr: &types.AttributeValueMemberN{Value: strconv.FormatInt(record.ExpiryTimestamp, 10)},
		b.statusAttr: &types.AttributeValueMemberS{Value: string(record.Status)},
	}
	if record.PayloadHash != "" {
		item[b.validationAttr] = &types.AttributeValueMemberS{Value: record.PayloadHash}
	}

	_, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(b.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id) OR #expiry < :now"),
		ExpressionAttributeNames: map[string]string{
			"#id":     b.keyAttr,
			"#expiry": b.expiryAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(b.now(), 10)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return idempotency.ErrItemAlreadyExists
		}
		return fmt.Errorf("dynamo: put item: %w", err)
	}
	return nil
}

// GetRecord reads the record with a strongly consistent get, so a claim made
// through another instance is visible immediately.
func (b *Backend) GetRecord(ctx context.Context, key string) (*idempotency.Record, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            b.recordKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, idempotency.ErrItemNotFound
	}
	return b.itemToRecord(out.Item)
}

// UpdateRecord moves the record to its final state via an update expression.
func (b *Backend) UpdateRecord(ctx context.Context, record *idempotency.Record) error {
	expression := "SET #response_data = :response_data, #expiry = :expiry, #status = :status"
	names := map[string]string{
		"#response_data": b.dataAttr,
		"#expiry":        b.expiryAttr,
		"#status":        b.statusAttr,
	}
	values := map[string]types.AttributeValue{
		":response_data": &types.AttributeValueMemberS{Value: string(record.ResponseData)},
		":expiry":        &types.AttributeValueMemberN{Value: strconv.FormatInt(record.ExpiryTimestamp, 10)},
		":status":        &types.AttributeValueMemberS{Value: string(record.Status)},
	}

	if record.PayloadHash != "" {
		expression += ", #validation_key = :validation_key"
		names["#validation_key"] = b.validationAttr
		values[":validation_key"] = &types.AttributeValueMemberS{Value: record.PayloadHash}
	}

	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(b.table),
		Key:                       b.recordKey(record.IdempotencyKey),
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("dynamo: update item: %w", err)
	}
	return nil
}

// DeleteRecord removes the record for key.
func (b *Backend) DeleteRecord(ctx context.Context, key string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       b.recordKey(key),
	})
	if err != nil {
		return fmt.Errorf("dynamo: delete item: %w", err)
	}
	return nil
}

// nowEpoch is the default time source, overridable in tests.
func nowEpoch() int64 {
	return time.Now().Unix()
}

// recordKey builds the primary key map for key.
func (b *Backend) recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		b.keyAttr: &types.AttributeValueMemberS{Value: key},
	}
}

// storedItem mirrors the table attributes for unmarshalling.
type storedItem struct {
	ID         string `dynamodbav:"id"`
	Status     string `dynamodbav:"status"`
	Data       string `dynamodbav:"data"`
	Expiration int64  `dynamodbav:"expiration"`
	Validation string `dynamodbav:"validation"`
}

// itemToRecord converts a raw item into a Record. Renamed attributes are
// mapped back to the default names before unmarshalling so one struct covers
// every configuration.
func (b *Backend) itemToRecord(item map[string]types.AttributeValue) (*idempotency.Record, error) {
	normalized := map[string]types.AttributeValue{}
	for attr, def := range map[string]string{
		b.keyAttr:        "id",
		b.statusAttr:     "status",
		b.dataAttr:       "data",
		b.expiryAttr:     "expiration",
		b.validationAttr: "validation",
	} {
		if v, ok := item[attr]; ok {
			normalized[def] = v
		}
	}

	var stored storedItem
	if err := attributevalue.UnmarshalMap(normalized, &stored); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal item: %w", err)
	}

	return &idempotency.Record{
		IdempotencyKey:  stored.ID,
		Status:          idempotency.Status(stored.Status),
		ResponseData:    []byte(stored.Data),
		ExpiryTimestamp: stored.Expiration,
		PayloadHash:     stored.Validation,
	}, nil
}
