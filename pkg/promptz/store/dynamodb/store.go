// Package dynamodb stores entities in Amazon DynamoDB, one table per kind,
// using conditional writes for ownership and create-once semantics.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/internal/awsconf"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Config options for the DynamoDB store
type Config struct {
	awsconf.Config
	TablePrefix string // Prepended to each kind's plural, e.g. "promptz-dev-"
}

// Store implements promptz.Store on DynamoDB.
type Store struct {
	client Client
	prefix string
}

var _ promptz.Store = (*Store)(nil)

// New creates a store with a client built from config.
func New(ctx context.Context, config Config) (*Store, error) {
	awsCfg, err := awsconf.Load(ctx, config.Config)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if ep := config.BaseEndpoint(); ep != nil {
			o.BaseEndpoint = ep
		}
	})
	return NewWithClient(client, config.TablePrefix), nil
}

// NewWithClient creates a store over an existing client.
func NewWithClient(client Client, tablePrefix string) *Store {
	return &Store{client: client, prefix: tablePrefix}
}

func (s *Store) table(kind promptz.Kind) *string {
	return aws.String(kind.Table(s.prefix))
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

// ownedBy is the ownership condition of updates and deletes.
const ownedBy = "attribute_exists(#id) AND #owner = :owner"

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func wrapError(op string, kind promptz.Kind, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("dynamodb %s %s: %s: %w", op, kind.Name, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("dynamodb %s %s: %w", op, kind.Name, err)
}

func decode(item map[string]types.AttributeValue) (*promptz.Entity, error) {
	var e promptz.Entity
	if err := attributevalue.UnmarshalMap(item, &e); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return &e, nil
}

func (s *Store) Create(ctx context.Context, kind promptz.Kind, entity *promptz.Entity) error {
	e := entity.Clone()
	if e.Tags == nil {
		e.Tags = []string{}
	}
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                s.table(kind),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
	})
	if isConditionFailed(err) {
		return promptz.ErrConflict
	}
	if err != nil {
		return wrapError("create", kind, err)
	}
	return nil
}

// mutableAttributes lists the attributes an update overwrites.
var mutableAttributes = []string{
	"slug", "name", "description", "content", "howto", "tags", "scope", "sourceURL", "updatedAt",
}

func (s *Store) Update(ctx context.Context, kind promptz.Kind, owner string, entity *promptz.Entity) (*promptz.Entity, error) {
	tags := entity.Tags
	if tags == nil {
		tags = []string{}
	}
	values := map[string]any{
		"slug":        entity.Slug,
		"name":        entity.Name,
		"description": entity.Description,
		"content":     entity.Content,
		"howto":       entity.HowTo,
		"tags":        tags,
		"scope":       string(entity.Scope),
		"sourceURL":   entity.SourceURL,
		"updatedAt":   entity.UpdatedAt,
	}

	names := map[string]string{"#id": "id", "#owner": "owner"}
	attrValues := map[string]types.AttributeValue{
		":owner": &types.AttributeValueMemberS{Value: owner},
	}
	expr := "SET "
	for i, attr := range mutableAttributes {
		av, err := attributevalue.Marshal(values[attr])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", attr, err)
		}
		placeholder := "a" + strconv.Itoa(i)
		names["#"+placeholder] = attr
		attrValues[":"+placeholder] = av
		if i > 0 {
			expr += ", "
		}
		expr += "#" + placeholder + " = :" + placeholder
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 s.table(kind),
		Key:                       key(entity.ID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String(ownedBy),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: attrValues,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, promptz.ErrUnauthorized
	}
	if err != nil {
		return nil, wrapError("update", kind, err)
	}
	return decode(out.Attributes)
}

func (s *Store) Delete(ctx context.Context, kind promptz.Kind, id, owner string) (*promptz.Entity, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                s.table(kind),
		Key:                      key(id),
		ConditionExpression:      aws.String(ownedBy),
		ExpressionAttributeNames: map[string]string{"#id": "id", "#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if isConditionFailed(err) {
		return nil, promptz.ErrUnauthorized
	}
	if err != nil {
		return nil, wrapError("delete", kind, err)
	}
	return decode(out.Attributes)
}

func (s *Store) Increment(ctx context.Context, kind promptz.Kind, id string, counter promptz.Counter) (*promptz.Entity, error) {
	if !counter.IsValid() {
		return nil, fmt.Errorf("%w: unknown counter %q", promptz.ErrInvalidRequest, counter)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                s.table(kind),
		Key:                      key(id),
		UpdateExpression:         aws.String("SET #c = if_not_exists(#c, :zero) + :one"),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": "id", "#c": string(counter)},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, promptz.ErrNotFound
	}
	if err != nil {
		return nil, wrapError("increment", kind, err)
	}
	return decode(out.Attributes)
}

func (s *Store) Get(ctx context.Context, kind promptz.Kind, id string) (*promptz.Entity, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table(kind),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapError("get", kind, err)
	}
	if len(out.Item) == 0 {
		return nil, promptz.ErrNotFound
	}
	return decode(out.Item)
}

// CreateTables creates an on-demand table per kind. Existing tables are left
// untouched.
func (s *Store) CreateTables(ctx context.Context, kinds ...promptz.Kind) error {
	for _, kind := range kinds {
		_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: s.table(kind),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			continue
		}
		if err != nil {
			return wrapError("create table", kind, err)
		}
	}
	return nil
}
