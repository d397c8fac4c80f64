package backend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

// DynamoAPI is the part of *dynamodb.Client DynamoStore uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// fixItem is the table row. The table has partition key surveyor_id and
// sort key timestamp; the fix layout is fixed width UTC so string order is
// time order.
type fixItem struct {
	SurveyorID string   `dynamodbav:"surveyor_id"`
	Timestamp  string   `dynamodbav:"timestamp"`
	Latitude   float64  `dynamodbav:"latitude"`
	Longitude  float64  `dynamodbav:"longitude"`
	Accuracy   *float64 `dynamodbav:"accuracy,omitempty"`
}

func (it fixItem) fix() model.LocationFix {
	return model.LocationFix{
		SurveyorID: it.SurveyorID,
		Latitude:   it.Latitude,
		Longitude:  it.Longitude,
		Timestamp:  it.Timestamp,
		Accuracy:   it.Accuracy,
	}
}

// DynamoStore keeps fixes in a DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// OpenDynamoStore builds a client from the default AWS configuration chain.
func OpenDynamoStore(ctx context.Context, region, tableName string) (*DynamoStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName), nil
}

func (d *DynamoStore) SaveFix(ctx context.Context, fix model.LocationFix) error {
	at, err := fix.Time()
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(fixItem{
		SurveyorID: fix.SurveyorID,
		Timestamp:  utils.FormatFixTimestamp(at),
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Accuracy:   fix.Accuracy,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal fix: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save fix to DynamoDB: %w", err)
	}
	return nil
}

func (d *DynamoStore) Latest(ctx context.Context, surveyorID string) (*model.LocationFix, error) {
	result, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("surveyor_id = :id"),
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":id": &dynamodbtypes.AttributeValueMemberS{Value: surveyorID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query latest fix: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}
	var it fixItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fix: %w", err)
	}
	f := it.fix()
	return &f, nil
}

func (d *DynamoStore) LatestAll(ctx context.Context) ([]model.LocationFix, error) {
	latest := map[string]fixItem{}
	var lastEvaluatedKey map[string]dynamodbtypes.AttributeValue
	for {
		input := &dynamodb.ScanInput{TableName: aws.String(d.tableName)}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}
		result, err := d.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fixes: %w", err)
		}
		var items []fixItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fixes: %w", err)
		}
		for _, it := range items {
			if cur, ok := latest[it.SurveyorID]; !ok || it.Timestamp > cur.Timestamp {
				latest[it.SurveyorID] = it
			}
		}
		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}

	out := make([]model.LocationFix, 0, len(latest))
	for _, it := range latest {
		out = append(out, it.fix())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurveyorID < out[j].SurveyorID })
	return out, nil
}

func (d *DynamoStore) Track(ctx context.Context, surveyorID string, from, to time.Time) ([]model.LocationFix, error) {
	out := []model.LocationFix{}
	var lastEvaluatedKey map[string]dynamodbtypes.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(d.tableName),
			KeyConditionExpression: aws.String("surveyor_id = :id AND #ts BETWEEN :from AND :to"),
			ExpressionAttributeNames: map[string]string{
				"#ts": "timestamp",
			},
			ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
				":id":   &dynamodbtypes.AttributeValueMemberS{Value: surveyorID},
				":from": &dynamodbtypes.AttributeValueMemberS{Value: utils.FormatFixTimestamp(from)},
				":to":   &dynamodbtypes.AttributeValueMemberS{Value: utils.FormatFixTimestamp(to)},
			},
			ScanIndexForward: aws.Bool(true),
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}
		result, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query track: %w", err)
		}
		var items []fixItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fixes: %w", err)
		}
		for _, it := range items {
			out = append(out, it.fix())
		}
		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}
	return out, nil
}
