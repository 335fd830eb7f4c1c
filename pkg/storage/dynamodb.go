package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Store reads and writes guardian records in one DynamoDB table.
type Store struct {
	client DynamoDBAPI
	table  string
	now    func() time.Time // injectable for testing
}

// NewStore creates a store for the given table.
func NewStore(client DynamoDBAPI, table string) *Store {
	return &Store{client: client, table: table, now: time.Now}
}

// NewStoreFromConfig creates a store with a real DynamoDB client.
func NewStoreFromConfig(cfg aws.Config, table string) *Store {
	return NewStore(dynamodb.NewFromConfig(cfg), table)
}

func keyAttr(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func marshalKeyed(v any, pk, sk string) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, err
	}
	item["PK"] = keyAttr(pk)
	item["SK"] = keyAttr(sk)
	return item, nil
}

// PutSnapshot stores a cost snapshot.
func (s *Store) PutSnapshot(ctx context.Context, snap CostSnapshot) error {
	item, err := marshalKeyed(snap, snap.PK(), snap.SK())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.SnapshotID, err)
	}
	return nil
}

// BatchPutSnapshots stores snapshots in chunks of 25 (the BatchWriteItem cap).
func (s *Store) BatchPutSnapshots(ctx context.Context, snaps []CostSnapshot) error {
	for start := 0; start < len(snaps); start += 25 {
		end := start + 25
		if end > len(snaps) {
			end = len(snaps)
		}
		requests := make([]types.WriteRequest, 0, end-start)
		for _, snap := range snaps[start:end] {
			item, err := marshalKeyed(snap, snap.PK(), snap.SK())
			if err != nil {
				return fmt.Errorf("marshal snapshot: %w", err)
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}
		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: requests},
		})
		if err != nil {
			return fmt.Errorf("batch put snapshots: %w", err)
		}
	}
	return nil
}

// GetSnapshot fetches one snapshot by its full key.
func (s *Store) GetSnapshot(ctx context.Context, date string, hour int, accountID string) (*CostSnapshot, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": keyAttr("SNAPSHOT#" + date),
			"SK": keyAttr(fmt.Sprintf("HOUR#%02d#%s", hour, accountID)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s/%02d: %w", date, hour, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var snap CostSnapshot
	if err := attributevalue.UnmarshalMap(out.Item, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// SnapshotsForDate returns all snapshots stored under one date partition.
func (s *Store) SnapshotsForDate(ctx context.Context, date string) ([]CostSnapshot, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": keyAttr("SNAPSHOT#" + date),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query snapshots for %s: %w", date, err)
	}
	snaps := make([]CostSnapshot, 0, len(out.Items))
	for _, item := range out.Items {
		var snap CostSnapshot
		if err := attributevalue.UnmarshalMap(item, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// RecentSnapshots returns snapshots for the last N days, today included.
// An empty accountID matches every account.
func (s *Store) RecentSnapshots(ctx context.Context, days int, accountID string) ([]CostSnapshot, error) {
	var snaps []CostSnapshot
	today := s.now().UTC()
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		daySnaps, err := s.SnapshotsForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, snap := range daySnaps {
			if accountID == "" || snap.AccountID == accountID {
				snaps = append(snaps, snap)
			}
		}
	}
	return snaps, nil
}

// LatestSnapshot returns the most recent snapshot for an account, looking
// back up to a week. Returns nil when none exists.
func (s *Store) LatestSnapshot(ctx context.Context, accountID string) (*CostSnapshot, error) {
	today := s.now().UTC()
	for i := 0; i < 7; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		daySnaps, err := s.SnapshotsForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		var latest *CostSnapshot
		for j := range daySnaps {
			snap := daySnaps[j]
			if accountID != "" && snap.AccountID != accountID {
				continue
			}
			if latest == nil || snap.Hour > latest.Hour {
				latest = &snap
			}
		}
		if latest != nil {
			return latest, nil
		}
	}
	return nil, nil
}

// PutFeedback stores anomaly feedback.
func (s *Store) PutFeedback(ctx context.Context, fb AnomalyFeedback) error {
	item, err := marshalKeyed(fb, fb.PK(), fb.SK())
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put feedback %s: %w", fb.FeedbackID, err)
	}
	return nil
}

// FeedbackForDate returns all feedback recorded on one date.
func (s *Store) FeedbackForDate(ctx context.Context, date string) ([]AnomalyFeedback, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": keyAttr("FEEDBACK#" + date),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query feedback for %s: %w", date, err)
	}
	fbs := make([]AnomalyFeedback, 0, len(out.Items))
	for _, item := range out.Items {
		var fb AnomalyFeedback
		if err := attributevalue.UnmarshalMap(item, &fb); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		fbs = append(fbs, fb)
	}
	return fbs, nil
}

// RecentFeedback returns feedback from the last N days.
func (s *Store) RecentFeedback(ctx context.Context, days int) ([]AnomalyFeedback, error) {
	var fbs []AnomalyFeedback
	today := s.now().UTC()
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		dayFbs, err := s.FeedbackForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		fbs = append(fbs, dayFbs...)
	}
	return fbs, nil
}

// PutChange stores a change log entry.
func (s *Store) PutChange(ctx context.Context, change ChangeLog) error {
	item, err := marshalKeyed(change, change.PK(), change.SK())
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put change %s: %w", change.ChangeID, err)
	}
	return nil
}

// ChangesForService returns every change tracked for one service.
func (s *Store) ChangesForService(ctx context.Context, service string) ([]ChangeLog, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": keyAttr("CHANGE#" + service),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query changes for %s: %w", service, err)
	}
	changes := make([]ChangeLog, 0, len(out.Items))
	for _, item := range out.Items {
		var change ChangeLog
		if err := attributevalue.UnmarshalMap(item, &change); err != nil {
			return nil, fmt.Errorf("unmarshal change: %w", err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// ActiveChanges returns all change records still marked active. Change
// partitions are keyed by service, so this is a filtered scan; the table is
// small and the call runs a handful of times per day.
func (s *Store) ActiveChanges(ctx context.Context) ([]ChangeLog, error) {
	var changes []ChangeLog
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("begins_with(PK, :pk) AND #status = :status"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     keyAttr("CHANGE#"),
				":status": keyAttr(ChangeStatusActive),
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan active changes: %w", err)
		}
		for _, item := range out.Items {
			var change ChangeLog
			if err := attributevalue.UnmarshalMap(item, &change); err != nil {
				return nil, fmt.Errorf("unmarshal change: %w", err)
			}
			changes = append(changes, change)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return changes, nil
}

// UpdateChangeStatus transitions a change to a new status, recording
// optional resolution notes.
func (s *Store) UpdateChangeStatus(ctx context.Context, change ChangeLog, status, notes string) error {
	expr := "SET #status = :status"
	values := map[string]types.AttributeValue{
		":status": keyAttr(status),
	}
	if notes != "" {
		expr += ", resolution_notes = :notes"
		values[":notes"] = keyAttr(notes)
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": keyAttr(change.PK()),
			"SK": keyAttr(change.SK()),
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update change %s status: %w", change.ChangeID, err)
	}
	return nil
}
