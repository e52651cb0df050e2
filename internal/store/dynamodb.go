package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/costguard/costguard/internal/models"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
// Satisfied by *dynamodb.Client; replaced with a fake in tests.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDB is the production Store: one table, composite string keys.
//
// Key layout (matching the original deployment so existing tables keep
// working):
//
//	snapshot:  PK SNAPSHOT#<date>    SK PERIOD#<period>#<account>
//	feedback:  PK FEEDBACK#<date>    SK ALERT#<alert_id>#USER#<user_id>
//	change:    PK CHANGE#<service>   SK DATE#<date>#<change_id>
//
// Items carry a "ttl" attribute for DynamoDB TTL-based retention.
type DynamoDB struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoDB returns a Store backed by the named table.
func NewDynamoDB(client DynamoDBAPI, table string) *DynamoDB {
	return &DynamoDB{client: client, table: table}
}

const (
	pkSnapshotPrefix = "SNAPSHOT#"
	pkFeedbackPrefix = "FEEDBACK#"
	pkChangePrefix   = "CHANGE#"
)

// snapshotItem is the DynamoDB shape of a CostSnapshot.
type snapshotItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`

	SnapshotID    string             `dynamodbav:"snapshot_id"`
	Timestamp     string             `dynamodbav:"timestamp"`
	AccountID     string             `dynamodbav:"account_id"`
	Date          string             `dynamodbav:"date"`
	PeriodType    string             `dynamodbav:"period_type"`
	TotalCost     float64            `dynamodbav:"total_cost"`
	Currency      string             `dynamodbav:"currency"`
	CostByService map[string]float64 `dynamodbav:"cost_by_service"`

	BudgetStatus *models.BudgetStatus `dynamodbav:"budget_status,omitempty"`
	Forecast     *models.Forecast     `dynamodbav:"forecast,omitempty"`
	Anomalies    []models.Anomaly     `dynamodbav:"anomalies_detected,omitempty"`

	TTL int64 `dynamodbav:"ttl,omitempty"`
}

func snapshotPK(date string) string { return pkSnapshotPrefix + date }

func snapshotSK(period models.PeriodType, accountID string) string {
	return fmt.Sprintf("PERIOD#%s#%s", period, accountID)
}

func toSnapshotItem(snap *models.CostSnapshot) snapshotItem {
	return snapshotItem{
		PK:            snapshotPK(snap.Date),
		SK:            snapshotSK(snap.PeriodType, snap.AccountID),
		SnapshotID:    snap.SnapshotID,
		Timestamp:     snap.Timestamp.UTC().Format(time.RFC3339),
		AccountID:     snap.AccountID,
		Date:          snap.Date,
		PeriodType:    string(snap.PeriodType),
		TotalCost:     snap.TotalCost,
		Currency:      snap.Currency,
		CostByService: snap.CostByService,
		BudgetStatus:  snap.BudgetStatus,
		Forecast:      snap.Forecast,
		Anomalies:     snap.AnomaliesDetected,
		TTL:           snap.RetentionExpiry,
	}
}

func (it snapshotItem) toModel() models.CostSnapshot {
	ts, _ := time.Parse(time.RFC3339, it.Timestamp)
	return models.CostSnapshot{
		SnapshotID:        it.SnapshotID,
		Timestamp:         ts,
		AccountID:         it.AccountID,
		Date:              it.Date,
		PeriodType:        models.PeriodType(it.PeriodType),
		TotalCost:         it.TotalCost,
		Currency:          it.Currency,
		CostByService:     it.CostByService,
		BudgetStatus:      it.BudgetStatus,
		Forecast:          it.Forecast,
		AnomaliesDetected: it.Anomalies,
		RetentionExpiry:   it.TTL,
	}
}

func (d *DynamoDB) PutSnapshot(ctx context.Context, snap *models.CostSnapshot) error {
	item, err := attributevalue.MarshalMap(toSnapshotItem(snap))
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrSnapshotExists
		}
		return fmt.Errorf("put snapshot %s: %w", snap.Date, err)
	}
	return nil
}

func (d *DynamoDB) GetSnapshot(ctx context.Context, date string, period models.PeriodType, accountID string) (*models.CostSnapshot, error) {
	key, err := attributevalue.MarshalMap(map[string]string{
		"PK": snapshotPK(date),
		"SK": snapshotSK(period, accountID),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot key: %w", err)
	}

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", date, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", date, err)
	}
	snap := item.toModel()
	return &snap, nil
}

// RecentSnapshots queries one partition per calendar day. Days with no
// snapshot are skipped, so sparse history simply yields a shorter slice.
func (d *DynamoDB) RecentSnapshots(ctx context.Context, accountID, before string, days int) ([]models.CostSnapshot, error) {
	cutoff, err := time.Parse("2006-01-02", before)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", before, err)
	}

	var out []models.CostSnapshot
	for i := 1; i <= days; i++ {
		date := cutoff.AddDate(0, 0, -i).Format("2006-01-02")
		snap, err := d.GetSnapshot(ctx, date, models.PeriodDaily, accountID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// feedbackItem is the DynamoDB shape of a Feedback record.
type feedbackItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`

	FeedbackID       string   `dynamodbav:"feedback_id"`
	AlertID          string   `dynamodbav:"alert_id"`
	Timestamp        string   `dynamodbav:"timestamp"`
	Date             string   `dynamodbav:"date"`
	UserID           string   `dynamodbav:"user_id"`
	UserName         string   `dynamodbav:"user_name,omitempty"`
	FeedbackType     string   `dynamodbav:"feedback_type"`
	AffectedServices []string `dynamodbav:"affected_services,omitempty"`
	CostImpact       float64  `dynamodbav:"cost_impact"`
	DurationType     string   `dynamodbav:"duration_type"`
	ExpectedDays     int      `dynamodbav:"expected_duration_days,omitempty"`
	Explanation      string   `dynamodbav:"explanation,omitempty"`

	TTL int64 `dynamodbav:"ttl,omitempty"`
}

func toFeedbackItem(fb *models.Feedback) feedbackItem {
	return feedbackItem{
		PK:               pkFeedbackPrefix + fb.Date,
		SK:               fmt.Sprintf("ALERT#%s#USER#%s", fb.AlertID, fb.UserID),
		FeedbackID:       fb.FeedbackID,
		AlertID:          fb.AlertID,
		Timestamp:        fb.Timestamp.UTC().Format(time.RFC3339),
		Date:             fb.Date,
		UserID:           fb.UserID,
		UserName:         fb.UserName,
		FeedbackType:     string(fb.FeedbackType),
		AffectedServices: fb.AffectedServices,
		CostImpact:       fb.CostImpact,
		DurationType:     string(fb.DurationType),
		ExpectedDays:     fb.ExpectedDurationDays,
		Explanation:      fb.Explanation,
		TTL:              fb.RetentionExpiry,
	}
}

func (it feedbackItem) toModel() models.Feedback {
	ts, _ := time.Parse(time.RFC3339, it.Timestamp)
	return models.Feedback{
		FeedbackID:           it.FeedbackID,
		AlertID:              it.AlertID,
		Timestamp:            ts,
		Date:                 it.Date,
		UserID:               it.UserID,
		UserName:             it.UserName,
		FeedbackType:         models.FeedbackType(it.FeedbackType),
		AffectedServices:     it.AffectedServices,
		CostImpact:           it.CostImpact,
		DurationType:         models.DurationType(it.DurationType),
		ExpectedDurationDays: it.ExpectedDays,
		Explanation:          it.Explanation,
		RetentionExpiry:      it.TTL,
	}
}

func (d *DynamoDB) PutFeedback(ctx context.Context, fb *models.Feedback) error {
	item, err := attributevalue.MarshalMap(toFeedbackItem(fb))
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrDuplicateFeedback
		}
		return fmt.Errorf("put feedback for alert %s: %w", fb.AlertID, err)
	}
	return nil
}

func (d *DynamoDB) FeedbackForDate(ctx context.Context, date string) ([]models.Feedback, error) {
	items, err := d.queryPartition(ctx, pkFeedbackPrefix+date)
	if err != nil {
		return nil, err
	}

	out := make([]models.Feedback, 0, len(items))
	for _, raw := range items {
		var item feedbackItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		out = append(out, item.toModel())
	}
	return out, nil
}

// FeedbackByUser is an audit query; it scans the feedback keyspace.
func (d *DynamoDB) FeedbackByUser(ctx context.Context, userID string) ([]models.Feedback, error) {
	var out []models.Feedback
	var startKey map[string]types.AttributeValue

	for {
		res, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(d.table),
			FilterExpression: aws.String("begins_with(PK, :pk) AND user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":  &types.AttributeValueMemberS{Value: pkFeedbackPrefix},
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan feedback for user %s: %w", userID, err)
		}
		for _, raw := range res.Items {
			var item feedbackItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal feedback: %w", err)
			}
			out = append(out, item.toModel())
		}
		if res.LastEvaluatedKey == nil {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	return out, nil
}

// changeItem is the DynamoDB shape of a ChangeLogEntry.
type changeItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`

	ChangeID           string   `dynamodbav:"change_id"`
	Service            string   `dynamodbav:"service"`
	Timestamp          string   `dynamodbav:"timestamp"`
	Date               string   `dynamodbav:"date"`
	ChangeType         string   `dynamodbav:"change_type"`
	Status             string   `dynamodbav:"status"`
	Description        string   `dynamodbav:"description,omitempty"`
	BaselineCost       float64  `dynamodbav:"baseline_cost"`
	NewCost            float64  `dynamodbav:"new_cost"`
	PercentChange      float64  `dynamodbav:"percent_change"`
	AcknowledgedBy     string   `dynamodbav:"acknowledged_by"`
	AcknowledgedAt     string   `dynamodbav:"acknowledged_at"`
	ExpectedEndDate    string   `dynamodbav:"expected_end_date,omitempty"`
	ResolutionNotes    string   `dynamodbav:"resolution_notes,omitempty"`
	RelatedFeedbackIDs []string `dynamodbav:"related_feedback_ids,omitempty"`
	Version            int64    `dynamodbav:"version"`

	TTL int64 `dynamodbav:"ttl,omitempty"`
}

func toChangeItem(entry *models.ChangeLogEntry) changeItem {
	return changeItem{
		PK:                 pkChangePrefix + entry.Service,
		SK:                 fmt.Sprintf("DATE#%s#%s", entry.Date, entry.ChangeID),
		ChangeID:           entry.ChangeID,
		Service:            entry.Service,
		Timestamp:          entry.Timestamp.UTC().Format(time.RFC3339),
		Date:               entry.Date,
		ChangeType:         string(entry.ChangeType),
		Status:             string(entry.Status),
		Description:        entry.Description,
		BaselineCost:       entry.BaselineCost,
		NewCost:            entry.NewCost,
		PercentChange:      entry.PercentChange,
		AcknowledgedBy:     entry.AcknowledgedBy,
		AcknowledgedAt:     entry.AcknowledgedAt.UTC().Format(time.RFC3339),
		ExpectedEndDate:    entry.ExpectedEndDate,
		ResolutionNotes:    entry.ResolutionNotes,
		RelatedFeedbackIDs: entry.RelatedFeedbackIDs,
		Version:            entry.Version,
		TTL:                entry.RetentionExpiry,
	}
}

func (it changeItem) toModel() models.ChangeLogEntry {
	ts, _ := time.Parse(time.RFC3339, it.Timestamp)
	ackAt, _ := time.Parse(time.RFC3339, it.AcknowledgedAt)
	return models.ChangeLogEntry{
		ChangeID:           it.ChangeID,
		Service:            it.Service,
		Timestamp:          ts,
		Date:               it.Date,
		ChangeType:         models.ChangeType(it.ChangeType),
		Status:             models.ChangeStatus(it.Status),
		Description:        it.Description,
		BaselineCost:       it.BaselineCost,
		NewCost:            it.NewCost,
		PercentChange:      it.PercentChange,
		AcknowledgedBy:     it.AcknowledgedBy,
		AcknowledgedAt:     ackAt,
		ExpectedEndDate:    it.ExpectedEndDate,
		ResolutionNotes:    it.ResolutionNotes,
		RelatedFeedbackIDs: it.RelatedFeedbackIDs,
		Version:            it.Version,
		RetentionExpiry:    it.TTL,
	}
}

func (d *DynamoDB) PutChange(ctx context.Context, entry *models.ChangeLogEntry) error {
	entry.Version = 1
	item, err := attributevalue.MarshalMap(toChangeItem(entry))
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("put change %s: %w", entry.ChangeID, err)
	}
	return nil
}

// UpdateChange rewrites the full item, guarded by the stored version.
func (d *DynamoDB) UpdateChange(ctx context.Context, entry *models.ChangeLogEntry, expectedVersion int64) error {
	entry.Version = expectedVersion + 1
	item, err := attributevalue.MarshalMap(toChangeItem(entry))
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			entry.Version = expectedVersion
			return ErrVersionConflict
		}
		return fmt.Errorf("update change %s: %w", entry.ChangeID, err)
	}
	return nil
}

func (d *DynamoDB) ChangesForService(ctx context.Context, service string) ([]models.ChangeLogEntry, error) {
	items, err := d.queryPartition(ctx, pkChangePrefix+service)
	if err != nil {
		return nil, err
	}

	out := make([]models.ChangeLogEntry, 0, len(items))
	for _, raw := range items {
		var item changeItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("unmarshal change: %w", err)
		}
		out = append(out, item.toModel())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// ActiveChanges scans the change keyspace for active entries. The active
// set is small by construction (one logical entry per acknowledged
// service), so a filtered scan is acceptable; a status GSI would replace
// this at larger scale.
func (d *DynamoDB) ActiveChanges(ctx context.Context) ([]models.ChangeLogEntry, error) {
	var out []models.ChangeLogEntry
	var startKey map[string]types.AttributeValue

	for {
		res, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(d.table),
			FilterExpression:         aws.String("begins_with(PK, :pk) AND #status = :status"),
			ExpressionAttributeNames: map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: pkChangePrefix},
				":status": &types.AttributeValueMemberS{Value: string(models.ChangeActive)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan active changes: %w", err)
		}
		for _, raw := range res.Items {
			var item changeItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal change: %w", err)
			}
			out = append(out, item.toModel())
		}
		if res.LastEvaluatedKey == nil {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	return out, nil
}

// queryPartition returns every raw item under one partition key.
func (d *DynamoDB) queryPartition(ctx context.Context, pk string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue

	for {
		res, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.table),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query partition %s: %w", pk, err)
		}
		items = append(items, res.Items...)
		if res.LastEvaluatedKey == nil {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	return items, nil
}

var _ Store = (*DynamoDB)(nil)
