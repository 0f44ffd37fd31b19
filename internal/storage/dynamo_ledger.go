package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/promo-notifier/internal/domain"
)

// PromotionIndex is the GSI keyed by promotion used for per-promotion views.
// Its key schema is hash PromoPK, range SK; SK starts with the creation
// timestamp, so a descending query returns the latest records first. Items
// without a PromoPK are not projected into it.
const PromotionIndex = "promotion-index"

// ledgerItem is one dispatch record. PK groups a user's records per channel;
// SK orders them by time.
type ledgerItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	PromoPK     string `dynamodbav:"PromoPK,omitempty"`
	ID          string `dynamodbav:"id"`
	UserID      string `dynamodbav:"user_id"`
	Recipient   string `dynamodbav:"recipient"`
	Channel     string `dynamodbav:"channel"`
	PromotionID string `dynamodbav:"promotion_id,omitempty"`
	Subject     string `dynamodbav:"subject,omitempty"`
	Outcome     string `dynamodbav:"outcome"`
	Error       string `dynamodbav:"error_message,omitempty"`
	ExternalID  string `dynamodbav:"external_id,omitempty"`
	CreatedAt   string `dynamodbav:"created_at"`
	TTL         int64  `dynamodbav:"TTL,omitempty"`
}

const tsLayout = "2006-01-02T15:04:05.000000000Z"

// DynamoLedger is an append-only ledger in a single DynamoDB table. It
// implements notification.LedgerStore.
type DynamoLedger struct {
	client    DynamoAPI
	tableName string
	retention time.Duration
}

// NewDynamoLedger creates a ledger. A positive retention sets a TTL on items.
func NewDynamoLedger(client DynamoAPI, tableName string, retention time.Duration) *DynamoLedger {
	return &DynamoLedger{client: client, tableName: tableName, retention: retention}
}

func userKey(userID string, ch domain.Channel) string {
	return fmt.Sprintf("USER#%s#%s", userID, ch)
}

func promoKey(id string) string { return "PROMO#" + id }

func (l *DynamoLedger) Append(ctx context.Context, rec *domain.DispatchRecord) error {
	created := rec.CreatedAt.UTC()
	item := ledgerItem{
		PK:         userKey(rec.UserID, rec.Channel),
		SK:         created.Format(tsLayout) + "#" + rec.ID,
		ID:         rec.ID,
		UserID:     rec.UserID,
		Recipient:  rec.Recipient,
		Channel:    string(rec.Channel),
		Subject:    rec.Subject,
		Outcome:    string(rec.Outcome),
		Error:      rec.Error,
		ExternalID: rec.ExternalID,
		CreatedAt:  created.Format(tsLayout),
	}
	if rec.PromotionID != nil {
		item.PromotionID = *rec.PromotionID
		item.PromoPK = promoKey(*rec.PromotionID)
	}
	if l.retention > 0 {
		item.TTL = created.Add(l.retention).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling ledger item: %w", err)
	}
	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("putting ledger item: %w", err)
	}
	return nil
}

func (l *DynamoLedger) queryPromotion(ctx context.Context, promotionID string, limit int) ([]ledgerItem, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		IndexName:              aws.String(PromotionIndex),
		KeyConditionExpression: aws.String("PromoPK = :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: promoKey(promotionID)},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var out []ledgerItem
	for {
		res, err := l.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("querying ledger: %w", err)
		}
		var page []ledgerItem
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling ledger items: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 || (limit > 0 && len(out) >= limit) {
			break
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *DynamoLedger) ListByPromotion(ctx context.Context, promotionID string, limit int) ([]domain.DispatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	items, err := l.queryPromotion(ctx, promotionID, limit)
	if err != nil {
		return nil, err
	}
	return toRecords(items), nil
}

func (l *DynamoLedger) CountUniqueRecipients(ctx context.Context, promotionID string) (int, error) {
	items, err := l.queryPromotion(ctx, promotionID, 0)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, it := range items {
		if it.Outcome == string(domain.OutcomeSent) {
			seen[it.UserID] = struct{}{}
		}
	}
	return len(seen), nil
}

// attemptFilter matches domain.AttemptOutcomes, bound by attemptValues.
var attemptFilter = func() string {
	names := make([]string, len(domain.AttemptOutcomes))
	for i := range domain.AttemptOutcomes {
		names[i] = fmt.Sprintf(":o%d", i)
	}
	return "#o IN (" + strings.Join(names, ", ") + ")"
}()

func attemptValues() map[string]types.AttributeValue {
	vals := make(map[string]types.AttributeValue, len(domain.AttemptOutcomes)+2)
	for i, o := range domain.AttemptOutcomes {
		vals[fmt.Sprintf(":o%d", i)] = &types.AttributeValueMemberS{Value: string(o)}
	}
	return vals
}

func (l *DynamoLedger) CountSince(ctx context.Context, userID string, ch domain.Channel, since time.Time) (int, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression:    aws.String("PK = :pk AND SK >= :since"),
		FilterExpression:          aws.String(attemptFilter),
		ExpressionAttributeNames:  map[string]string{"#o": "outcome"},
		ExpressionAttributeValues: attemptValues(),
		Select:                    types.SelectCount,
	}
	in.ExpressionAttributeValues[":pk"] = &types.AttributeValueMemberS{Value: userKey(userID, ch)}
	in.ExpressionAttributeValues[":since"] = &types.AttributeValueMemberS{Value: since.UTC().Format(tsLayout)}
	total := 0
	for {
		res, err := l.client.Query(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("counting ledger: %w", err)
		}
		total += int(res.Count)
		if len(res.LastEvaluatedKey) == 0 {
			return total, nil
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
}

// ListFailedSince scans the table. It is meant for occasional operator use.
func (l *DynamoLedger) ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.DispatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	in := &dynamodb.ScanInput{
		TableName:        aws.String(l.tableName),
		FilterExpression: aws.String("outcome = :f AND created_at >= :since"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f":     &types.AttributeValueMemberS{Value: string(domain.OutcomeFailed)},
			":since": &types.AttributeValueMemberS{Value: since.UTC().Format(tsLayout)},
		},
	}
	var items []ledgerItem
	for {
		res, err := l.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger: %w", err)
		}
		var page []ledgerItem
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling ledger items: %w", err)
		}
		items = append(items, page...)
		if len(res.LastEvaluatedKey) == 0 || len(items) >= limit {
			break
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return toRecords(items), nil
}

func toRecords(items []ledgerItem) []domain.DispatchRecord {
	out := make([]domain.DispatchRecord, 0, len(items))
	for _, it := range items {
		rec := domain.DispatchRecord{
			ID:         it.ID,
			UserID:     it.UserID,
			Recipient:  it.Recipient,
			Channel:    domain.Channel(it.Channel),
			Subject:    it.Subject,
			Outcome:    domain.DispatchOutcome(it.Outcome),
			Error:      it.Error,
			ExternalID: it.ExternalID,
		}
		if it.PromotionID != "" {
			id := it.PromotionID
			rec.PromotionID = &id
		}
		if t, err := time.Parse(tsLayout, it.CreatedAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out
}
