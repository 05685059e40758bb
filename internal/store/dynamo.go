package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/domain"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type profileItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	domain.UserProfile
}

type planItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	domain.Plan
}

type progressItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	domain.ProgressEntry
}

type accountItem struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	EntityType string `dynamodbav:"entityType"`
	domain.BankAccount
}

// DynamoStore implements Store on a single DynamoDB table.
type DynamoStore struct {
	client DynamoAPI
	table  string
	logger *zap.Logger
}

// NewDynamoStore creates a store for table.
func NewDynamoStore(client DynamoAPI, table string, logger *zap.Logger) *DynamoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoStore{client: client, table: table, logger: logger}
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out any) error {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		s.logger.Error("dynamodb get failed", zap.String("pk", pk), zap.String("sk", sk), zap.Error(err))
		return err
	}
	if len(resp.Item) == 0 {
		return ErrNotFound
	}
	return attributevalue.UnmarshalMap(resp.Item, out)
}

// putItem writes item. cond, when non-nil, guards the write; a failed guard
// surfaces as condErr.
func (s *DynamoStore) putItem(ctx context.Context, item any, cond *expression.ConditionBuilder, condErr error) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	input := &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: av}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return err
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		if cond != nil && isConditionFailed(err) {
			return condErr
		}
		s.logger.Error("dynamodb put failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *DynamoStore) deleteExisting(ctx context.Context, pk, sk string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("pk"))).
		Build()
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      itemKey(pk, sk),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		s.logger.Error("dynamodb delete failed", zap.String("pk", pk), zap.String("sk", sk), zap.Error(err))
		return err
	}
	return nil
}

// queryPrefix runs a key-condition query over one partition and hands every
// page's items to visit. limit > 0 stops after that many items.
func (s *DynamoStore) queryPrefix(ctx context.Context, pk, skPrefix string, forward bool, limit int, visit func([]map[string]types.AttributeValue) error) error {
	keyCond := expression.Key("pk").Equal(expression.Value(pk)).
		And(expression.Key("sk").BeginsWith(skPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return err
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(forward),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	seen := 0
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("dynamodb query failed", zap.String("pk", pk), zap.String("prefix", skPrefix), zap.Error(err))
			return err
		}
		items := page.Items
		if limit > 0 && seen+len(items) > limit {
			items = items[:limit-seen]
		}
		if err := visit(items); err != nil {
			return err
		}
		seen += len(items)
		if limit > 0 && seen >= limit {
			return nil
		}
	}
	return nil
}

func (s *DynamoStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var item profileItem
	if err := s.getItem(ctx, UserPK(userID), ProfileSK(userID), &item); err != nil {
		return nil, err
	}
	return &item.UserProfile, nil
}

func (s *DynamoStore) PutProfile(ctx context.Context, profile *domain.UserProfile) error {
	return s.putItem(ctx, profileItem{
		PK: UserPK(profile.ID), SK: ProfileSK(profile.ID), EntityType: EntityProfile, UserProfile: *profile,
	}, nil, nil)
}

func (s *DynamoStore) CreateProfileIfAbsent(ctx context.Context, profile *domain.UserProfile) (bool, error) {
	errExists := errors.New("profile exists")
	cond := expression.AttributeNotExists(expression.Name("pk"))
	err := s.putItem(ctx, profileItem{
		PK: UserPK(profile.ID), SK: ProfileSK(profile.ID), EntityType: EntityProfile, UserProfile: *profile,
	}, &cond, errExists)
	if errors.Is(err, errExists) {
		return false, nil
	}
	return err == nil, err
}

func (s *DynamoStore) ListPlans(ctx context.Context, userID string) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := s.queryPrefix(ctx, UserPK(userID), planPrefix, true, 0, func(items []map[string]types.AttributeValue) error {
		var page []planItem
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return err
		}
		for _, it := range page {
			plans = append(plans, it.Plan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPlansNewestFirst(plans)
	return plans, nil
}

func (s *DynamoStore) GetPlan(ctx context.Context, userID, planID string) (*domain.Plan, error) {
	var item planItem
	if err := s.getItem(ctx, UserPK(userID), PlanSK(planID), &item); err != nil {
		return nil, err
	}
	return &item.Plan, nil
}

func (s *DynamoStore) PutPlan(ctx context.Context, plan *domain.Plan) error {
	return s.putItem(ctx, planItem{
		PK: UserPK(plan.UserID), SK: PlanSK(plan.ID), EntityType: EntityPlan, Plan: *plan,
	}, nil, nil)
}

// planEdits is the update expression for the user-editable plan attributes.
// Empty optional strings are removed to match the omitempty put encoding.
func planEdits(plan *domain.Plan, setCurrentAmount bool) expression.UpdateBuilder {
	update := expression.
		Set(expression.Name("type"), expression.Value(plan.Type)).
		Set(expression.Name("title"), expression.Value(plan.Title)).
		Set(expression.Name("targetAmount"), expression.Value(plan.TargetAmount)).
		Set(expression.Name("monthlyIncome"), expression.Value(plan.MonthlyIncome)).
		Set(expression.Name("monthlySavingsGoal"), expression.Value(plan.MonthlySavingsGoal)).
		Set(expression.Name("partnerContribution"), expression.Value(plan.PartnerContribution)).
		Set(expression.Name("isActive"), expression.Value(plan.IsActive)).
		Set(expression.Name("milestones"), expression.Value(plan.Milestones)).
		Set(expression.Name("expenses"), expression.Value(plan.Expenses)).
		Set(expression.Name("updatedAt"), expression.Value(plan.UpdatedAt))
	optional := []struct{ name, value string }{
		{"description", plan.Description},
		{"targetDate", plan.TargetDate},
	}
	for _, o := range optional {
		if o.value == "" {
			update = update.Remove(expression.Name(o.name))
		} else {
			update = update.Set(expression.Name(o.name), expression.Value(o.value))
		}
	}
	if setCurrentAmount {
		update = update.Set(expression.Name("currentAmount"), expression.Value(plan.CurrentAmount))
	}
	return update
}

// UpdatePlan never rewrites currentAmount implicitly, so a concurrent
// AddToCurrentAmount is not lost to a stale read.
func (s *DynamoStore) UpdatePlan(ctx context.Context, plan *domain.Plan, setCurrentAmount bool) (*domain.Plan, error) {
	cond := expression.AttributeExists(expression.Name("pk"))
	expr, err := expression.NewBuilder().
		WithUpdate(planEdits(plan, setCurrentAmount)).
		WithCondition(cond).
		Build()
	if err != nil {
		return nil, err
	}

	resp, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       itemKey(UserPK(plan.UserID), PlanSK(plan.ID)),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotFound
		}
		s.logger.Error("dynamodb plan update failed", zap.String("plan_id", plan.ID), zap.Error(err))
		return nil, err
	}

	var item planItem
	if err := attributevalue.UnmarshalMap(resp.Attributes, &item); err != nil {
		return nil, err
	}
	return &item.Plan, nil
}

func (s *DynamoStore) DeletePlan(ctx context.Context, userID, planID string) error {
	return s.deleteExisting(ctx, UserPK(userID), PlanSK(planID))
}

func (s *DynamoStore) AddToCurrentAmount(ctx context.Context, userID, planID string, amount float64, updatedAt time.Time) (*domain.Plan, error) {
	update := expression.
		Add(expression.Name("currentAmount"), expression.Value(amount)).
		Set(expression.Name("updatedAt"), expression.Value(updatedAt))
	cond := expression.AttributeExists(expression.Name("pk"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, err
	}

	resp, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       itemKey(UserPK(userID), PlanSK(planID)),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotFound
		}
		s.logger.Error("dynamodb progress update failed", zap.String("plan_id", planID), zap.Error(err))
		return nil, err
	}

	var item planItem
	if err := attributevalue.UnmarshalMap(resp.Attributes, &item); err != nil {
		return nil, err
	}
	return &item.Plan, nil
}

func (s *DynamoStore) PutProgress(ctx context.Context, entry *domain.ProgressEntry) error {
	return s.putItem(ctx, progressItem{
		PK:            UserPK(entry.UserID),
		SK:            ProgressSK(entry.PlanID, entry.ID),
		EntityType:    EntityProgress,
		ProgressEntry: *entry,
	}, nil, nil)
}

func (s *DynamoStore) ListProgress(ctx context.Context, userID, planID string, limit int) ([]domain.ProgressEntry, error) {
	var entries []domain.ProgressEntry
	err := s.queryPrefix(ctx, UserPK(userID), ProgressSKPrefix(planID), false, limit, func(items []map[string]types.AttributeValue) error {
		var page []progressItem
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return err
		}
		for _, it := range page {
			entries = append(entries, it.ProgressEntry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *DynamoStore) ListAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	var accounts []domain.BankAccount
	err := s.queryPrefix(ctx, UserPK(userID), accountPrefix, true, 0, func(items []map[string]types.AttributeValue) error {
		var page []accountItem
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return err
		}
		for _, it := range page {
			accounts = append(accounts, it.BankAccount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *DynamoStore) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	var item accountItem
	if err := s.getItem(ctx, UserPK(userID), AccountSK(accountID), &item); err != nil {
		return nil, err
	}
	return &item.BankAccount, nil
}

func (s *DynamoStore) PutAccount(ctx context.Context, account *domain.BankAccount) error {
	return s.putItem(ctx, accountItem{
		PK: UserPK(account.UserID), SK: AccountSK(account.ID), EntityType: EntityAccount, BankAccount: *account,
	}, nil, nil)
}

func (s *DynamoStore) DeleteAccount(ctx context.Context, userID, accountID string) error {
	return s.deleteExisting(ctx, UserPK(userID), AccountSK(accountID))
}

func (s *DynamoStore) ListActiveAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	filter := expression.Name("entityType").Equal(expression.Value(EntityAccount)).
		And(expression.Name("isActive").Equal(expression.Value(true)))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, err
	}

	var accounts []domain.BankAccount
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("dynamodb scan failed", zap.Error(err))
			return nil, err
		}
		var items []accountItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			accounts = append(accounts, it.BankAccount)
		}
	}
	return accounts, nil
}

func (s *DynamoStore) ListUserKeys(ctx context.Context, userID string) ([]ItemKey, error) {
	keyCond := expression.Key("pk").Equal(expression.Value(UserPK(userID)))
	proj := expression.NamesList(expression.Name("pk"), expression.Name("sk"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return nil, err
	}

	var keys []ItemKey
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var pageKeys []ItemKey
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageKeys); err != nil {
			return nil, err
		}
		keys = append(keys, pageKeys...)
	}
	return keys, nil
}

const batchWriteLimit = 25

func (s *DynamoStore) DeleteKeys(ctx context.Context, keys []ItemKey) error {
	for start := 0; start < len(keys); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(keys) {
			end = len(keys)
		}
		requests := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: itemKey(k.PK, k.SK)},
			})
		}
		pending := map[string][]types.WriteRequest{s.table: requests}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == 5 {
				return fmt.Errorf("batch delete: %d items left unprocessed", len(pending[s.table]))
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt*attempt) * 100 * time.Millisecond):
				}
			}
			resp, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = resp.UnprocessedItems
		}
	}
	return nil
}

func sortPlansNewestFirst(plans []domain.Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
}

var _ Store = (*DynamoStore)(nil)
