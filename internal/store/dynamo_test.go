package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/goalpath/planner-api/internal/domain"
)

type dynamoStub struct {
	DynamoAPI

	putInputs    []*dynamodb.PutItemInput
	putErr       error
	updateInput  *dynamodb.UpdateItemInput
	updateOutput *dynamodb.UpdateItemOutput
	updateErr    error
	queryInputs  []*dynamodb.QueryInput
	queryPages   []*dynamodb.QueryOutput
	getOutput    *dynamodb.GetItemOutput
	deleteErr    error
	batchInputs  []*dynamodb.BatchWriteItemInput
}

func (s *dynamoStub) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.putInputs = append(s.putInputs, in)
	if s.putErr != nil {
		return nil, s.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (s *dynamoStub) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	s.updateInput = in
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.updateOutput, nil
}

func (s *dynamoStub) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.queryInputs = append(s.queryInputs, in)
	page := s.queryPages[0]
	s.queryPages = s.queryPages[1:]
	return page, nil
}

func (s *dynamoStub) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if s.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return s.getOutput, nil
}

func (s *dynamoStub) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (s *dynamoStub) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	s.batchInputs = append(s.batchInputs, in)
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func stringAttr(t *testing.T, item map[string]types.AttributeValue, name string) string {
	t.Helper()
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		t.Fatalf("attribute %q missing or not a string in %v", name, item)
	}
	return v.Value
}

func TestDynamoStorePutPlanUsesSingleTableKeys(t *testing.T) {
	stub := &dynamoStub{}
	s := NewDynamoStore(stub, "planner", nil)

	err := s.PutPlan(context.Background(), &domain.Plan{ID: "p1", UserID: "u1", Title: "Trip", TargetAmount: 100})
	if err != nil {
		t.Fatalf("PutPlan: %v", err)
	}
	item := stub.putInputs[0].Item
	if stringAttr(t, item, "pk") != "USER#u1" || stringAttr(t, item, "sk") != "PLAN#p1" {
		t.Fatalf("unexpected keys %v", item)
	}
	if stringAttr(t, item, "entityType") != EntityPlan || stringAttr(t, item, "title") != "Trip" {
		t.Fatalf("expected flattened plan attributes, got %v", item)
	}
	if aws.ToString(stub.putInputs[0].TableName) != "planner" {
		t.Fatalf("unexpected table %v", stub.putInputs[0].TableName)
	}
}

func TestDynamoStoreAddToCurrentAmount(t *testing.T) {
	attrs, err := attributevalue.MarshalMap(planItem{PK: "USER#u1", SK: "PLAN#p1", Plan: domain.Plan{ID: "p1", UserID: "u1", CurrentAmount: 150}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	stub := &dynamoStub{updateOutput: &dynamodb.UpdateItemOutput{Attributes: attrs}}
	s := NewDynamoStore(stub, "planner", nil)

	plan, err := s.AddToCurrentAmount(context.Background(), "u1", "p1", 50, time.Now())
	if err != nil {
		t.Fatalf("AddToCurrentAmount: %v", err)
	}
	if plan.CurrentAmount != 150 {
		t.Fatalf("expected decoded plan, got %+v", plan)
	}
	update := aws.ToString(stub.updateInput.UpdateExpression)
	if !strings.Contains(update, "ADD") || !strings.Contains(update, "SET") {
		t.Fatalf("expected ADD and SET clauses, got %q", update)
	}
	if !strings.Contains(aws.ToString(stub.updateInput.ConditionExpression), "attribute_exists") {
		t.Fatalf("expected existence condition, got %q", aws.ToString(stub.updateInput.ConditionExpression))
	}
	if stub.updateInput.ReturnValues != types.ReturnValueAllNew {
		t.Fatalf("expected ALL_NEW, got %v", stub.updateInput.ReturnValues)
	}
}

func TestDynamoStoreUpdatePlanLeavesCurrentAmountAlone(t *testing.T) {
	attrs, err := attributevalue.MarshalMap(planItem{PK: "USER#u1", SK: "PLAN#p1", Plan: domain.Plan{ID: "p1", UserID: "u1", CurrentAmount: 350}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	names := func(in *dynamodb.UpdateItemInput) map[string]bool {
		out := map[string]bool{}
		for _, n := range in.ExpressionAttributeNames {
			out[n] = true
		}
		return out
	}

	stub := &dynamoStub{updateOutput: &dynamodb.UpdateItemOutput{Attributes: attrs}}
	s := NewDynamoStore(stub, "planner", nil)
	plan := &domain.Plan{ID: "p1", UserID: "u1", Title: "Trip", CurrentAmount: 100}

	saved, err := s.UpdatePlan(context.Background(), plan, false)
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if saved.CurrentAmount != 350 {
		t.Fatalf("expected stored amount from ALL_NEW, got %v", saved.CurrentAmount)
	}
	if len(stub.putInputs) != 0 {
		t.Fatal("expected an update, not a full put")
	}
	got := names(stub.updateInput)
	if got["currentAmount"] {
		t.Fatal("expected currentAmount to be left out of the update")
	}
	if !got["milestones"] || !got["title"] || !got["updatedAt"] {
		t.Fatalf("expected editable attributes in the update, got %v", got)
	}
	if stub.updateInput.ReturnValues != types.ReturnValueAllNew {
		t.Fatalf("expected ALL_NEW, got %v", stub.updateInput.ReturnValues)
	}

	if _, err := s.UpdatePlan(context.Background(), plan, true); err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if !names(stub.updateInput)["currentAmount"] {
		t.Fatal("expected explicit edit to set currentAmount")
	}
}

func TestDynamoStoreConditionFailuresMapToNotFound(t *testing.T) {
	ccf := &types.ConditionalCheckFailedException{Message: aws.String("nope")}
	stub := &dynamoStub{updateErr: ccf, deleteErr: ccf, putErr: ccf}
	s := NewDynamoStore(stub, "planner", nil)
	ctx := context.Background()

	if _, err := s.AddToCurrentAmount(ctx, "u1", "p1", 5, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from update, got %v", err)
	}
	if err := s.DeletePlan(ctx, "u1", "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from delete, got %v", err)
	}
	if _, err := s.UpdatePlan(ctx, &domain.Plan{ID: "p1", UserID: "u1"}, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from conditional update, got %v", err)
	}
	created, err := s.CreateProfileIfAbsent(ctx, &domain.UserProfile{ID: "u1"})
	if err != nil || created {
		t.Fatalf("expected existing profile to be reported, got %v %v", created, err)
	}
}

func TestDynamoStoreListProgressQueriesNewestFirst(t *testing.T) {
	first, _ := attributevalue.MarshalMap(progressItem{PK: "USER#u1", SK: "PROGRESS#p1#2", ProgressEntry: domain.ProgressEntry{ID: "2", Amount: 20}})
	second, _ := attributevalue.MarshalMap(progressItem{PK: "USER#u1", SK: "PROGRESS#p1#1", ProgressEntry: domain.ProgressEntry{ID: "1", Amount: 10}})
	stub := &dynamoStub{queryPages: []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{first, second}}}}
	s := NewDynamoStore(stub, "planner", nil)

	entries, err := s.ListProgress(context.Background(), "u1", "p1", 5)
	if err != nil {
		t.Fatalf("ListProgress: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "2" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	in := stub.queryInputs[0]
	if aws.ToBool(in.ScanIndexForward) {
		t.Fatal("expected descending sort key order")
	}
	if aws.ToInt32(in.Limit) != 5 {
		t.Fatalf("expected limit 5, got %v", in.Limit)
	}
	if !strings.Contains(aws.ToString(in.KeyConditionExpression), "begins_with") {
		t.Fatalf("expected begins_with key condition, got %q", aws.ToString(in.KeyConditionExpression))
	}
}

func TestDynamoStoreGetMissingPlan(t *testing.T) {
	s := NewDynamoStore(&dynamoStub{}, "planner", nil)
	if _, err := s.GetPlan(context.Background(), "u1", "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDynamoStoreDeleteKeysChunks(t *testing.T) {
	stub := &dynamoStub{}
	s := NewDynamoStore(stub, "planner", nil)
	keys := make([]ItemKey, 30)
	for i := range keys {
		keys[i] = ItemKey{PK: "USER#u1", SK: "PLAN#" + string(rune('a'+i%26))}
	}
	if err := s.DeleteKeys(context.Background(), keys); err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	if len(stub.batchInputs) != 2 {
		t.Fatalf("expected two batches, got %d", len(stub.batchInputs))
	}
	if n := len(stub.batchInputs[0].RequestItems["planner"]); n != 25 {
		t.Fatalf("expected 25 requests in first batch, got %d", n)
	}
}
