package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	flowengine "github.com/kumarswaresh/flowengine"
)

// DynamoDBStore implements flowengine.ExecutionStore on AWS DynamoDB.
// The engine's contract does not require durability; this store is the
// optional durable collaborator for deployments that want execution
// history to survive restarts.
//
// Terminal transitions use a conditional update on status=running, so
// the monotonic-terminal guarantee holds across concurrent writers.
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB-backed execution store
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

// NewDefaultDynamoDBClient builds a DynamoDB client from the ambient
// AWS configuration (env, shared config, instance role).
func NewDefaultDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// key builds the primary key for an execution item
func (s *DynamoDBStore) key(executionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: executionPK(executionID)},
		AttrSK: &types.AttributeValueMemberS{Value: executionSK()},
	}
}

func (s *DynamoDBStore) Create(ctx context.Context, exec *flowengine.Execution) error {
	item, err := attributevalue.MarshalMap(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: executionPK(exec.ExecutionID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: executionSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeExecution}
	item[AttrGSI1PK] = &types.AttributeValueMemberS{Value: executionGSI1PK(string(exec.Status))}
	item[AttrGSI1SK] = &types.AttributeValueMemberS{Value: executionGSI1SK(exec.StartTime.Format(time.RFC3339Nano))}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, executionID string) (*flowengine.Execution, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(executionID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var exec flowengine.Execution
	if err := attributevalue.UnmarshalMap(result.Item, &exec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &exec, nil
}

func (s *DynamoDBStore) ListActive(ctx context.Context) ([]*flowengine.Execution, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(IndexStatusIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{
				Value: executionGSI1PK(string(flowengine.ExecutionStatusRunning)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query active executions: %w", err)
	}

	executions := make([]*flowengine.Execution, 0, len(result.Items))
	for _, item := range result.Items {
		var exec flowengine.Execution
		if err := attributevalue.UnmarshalMap(item, &exec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}
		executions = append(executions, &exec)
	}
	return executions, nil
}

func (s *DynamoDBStore) AppendStep(ctx context.Context, executionID string, result *flowengine.StepExecutionResult) (int, error) {
	stepAV, err := attributevalue.MarshalMap(result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal step result: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.key(executionID),
		UpdateExpression: aws.String("SET #steps = list_append(if_not_exists(#steps, :empty), :step)"),
		ExpressionAttributeNames: map[string]string{
			"#steps": "steps",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":step":  &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberM{Value: stepAV}}},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append step result: %w", err)
	}

	steps, ok := out.Attributes["steps"].(*types.AttributeValueMemberL)
	if !ok {
		return 0, fmt.Errorf("unexpected steps attribute shape for execution %s", executionID)
	}
	return len(steps.Value) - 1, nil
}

func (s *DynamoDBStore) UpdateStep(ctx context.Context, executionID string, index int, result *flowengine.StepExecutionResult) error {
	stepAV, err := attributevalue.MarshalMap(result)
	if err != nil {
		return fmt.Errorf("failed to marshal step result: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.key(executionID),
		UpdateExpression: aws.String("SET #steps[" + strconv.Itoa(index) + "] = :step"),
		ExpressionAttributeNames: map[string]string{
			"#steps": "steps",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":step": &types.AttributeValueMemberM{Value: stepAV},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update step result: %w", err)
	}
	return nil
}

// finish applies a terminal transition guarded on status=running
func (s *DynamoDBStore) finish(ctx context.Context, executionID string, status flowengine.ExecutionStatus, extra map[string]types.AttributeValue, extraNames map[string]string, extraExpr string) (bool, error) {
	now := time.Now()
	endAV, err := attributevalue.Marshal(now)
	if err != nil {
		return false, fmt.Errorf("failed to marshal end time: %w", err)
	}

	values := map[string]types.AttributeValue{
		":running": &types.AttributeValueMemberS{Value: string(flowengine.ExecutionStatusRunning)},
		":status":  &types.AttributeValueMemberS{Value: string(status)},
		":gsi1pk":  &types.AttributeValueMemberS{Value: executionGSI1PK(string(status))},
		":end":     endAV,
	}
	for k, v := range extra {
		values[k] = v
	}

	names := map[string]string{"#status": "status"}
	for k, v := range extraNames {
		names[k] = v
	}

	update := "SET #status = :status, GSI1PK = :gsi1pk, end_time = :end" + extraExpr

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(executionID),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("#status = :running"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return false, nil
		}
		return false, fmt.Errorf("failed to finish execution: %w", err)
	}
	return true, nil
}

func (s *DynamoDBStore) Complete(ctx context.Context, executionID string, output map[string]any) (bool, error) {
	if output == nil {
		return s.finish(ctx, executionID, flowengine.ExecutionStatusCompleted, nil, nil, "")
	}
	outputAV, err := attributevalue.Marshal(output)
	if err != nil {
		return false, fmt.Errorf("failed to marshal output: %w", err)
	}
	return s.finish(ctx, executionID, flowengine.ExecutionStatusCompleted,
		map[string]types.AttributeValue{":output": outputAV},
		map[string]string{"#output": "output"},
		", #output = :output")
}

func (s *DynamoDBStore) Fail(ctx context.Context, executionID string, execErr *flowengine.WorkflowError) (bool, error) {
	msg := ""
	if execErr != nil {
		msg = execErr.Error()
	}
	return s.finish(ctx, executionID, flowengine.ExecutionStatusFailed,
		map[string]types.AttributeValue{":err": &types.AttributeValueMemberS{Value: msg}},
		map[string]string{"#error": "error"},
		", #error = :err")
}

func (s *DynamoDBStore) Cancel(ctx context.Context, executionID string) (bool, error) {
	return s.finish(ctx, executionID, flowengine.ExecutionStatusCancelled, nil, nil, "")
}

func (s *DynamoDBStore) Status(ctx context.Context, executionID string) (flowengine.ExecutionStatus, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.tableName),
		Key:                  s.key(executionID),
		ProjectionExpression: aws.String("#status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read execution status: %w", err)
	}
	if result.Item == nil {
		return "", fmt.Errorf("execution %s not found", executionID)
	}

	statusAV, ok := result.Item["status"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("unexpected status attribute shape for execution %s", executionID)
	}
	return flowengine.ExecutionStatus(statusAV.Value), nil
}

var _ flowengine.ExecutionStore = (*DynamoDBStore)(nil)
