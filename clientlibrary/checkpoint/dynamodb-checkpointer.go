/*
 * Copyright (c) 2018 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */
package checkpoint

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/vmware/vmware-go-kvlease/clientlibrary/config"
	"github.com/vmware/vmware-go-kvlease/clientlibrary/utils"
)

const (
	NamespaceKey   = "Namespace"
	PartitionIDKey = "PartitionID"
	ValueKey       = "Value"

	// maxBatchWriteItems is the DynamoDB limit of put requests per BatchWriteItem call.
	maxBatchWriteItems = 25

	// DefaultRetryBaseDelay is the first wait before resubmitting unprocessed items.
	DefaultRetryBaseDelay = 100 * time.Millisecond
)

// DynamoCheckpoint implements the Checkpoint interface using DynamoDB as a backend.
// Both namespaces share one table keyed by Namespace (hash) and PartitionID (range).
type DynamoCheckpoint struct {
	*kvGateway
	TableName               string
	leaseTableReadCapacity  int64
	leaseTableWriteCapacity int64

	svc     dynamodbiface.DynamoDBAPI
	Retries int
	// RetryBaseDelay doubles on every resubmission of unprocessed items.
	RetryBaseDelay time.Duration
}

func NewDynamoCheckpoint(kvConfig *config.KVCheckpointConfiguration) *DynamoCheckpoint {
	checkpointer := &DynamoCheckpoint{
		TableName:               kvConfig.KeyPrefix,
		leaseTableReadCapacity:  int64(kvConfig.InitialLeaseTableReadCapacity),
		leaseTableWriteCapacity: int64(kvConfig.InitialLeaseTableWriteCapacity),
		Retries:                 NumMaxRetries,
		RetryBaseDelay:          DefaultRetryBaseDelay,
	}
	checkpointer.kvGateway = newKVGateway(kvConfig, checkpointer)

	return checkpointer
}

// WithDynamoDB is used to provide DynamoDB service
func (checkpointer *DynamoCheckpoint) WithDynamoDB(svc dynamodbiface.DynamoDBAPI) *DynamoCheckpoint {
	checkpointer.svc = svc
	return checkpointer
}

// Init creates the DynamoDB session and the table if it does not exist yet.
func (checkpointer *DynamoCheckpoint) Init(ctx context.Context) error {
	return checkpointer.connect(ctx, checkpointer.dial)
}

func (checkpointer *DynamoCheckpoint) dial(ctx context.Context) (bool, error) {
	kvConfig := checkpointer.kvConfig
	if checkpointer.svc == nil {
		if strings.TrimSpace(kvConfig.RegionName) == "" && strings.TrimSpace(kvConfig.DynamoDBEndpoint) == "" {
			return false, nil
		}

		checkpointer.log.Infof("Creating DynamoDB session")
		awsConfig := &aws.Config{
			Region:      aws.String(kvConfig.RegionName),
			Credentials: kvConfig.DynamoDBCredentials,
			Retryer: client.DefaultRetryer{
				NumMaxRetries:    checkpointer.Retries,
				MinRetryDelay:    client.DefaultRetryerMinRetryDelay,
				MinThrottleDelay: client.DefaultRetryerMinThrottleDelay,
				MaxRetryDelay:    client.DefaultRetryerMaxRetryDelay,
				MaxThrottleDelay: client.DefaultRetryerMaxRetryDelay,
			},
		}
		if kvConfig.DynamoDBEndpoint != "" {
			awsConfig.Endpoint = aws.String(kvConfig.DynamoDBEndpoint)
		}

		s, err := session.NewSession(awsConfig)
		if err != nil {
			return false, fmt.Errorf("create DynamoDB session: %w", err)
		}
		checkpointer.svc = dynamodb.New(s)
	}

	exists, err := checkpointer.doesTableExist(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		if err := checkpointer.createTable(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Close flushes buffered checkpoints. The DynamoDB client holds no connection to close.
func (checkpointer *DynamoCheckpoint) Close() error {
	return checkpointer.disconnect(func() error { return nil })
}

func (checkpointer *DynamoCheckpoint) createTable(ctx context.Context) error {
	checkpointer.log.Infof("Creating DynamoDB table %s", checkpointer.TableName)
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(NamespaceKey),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String(PartitionIDKey),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(NamespaceKey),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String(PartitionIDKey),
				KeyType:       aws.String("RANGE"),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(checkpointer.leaseTableReadCapacity),
			WriteCapacityUnits: aws.Int64(checkpointer.leaseTableWriteCapacity),
		},
		TableName: aws.String(checkpointer.TableName),
	}
	_, err := checkpointer.svc.CreateTableWithContext(ctx, input)
	if err != nil && utils.AWSErrCode(err) != dynamodb.ErrCodeResourceInUseException {
		return fmt.Errorf("create table %s: %w", checkpointer.TableName, err)
	}

	return checkpointer.svc.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(checkpointer.TableName),
	})
}

func (checkpointer *DynamoCheckpoint) doesTableExist(ctx context.Context) (bool, error) {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(checkpointer.TableName),
	}
	_, err := checkpointer.svc.DescribeTableWithContext(ctx, input)
	if err == nil {
		return true, nil
	}
	if utils.AWSErrCode(err) == dynamodb.ErrCodeResourceNotFoundException {
		return false, nil
	}
	return false, fmt.Errorf("describe table %s: %w", checkpointer.TableName, err)
}

func (checkpointer *DynamoCheckpoint) itemKey(namespace, key string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		NamespaceKey: {
			S: aws.String(namespace),
		},
		PartitionIDKey: {
			S: aws.String(key),
		},
	}
}

func (checkpointer *DynamoCheckpoint) item(namespace, key, value string) map[string]*dynamodb.AttributeValue {
	item := checkpointer.itemKey(namespace, key)
	item[ValueKey] = &dynamodb.AttributeValue{S: aws.String(value)}
	return item
}

func (checkpointer *DynamoCheckpoint) get(ctx context.Context, namespace, key string) (string, bool, error) {
	output, err := checkpointer.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(checkpointer.TableName),
		ConsistentRead: aws.Bool(true),
		Key:            checkpointer.itemKey(namespace, key),
	})
	if err != nil {
		return "", false, err
	}
	if output == nil || len(output.Item) == 0 {
		return "", false, nil
	}
	value, ok := output.Item[ValueKey]
	if !ok || value.S == nil {
		return "", true, nil
	}
	return *value.S, true, nil
}

func (checkpointer *DynamoCheckpoint) put(ctx context.Context, namespace, key, value string) error {
	_, err := checkpointer.svc.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(checkpointer.TableName),
		Item:      checkpointer.item(namespace, key, value),
	})
	return err
}

// putAll writes in chunks of maxBatchWriteItems and resubmits unprocessed items up to Retries
// times per chunk.
func (checkpointer *DynamoCheckpoint) putAll(ctx context.Context, namespace string, values map[string]string) error {
	requests := make([]*dynamodb.WriteRequest, 0, len(values))
	for key, value := range values {
		requests = append(requests, &dynamodb.WriteRequest{
			PutRequest: &dynamodb.PutRequest{Item: checkpointer.item(namespace, key, value)},
		})
	}

	for start := 0; start < len(requests); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(requests) {
			end = len(requests)
		}

		pending := map[string][]*dynamodb.WriteRequest{checkpointer.TableName: requests[start:end]}
		for attempt := 0; len(pending[checkpointer.TableName]) > 0; attempt++ {
			if attempt > checkpointer.Retries {
				return fmt.Errorf("%d checkpoints left unprocessed after %d attempts", len(pending[checkpointer.TableName]), attempt)
			}
			if attempt > 0 {
				if err := checkpointer.backoff(ctx, attempt); err != nil {
					return err
				}
			}
			output, err := checkpointer.svc.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return err
			}
			pending = output.UnprocessedItems
			if pending == nil {
				break
			}
		}
	}
	return nil
}

// backoff waits before resubmission attempt. Unprocessed items usually mean throttling.
func (checkpointer *DynamoCheckpoint) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(math.Exp2(float64(attempt-1))) * checkpointer.RetryBaseDelay
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (checkpointer *DynamoCheckpoint) remove(ctx context.Context, namespace, key string) error {
	_, err := checkpointer.svc.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(checkpointer.TableName),
		Key:       checkpointer.itemKey(namespace, key),
	})
	return err
}

func (checkpointer *DynamoCheckpoint) getAll(ctx context.Context, namespace string) (map[string]string, error) {
	values := make(map[string]string)
	input := &dynamodb.QueryInput{
		TableName:              aws.String(checkpointer.TableName),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("#ns = :ns"),
		ExpressionAttributeNames: map[string]*string{
			"#ns": aws.String(NamespaceKey),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":ns": {
				S: aws.String(namespace),
			},
		},
	}

	for {
		output, err := checkpointer.svc.QueryWithContext(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, item := range output.Items {
			partitionID, ok := item[PartitionIDKey]
			if !ok || partitionID.S == nil {
				continue
			}
			value := ""
			if v, ok := item[ValueKey]; ok && v.S != nil {
				value = *v.S
			}
			values[*partitionID.S] = value
		}
		if len(output.LastEvaluatedKey) == 0 {
			return values, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}
