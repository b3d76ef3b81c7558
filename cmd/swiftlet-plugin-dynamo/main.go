// swiftlet-plugin-dynamo exposes a small key/value store backed by
// DynamoDB over the swiftlet plugin protocol: newline-delimited JSON
// requests on stdin, one response per line on stdout.
//
// Methods: connect(region), kv_put(table, key, value), kv_get(table, key),
// kv_delete(table, key).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// RPC types (must match internal/plugin/plugin.go)
type Request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

var client *dynamodb.Client

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(Response{Error: fmt.Sprintf("parse error: %v", err)})
			continue
		}

		res, err := handleRequest(req)
		response := Response{Result: res}
		if err != nil {
			response.Error = err.Error()
		}

		if err := encoder.Encode(response); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode response: %v\n", err)
		}
	}
}

func handleRequest(req Request) (interface{}, error) {
	switch req.Method {
	case "connect":
		return handleConnect(req.Params)
	case "kv_put":
		return handlePut(req.Params)
	case "kv_get":
		return handleGet(req.Params)
	case "kv_delete":
		return handleDelete(req.Params)
	default:
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
}

func handleConnect(params []interface{}) (interface{}, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if len(params) > 0 {
		if region, ok := params[0].(string); ok && region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client = dynamodb.NewFromConfig(cfg)
	return "ok", nil
}

type kvItem struct {
	Key       string `dynamodbav:"pk"`
	Value     string `dynamodbav:"value"`
	RequestID string `dynamodbav:"request_id"`
}

func handlePut(params []interface{}) (interface{}, error) {
	table, key, err := tableAndKey(params)
	if err != nil {
		return nil, err
	}
	if len(params) < 3 {
		return nil, fmt.Errorf("kv_put expects (table, key, value)")
	}
	val := fmt.Sprintf("%v", params[2])

	item, err := attributevalue.MarshalMap(kvItem{
		Key:       key,
		Value:     val,
		RequestID: uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	_, err = client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

func handleGet(params []interface{}) (interface{}, error) {
	table, key, err := tableAndKey(params)
	if err != nil {
		return nil, err
	}

	out, err := client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item kvItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return item.Value, nil
}

func handleDelete(params []interface{}) (interface{}, error) {
	table, key, err := tableAndKey(params)
	if err != nil {
		return nil, err
	}

	_, err = client.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", err)
	}
	return true, nil
}

func tableAndKey(params []interface{}) (string, string, error) {
	if client == nil {
		return "", "", fmt.Errorf("not connected: call connect first")
	}
	if len(params) < 2 {
		return "", "", fmt.Errorf("expected (table, key, ...)")
	}
	table, ok1 := params[0].(string)
	key, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("table and key must be strings")
	}
	return table, key, nil
}
