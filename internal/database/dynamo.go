package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoConfig はDynamoDBクライアントの接続設定。
type DynamoConfig struct {
	Region string
	// EndpointURL が設定されている場合はエンドポイントを上書きする（LocalStack等）。
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
}

// OpenDynamo はDynamoDBクライアントを生成する。
// AccessKeyIDが空の場合はデフォルトの認証情報チェーンを使用する。
func OpenDynamo(ctx context.Context, cfg DynamoConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return dynamodb.NewFromConfig(awsCfg, clientOpts...), nil
}

// DynamoTableCreator はテーブル作成に使用するDynamoDBクライアントのメソッド。
type DynamoTableCreator interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// EnsureDynamoTable はカーソル用テーブルが存在しなければ作成する。
// テーブルが既に存在する場合（ResourceInUseException）は成功として扱う。
func EnsureDynamoTable(ctx context.Context, client DynamoTableCreator, table string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("key"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("key"), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var riue *types.ResourceInUseException
		if errors.As(err, &riue) {
			return nil
		}
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	slog.Info("created table", "table", table)
	return nil
}
