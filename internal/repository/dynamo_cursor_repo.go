package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/ghnotify/internal/model"
)

// DynamoDBテーブルの属性名
const (
	dynamoAttrKey       = "key"
	dynamoAttrValue     = "value"
	dynamoAttrUpdatedAt = "updated_at"
)

// DynamoAPI はDynamoCursorRepoが使用するDynamoDBクライアントのメソッド。
// *dynamodb.Client が満たす。
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoCursorRepo はDynamoDBテーブルを使用したカーソルリポジトリ。
// テーブルはパーティションキー "key"（文字列）のみを持つ。
type DynamoCursorRepo struct {
	client DynamoAPI
	table  string
}

// NewDynamoCursorRepo はDynamoCursorRepoを生成する。
func NewDynamoCursorRepo(client DynamoAPI, table string) *DynamoCursorRepo {
	return &DynamoCursorRepo{client: client, table: table}
}

// Get は強い整合性読み込みで指定キーの時刻を取得する。
func (r *DynamoCursorRepo) Get(ctx context.Context, key string) (time.Time, bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			dynamoAttrKey: &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("カーソルの取得に失敗しました: %w", err)
	}
	if len(out.Item) == 0 {
		return time.Time{}, false, nil
	}

	attr, ok := out.Item[dynamoAttrValue].(*types.AttributeValueMemberS)
	if !ok {
		return time.Time{}, false, fmt.Errorf("カーソル %q に文字列のvalue属性がありません", key)
	}

	t, err := model.ParseCursorValue(attr.Value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("カーソル値が不正です: %w", err)
	}
	return t, true, nil
}

// Put は指定キーの時刻を保存する。
func (r *DynamoCursorRepo) Put(ctx context.Context, key string, t time.Time) error {
	return r.PutMany(ctx, map[string]time.Time{key: t})
}

// PutMany はTransactWriteItemsで複数キーを原子的に保存する。
func (r *DynamoCursorRepo) PutMany(ctx context.Context, values map[string]time.Time) error {
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC().Format(time.RFC3339)
	items := make([]types.TransactWriteItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(r.table),
				Item: map[string]types.AttributeValue{
					dynamoAttrKey:       &types.AttributeValueMemberS{Value: key},
					dynamoAttrValue:     &types.AttributeValueMemberS{Value: model.FormatCursorValue(values[key])},
					dynamoAttrUpdatedAt: &types.AttributeValueMemberS{Value: now},
				},
			},
		})
	}

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		return fmt.Errorf("カーソルの保存に失敗しました: %w", err)
	}
	return nil
}

// PingContext はテーブルの存在を確認する。
func (r *DynamoCursorRepo) PingContext(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.table),
	})
	return err
}
