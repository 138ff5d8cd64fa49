package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BerniceZTT/edulead_crm/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	SessionsCollection      = "sessions"
	OperationLogsCollection = "operationLogs"
)

const (
	connectTimeout  = 10 * time.Second
	pingTimeout     = 5 * time.Second
	operationLogTTL = 30 * 24 * time.Hour
)

// 看板用到的全部集合
var managedCollections = []string{SessionsCollection, OperationLogsCollection}

var (
	client *mongo.Client
	db     *mongo.Database
)

// ErrMongoNotInitialized 未配置 MONGO_URI 时访问数据库
var ErrMongoNotInitialized = errors.New("MongoDB未初始化")

// InitMongoDB 连接 MongoDB 并确认主节点可用
func InitMongoDB(uri, dbName string) error {
	connectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	c, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("连接MongoDB失败: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), pingTimeout)
	defer pingCancel()
	if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return fmt.Errorf("ping MongoDB失败: %w", err)
	}

	client, db = c, c.Database(dbName)
	utils.Logger.Info().Str("database", dbName).Msg("已连接到MongoDB")
	return nil
}

// CloseMongoDB 断开连接，未连接时无操作
func CloseMongoDB() {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		utils.Logger.Error().Err(err).Msg("断开MongoDB连接失败")
		return
	}
	client, db = nil, nil
	utils.Logger.Info().Msg("已断开MongoDB连接")
}

// GetDB 未初始化时为 nil
func GetDB() *mongo.Database {
	return db
}

// Collection 按名称取集合
func Collection(name string) (*mongo.Collection, error) {
	if db == nil {
		return nil, ErrMongoNotInitialized
	}
	return db.Collection(name), nil
}

// ExecuteDbOperation 执行数据库操作，遇到瞬时错误时按退避重试
func ExecuteDbOperation[T any](ctx context.Context, attempts int, operation func(ctx context.Context) (T, error)) (T, error) {
	if attempts <= 0 {
		attempts = 3
	}

	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableError(err) || i == attempts-1 {
			break
		}

		utils.Logger.Warn().Err(err).Msgf("数据库操作失败，重试 (%d/%d)", i+1, attempts)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(retryBackoff(i)):
		}
	}
	return zero, lastErr
}

// retryBackoff 第 i 次失败后的等待时长
var retryBackoff = func(i int) time.Duration {
	return time.Duration(i+1) * 500 * time.Millisecond
}

// 主从切换、节点关闭等可恢复的服务端错误码
var retryableCodes = []int{6, 7, 89, 91, 189, 9001, 10107, 11600, 11602, 13435, 13436}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, mongo.ErrNoDocuments) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	var serverErr mongo.ServerError
	if !errors.As(err, &serverErr) {
		return false
	}
	if serverErr.HasErrorLabel("RetryableWriteError") || serverErr.HasErrorLabel("TransientTransactionError") {
		return true
	}
	for _, code := range retryableCodes {
		if serverErr.HasErrorCode(code) {
			return true
		}
	}
	return false
}

// InitializeCollections 创建缺失的集合与操作日志索引
func InitializeCollections() error {
	if db == nil {
		return ErrMongoNotInitialized
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	existing, err := db.ListCollectionNames(ctx, bson.M{"name": bson.M{"$in": managedCollections}})
	if err != nil {
		return fmt.Errorf("检查集合失败: %w", err)
	}
	found := make(map[string]bool, len(existing))
	for _, name := range existing {
		found[name] = true
	}

	for _, name := range managedCollections {
		if found[name] {
			continue
		}
		if err := db.CreateCollection(ctx, name); err != nil {
			return fmt.Errorf("创建集合 %s 失败: %w", name, err)
		}
		utils.Logger.Info().Str("collection", name).Msg("创建集合成功")
	}

	// 日志按时间过期，并支持按线索倒序查询
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "operatedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(operationLogTTL.Seconds())),
		},
		{Keys: bson.D{{Key: "leadId", Value: 1}, {Key: "operatedAt", Value: -1}}},
	}
	if _, err := db.Collection(OperationLogsCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("创建操作日志索引失败: %w", err)
	}
	return nil
}

// GetDatabaseStatus 连接状态与各集合文档数
func GetDatabaseStatus(ctx context.Context) map[string]interface{} {
	if db == nil {
		return map[string]interface{}{"enabled": false}
	}

	counts := make(map[string]interface{}, len(managedCollections))
	for _, name := range managedCollections {
		n, err := db.Collection(name).EstimatedDocumentCount(ctx)
		if err != nil {
			utils.Logger.Error().Err(err).Str("collection", name).Msg("获取集合计数失败")
			counts[name] = countError(err)
			continue
		}
		counts[name] = map[string]interface{}{"count": n}
	}
	return map[string]interface{}{
		"enabled":     true,
		"database":    db.Name(),
		"collections": counts,
	}
}

func countError(err error) map[string]interface{} {
	return map[string]interface{}{"count": 0, "error": err.Error()}
}
