package repository

import (
	"context"
	"sync"

	"github.com/BerniceZTT/edulead_crm/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OperationLogStore 操作日志存储
type OperationLogStore interface {
	Insert(ctx context.Context, log models.OperationLog) error
	Recent(ctx context.Context, leadID string, limit int64) ([]models.OperationLog, error)
}

// MongoOperationLogStore 看板写操作审计日志
type MongoOperationLogStore struct {
	coll *mongo.Collection
}

// NewMongoOperationLogStore 创建操作日志存储
func NewMongoOperationLogStore(database *mongo.Database) *MongoOperationLogStore {
	return &MongoOperationLogStore{coll: database.Collection(OperationLogsCollection)}
}

// Insert 保存一条操作日志
func (s *MongoOperationLogStore) Insert(ctx context.Context, log models.OperationLog) error {
	_, err := ExecuteDbOperation(ctx, 2, func(ctx context.Context) (*mongo.InsertOneResult, error) {
		return s.coll.InsertOne(ctx, log)
	})
	return err
}

// Recent 按时间倒序查询操作日志，leadID 为空时查询全部
func (s *MongoOperationLogStore) Recent(ctx context.Context, leadID string, limit int64) ([]models.OperationLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	filter := bson.M{}
	if leadID != "" {
		filter["leadId"] = leadID
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "operatedAt", Value: -1}}).SetLimit(limit)

	return ExecuteDbOperation(ctx, 3, func(ctx context.Context) ([]models.OperationLog, error) {
		cursor, err := s.coll.Find(ctx, filter, findOptions)
		if err != nil {
			return nil, err
		}
		logs := []models.OperationLog{}
		if err := cursor.All(ctx, &logs); err != nil {
			return nil, err
		}
		return logs, nil
	})
}

// MemoryOperationLogStore 未配置 MongoDB 时在内存中保留最近的操作日志
type MemoryOperationLogStore struct {
	mu       sync.Mutex
	logs     []models.OperationLog
	capacity int
}

// NewMemoryOperationLogStore 创建内存日志存储，capacity 为保留条数
func NewMemoryOperationLogStore(capacity int) *MemoryOperationLogStore {
	if capacity <= 0 {
		capacity = 200
	}
	return &MemoryOperationLogStore{capacity: capacity}
}

// Insert 保存一条操作日志，超出容量时丢弃最旧的记录
func (s *MemoryOperationLogStore) Insert(_ context.Context, log models.OperationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID.IsZero() {
		log.ID = primitive.NewObjectID()
	}
	s.logs = append(s.logs, log)
	if len(s.logs) > s.capacity {
		s.logs = append([]models.OperationLog(nil), s.logs[len(s.logs)-s.capacity:]...)
	}
	return nil
}

// Recent 按时间倒序查询操作日志
func (s *MemoryOperationLogStore) Recent(_ context.Context, leadID string, limit int64) ([]models.OperationLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []models.OperationLog{}
	for i := len(s.logs) - 1; i >= 0 && int64(len(result)) < limit; i-- {
		if leadID == "" || s.logs[i].LeadID == leadID {
			result = append(result, s.logs[i])
		}
	}
	return result, nil
}
