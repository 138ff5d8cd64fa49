package repository

import (
	"context"
	"errors"

	"github.com/BerniceZTT/edulead_crm/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// 看板只持有一个操作员会话
const operatorSessionKey = "operator"

// MongoSessionStore 登录态持久化到 sessions 集合，服务重启后可恢复
type MongoSessionStore struct {
	coll *mongo.Collection
}

// NewMongoSessionStore 创建会话存储
func NewMongoSessionStore(database *mongo.Database) *MongoSessionStore {
	return &MongoSessionStore{coll: database.Collection(SessionsCollection)}
}

// Load 读取已保存的会话，不存在时返回 nil
func (s *MongoSessionStore) Load(ctx context.Context) (*models.SessionRecord, error) {
	record, err := ExecuteDbOperation(ctx, 3, func(ctx context.Context) (*models.SessionRecord, error) {
		var record models.SessionRecord
		if err := s.coll.FindOne(ctx, bson.M{"_id": operatorSessionKey}).Decode(&record); err != nil {
			return nil, err
		}
		return &record, nil
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return record, err
}

// Save 保存当前会话
func (s *MongoSessionStore) Save(ctx context.Context, record models.SessionRecord) error {
	record.Key = operatorSessionKey
	_, err := ExecuteDbOperation(ctx, 3, func(ctx context.Context) (*mongo.UpdateResult, error) {
		return s.coll.ReplaceOne(ctx, bson.M{"_id": operatorSessionKey}, record, options.Replace().SetUpsert(true))
	})
	return err
}

// Clear 删除已保存的会话
func (s *MongoSessionStore) Clear(ctx context.Context) error {
	_, err := ExecuteDbOperation(ctx, 3, func(ctx context.Context) (*mongo.DeleteResult, error) {
		return s.coll.DeleteOne(ctx, bson.M{"_id": operatorSessionKey})
	})
	return err
}
