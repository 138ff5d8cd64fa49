package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OperationLog 看板写操作审计记录
type OperationLog struct {
	ID           primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	RequestID    string             `json:"requestId" bson:"requestId"`
	Method       string             `json:"method" bson:"method"`
	Path         string             `json:"path" bson:"path"`
	LeadID       string             `json:"leadId,omitempty" bson:"leadId,omitempty"`
	Operator     string             `json:"operator" bson:"operator"`
	OperatorRole string             `json:"operatorRole" bson:"operatorRole"`
	RequestBody  interface{}        `json:"requestBody" bson:"requestBody"`
	StatusCode   int                `json:"statusCode" bson:"statusCode"`
	Success      bool               `json:"success" bson:"success"`
	ErrorMessage string             `json:"errorMessage,omitempty" bson:"errorMessage,omitempty"`
	OperatedAt   time.Time          `json:"operatedAt" bson:"operatedAt"`
	ResponseTime int64              `json:"responseTime" bson:"responseTime"` // 毫秒
	IPAddress    string             `json:"ipAddress" bson:"ipAddress"`
}

// SessionRecord 持久化的登录态，SessionID 对应签发给调用方的 token
type SessionRecord struct {
	Key         string    `json:"key" bson:"_id"`
	AccessToken string    `json:"accessToken" bson:"accessToken"`
	SessionID   string    `json:"sessionId" bson:"sessionId"`
	User        User      `json:"user" bson:"user"`
	LoggedInAt  time.Time `json:"loggedInAt" bson:"loggedInAt"`
}
