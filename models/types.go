package models

// UserRole 用户角色枚举
type UserRole string

const (
	UserRoleADMIN UserRole = "admin" // 管理员，可分配、删除线索
	UserRoleUSER  UserRole = "user"  // 普通员工，只能看到分配给自己的线索
)

// User 员工账号，username 是线索分配的关联键
type User struct {
	ID         string   `json:"_id" bson:"_id"`
	Username   string   `json:"username" bson:"username"`
	Email      string   `json:"useremail" bson:"useremail"`
	UserNumber string   `json:"userNumber,omitempty" bson:"userNumber,omitempty"`
	Role       UserRole `json:"role" bson:"role"`
}

// IsAdmin 是否管理员
func (u User) IsAdmin() bool {
	return u.Role == UserRoleADMIN
}

// RawLead 远程接口返回的未校验线索记录，只能经由 NormalizeLead 转换为 Lead
type RawLead map[string]interface{}

// RawUser 远程接口返回的未校验用户记录
type RawUser map[string]interface{}

// 各种请求和响应结构
type (
	// LoginRequest 登录请求，username 与 email 任填其一
	LoginRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required"`
	}

	// LogoutRequest 退出登录请求，需要用户确认
	LogoutRequest struct {
		Confirm bool `json:"confirm"`
	}

	// AssignRequest 分配线索请求
	AssignRequest struct {
		AssignedTo string `json:"assignedto"`
	}

	// ReminderRequest 设置提醒请求，reminder 为空表示清除
	ReminderRequest struct {
		Reminder *string `json:"reminder"`
	}

	// StageRequest 修改温度或管道阶段
	StageRequest struct {
		Value string `json:"value" binding:"required"`
	}

	// RemarkRequest 添加备注请求
	RemarkRequest struct {
		Remark string `json:"remark"`
	}
)

// Valid 允许的角色
func (r UserRole) Valid() bool {
	return r == UserRoleADMIN || r == UserRoleUSER
}
