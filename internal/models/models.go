package models

import (
	"time"

	"gorm.io/gorm"
)

// Work order lifecycle statuses. Completed and Cancelled are terminal and
// never considered by the escalation sweep.
const (
	StatusNew        = "New"
	StatusAssigned   = "Assigned"
	StatusInProgress = "In Progress"
	StatusOnHold     = "On Hold"
	StatusCompleted  = "Completed"
	StatusCancelled  = "Cancelled"
)

// TerminalStatuses 终态工单不参与SLA巡检
var TerminalStatuses = []string{StatusCompleted, StatusCancelled}

// 用户模型
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Phone     string         `json:"phone"`
	Role      string         `gorm:"default:'technician'" json:"role"` // technician, supervisor, admin
	Status    string         `gorm:"default:'active'" json:"status"`   // active, inactive
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// 维修技师
type Technician struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"index" json:"user_id"`
	Skills        string         `json:"skills"`                            // 技能标签，逗号分隔
	Status        string         `gorm:"default:'available'" json:"status"` // available, busy, off_shift
	MaxConcurrent int            `gorm:"default:5" json:"max_concurrent"`   // 最大并发工单数
	CurrentLoad   int            `gorm:"default:0" json:"current_load"`     // 当前工单数
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	User       User        `gorm:"foreignKey:UserID" json:"user,omitempty"`
	WorkOrders []WorkOrder `gorm:"foreignKey:AssignedTechID" json:"work_orders,omitempty"`
}

// 站点/车间
type Location struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"unique;not null" json:"name"`
	Address   string    `json:"address"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// 车辆/资产
type Asset struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	VIN           string    `gorm:"index" json:"vin"`
	Mileage       float64   `gorm:"default:0" json:"mileage"`
	OwnershipType string    `json:"ownership_type"` // owned, leased, rented
	LocationID    *uint     `gorm:"index" json:"location_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Location *Location `gorm:"foreignKey:LocationID" json:"location,omitempty"`
}

// 维修工单
type WorkOrder struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Number         string     `gorm:"unique;not null" json:"number"` // WO-xxxxxxxx
	Title          string     `gorm:"not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	Status         string     `gorm:"default:'New';index" json:"status"`
	Priority       string     `gorm:"default:'Medium'" json:"priority"` // Low, Medium, High, Urgent
	Category       string     `json:"category"`                         // Brakes, Tires, Engine, Electrical, ...
	Subcategory    string     `json:"subcategory"`
	AssignedTechID *uint      `gorm:"index" json:"assigned_tech_id"`
	LocationID     *uint      `gorm:"index" json:"location_id"`
	AssetID        *uint      `gorm:"index" json:"asset_id"`
	Watched        bool       `gorm:"default:false" json:"watched"`
	SLADue         *time.Time `gorm:"index" json:"sla_due"`
	// On Hold 期间不计入SLA消耗
	TotalPausedSeconds int64          `gorm:"default:0" json:"total_paused_seconds"`
	PausedAt           *time.Time     `json:"paused_at"`
	CompletedAt        *time.Time     `json:"completed_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`

	AssignedTech *Technician         `gorm:"foreignKey:AssignedTechID" json:"assigned_tech,omitempty"`
	Location     *Location           `gorm:"foreignKey:LocationID" json:"location,omitempty"`
	Asset        *Asset              `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	Activities   []WorkOrderActivity `gorm:"foreignKey:WorkOrderID" json:"activities,omitempty"`
}

// 工单活动记录（仅追加）
type WorkOrderActivity struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkOrderID uint      `gorm:"index" json:"work_order_id"`
	UserID      uint      `gorm:"index" json:"user_id"` // 0 表示系统/自动化
	Text        string    `gorm:"type:text;not null" json:"text"`
	Kind        string    `gorm:"default:'comment'" json:"kind"` // comment, system, automation
	CreatedAt   time.Time `json:"created_at"`

	WorkOrder WorkOrder `gorm:"foreignKey:WorkOrderID" json:"work_order,omitempty"`
}

// 派生任务（create_task 动作产物）
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkOrderID uint       `gorm:"index" json:"work_order_id"`
	Title       string     `gorm:"not null" json:"title"`
	AssigneeID  *uint      `gorm:"index" json:"assignee_id"`
	Done        bool       `gorm:"default:false" json:"done"`
	DueAt       *time.Time `json:"due_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// 出站通知队列
type Notification struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkOrderID uint       `gorm:"index" json:"work_order_id"`
	Kind        string     `json:"kind"` // assignment, escalation, status_change, mention
	Title       string     `gorm:"not null" json:"title"`
	Body        string     `gorm:"type:text" json:"body"`
	RecipientID *uint      `gorm:"index" json:"recipient_id"`
	WebhookURL  string     `json:"webhook_url"`
	Status      string     `gorm:"default:'pending';index" json:"status"` // pending, sent, failed
	Error       string     `gorm:"type:text" json:"error"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// 全局设置（键值）
type AppSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"unique;not null" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
