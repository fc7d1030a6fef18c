package main

import (
	"fmt"
	"log"
	"os"

	"fleetfix/internal/config"
	"fleetfix/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}

	// 连接数据库
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.User{},
		&models.Technician{},
		&models.Location{},
		&models.Asset{},
		&models.WorkOrder{},
		&models.WorkOrderActivity{},
		&models.Task{},
		&models.Notification{},
		&models.AppSetting{},
		&models.AutomationRule{},
		&models.RuleExecutionLog{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建索引
	log.Println("Creating additional indexes...")

	// 为工单表创建复合索引
	db.Exec("CREATE INDEX IF NOT EXISTS idx_work_orders_status_created ON work_orders(status, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_work_orders_tech_status ON work_orders(technician_id, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_work_orders_asset_created ON work_orders(asset_id, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_work_orders_sla_due ON work_orders(sla_due)")

	// 为执行日志创建复合索引（升级去重查询路径）
	db.Exec("CREATE INDEX IF NOT EXISTS idx_rule_logs_rule_wo ON rule_execution_logs(rule_id, work_order_id, dismissed)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_rule_logs_created ON rule_execution_logs(created_at)")

	// 为规则表创建索引
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_rules_type_active ON automation_rules(rule_type, is_active)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automation_rules_trigger ON automation_rules(trigger_type, is_active)")

	// 为技师表创建索引
	db.Exec("CREATE INDEX IF NOT EXISTS idx_technicians_status ON technicians(status)")

	log.Println("Additional indexes created successfully!")

	// 插入默认数据
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	// 创建默认管理员用户
	var adminUser models.User
	if err := db.Where("username = ?", "admin").First(&adminUser).Error; err != nil {
		adminUser = models.User{
			Username: "admin",
			Email:    "admin@fleetfix.local",
			Name:     "系统管理员",
			Role:     "admin",
			Status:   "active",
		}
		db.Create(&adminUser)
		log.Println("Created default admin user")
	}

	// 创建测试技师
	var testTech models.User
	if err := db.Where("username = ?", "test_technician").First(&testTech).Error; err != nil {
		testTech = models.User{
			Username: "test_technician",
			Email:    "tech@fleetfix.local",
			Name:     "测试技师",
			Role:     "technician",
			Status:   "active",
		}
		db.Create(&testTech)

		tech := models.Technician{
			UserID:        testTech.ID,
			Skills:        "brakes,tires,engine",
			Status:        "available",
			MaxConcurrent: 5,
			CurrentLoad:   0,
		}
		db.Create(&tech)
		log.Println("Created test technician")
	}

	// 创建示例车间与车辆
	var depot models.Location
	if err := db.Where("name = ?", "主车间").First(&depot).Error; err != nil {
		depot = models.Location{Name: "主车间", Address: "示例路1号"}
		db.Create(&depot)
		log.Println("Created default location")
	}

	var truck models.Asset
	if err := db.Where("name = ?", "示例卡车").First(&truck).Error; err != nil {
		truck = models.Asset{
			Name:          "示例卡车",
			VIN:           "1FTFW1EF1EKE00001",
			Mileage:       120000,
			OwnershipType: "owned",
			LocationID:    &depot.ID,
		}
		db.Create(&truck)
		log.Println("Created sample asset")
	}

	// 默认开启 SLA 监控
	var setting models.AppSetting
	if err := db.Where("key = ?", "sla_monitoring_enabled").First(&setting).Error; err != nil {
		db.Create(&models.AppSetting{Key: "sla_monitoring_enabled", Value: "true"})
		log.Println("Enabled SLA monitoring")
	}

	// 创建示例升级规则：接近到期或已逾期时通知调度台
	var rule models.AutomationRule
	if err := db.Where("name = ?", "SLA升级示例规则").First(&rule).Error; err != nil {
		rule = models.AutomationRule{
			Name:                 "SLA升级示例规则",
			RuleType:             models.RuleTypeSLAEscalation,
			TriggerType:          "sla_status_escalation",
			IsActive:             true,
			Priority:             10,
			ConditionsLogic:      "all",
			Conditions:           "[]",
			Actions:              `[{"type":"send_notification","parameters":{"kind":"escalation","title":"SLA escalation","body":"work order is at risk or overdue"}}]`,
			EscalationSLATargets: "at-risk,overdue",
		}
		db.Create(&rule)
		log.Println("Created sample escalation rule")
	}
}
