package services

import (
	"context"
	"fmt"
	"strings"

	"fleetfix/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TechnicianService 技师管理服务
type TechnicianService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTechnicianService(db *gorm.DB, logger *logrus.Logger) *TechnicianService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TechnicianService{db: db, logger: logger}
}

// TechnicianCreateRequest 创建技师请求
type TechnicianCreateRequest struct {
	UserID        uint   `json:"user_id" binding:"required"`
	Skills        string `json:"skills"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// TechnicianUpdateRequest 更新技师请求
type TechnicianUpdateRequest struct {
	Skills        *string `json:"skills"`
	Status        *string `json:"status"`
	MaxConcurrent *int    `json:"max_concurrent"`
}

// CreateTechnician 创建技师
func (s *TechnicianService) CreateTechnician(ctx context.Context, req *TechnicianCreateRequest) (*models.Technician, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, req.UserID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	var existing models.Technician
	if err := s.db.WithContext(ctx).Where("user_id = ?", req.UserID).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("technician already exists for user %d", req.UserID)
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to check existing technician: %w", err)
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	tech := &models.Technician{
		UserID:        req.UserID,
		Skills:        req.Skills,
		Status:        "available",
		MaxConcurrent: maxConcurrent,
	}
	if err := s.db.WithContext(ctx).Create(tech).Error; err != nil {
		return nil, fmt.Errorf("failed to create technician: %w", err)
	}
	s.logger.Infof("Created technician %d for user %d", tech.ID, req.UserID)
	return tech, nil
}

// GetTechnician 获取技师
func (s *TechnicianService) GetTechnician(ctx context.Context, id uint) (*models.Technician, error) {
	var tech models.Technician
	if err := s.db.WithContext(ctx).Preload("User").First(&tech, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("technician not found")
		}
		return nil, fmt.Errorf("failed to get technician: %w", err)
	}
	return &tech, nil
}

// ListTechnicians 技师列表
func (s *TechnicianService) ListTechnicians(ctx context.Context, status string) ([]models.Technician, error) {
	query := s.db.WithContext(ctx).Preload("User")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var techs []models.Technician
	if err := query.Order("id ASC").Find(&techs).Error; err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	return techs, nil
}

// UpdateTechnician 更新技师
func (s *TechnicianService) UpdateTechnician(ctx context.Context, id uint, req *TechnicianUpdateRequest) (*models.Technician, error) {
	tech, err := s.GetTechnician(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Skills != nil {
		updates["skills"] = *req.Skills
	}
	if req.Status != nil {
		switch *req.Status {
		case "available", "busy", "off_shift":
			updates["status"] = *req.Status
		default:
			return nil, fmt.Errorf("invalid technician status: %s", *req.Status)
		}
	}
	if req.MaxConcurrent != nil {
		if *req.MaxConcurrent < 1 {
			return nil, fmt.Errorf("max_concurrent must be at least 1")
		}
		updates["max_concurrent"] = *req.MaxConcurrent
	}
	if len(updates) == 0 {
		return tech, nil
	}
	if err := s.db.WithContext(ctx).Model(tech).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update technician: %w", err)
	}
	return s.GetTechnician(ctx, id)
}

// FindAvailable returns the available technician with the most headroom,
// optionally requiring a skill tag.
func (s *TechnicianService) FindAvailable(ctx context.Context, skill string) (*models.Technician, error) {
	var techs []models.Technician
	if err := s.db.WithContext(ctx).
		Where("status = ? AND current_load < max_concurrent", "available").
		Order("current_load ASC").
		Find(&techs).Error; err != nil {
		return nil, fmt.Errorf("failed to query technicians: %w", err)
	}
	for i := range techs {
		if skill == "" || hasSkill(techs[i].Skills, skill) {
			return &techs[i], nil
		}
	}
	return nil, fmt.Errorf("no available technician")
}

// ReleaseLoad decrements a technician's load after a work order closes.
func (s *TechnicianService) ReleaseLoad(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Technician{}).
		Where("id = ? AND current_load > 0", id).
		UpdateColumn("current_load", gorm.Expr("current_load - 1")).Error
}

func hasSkill(skills, want string) bool {
	for _, s := range strings.Split(skills, ",") {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return true
		}
	}
	return false
}
