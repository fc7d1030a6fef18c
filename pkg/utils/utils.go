package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// 生成随机 ID（32位十六进制）
func GenerateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// 生成工单编号（WO-xxxxxxxx）
func NewWorkOrderNumber() string {
	return "WO-" + strings.ToUpper(GenerateID()[:8])
}

// 时间格式化
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// 验证活动记录文本
func ValidateActivityText(content string) bool {
	if len(content) == 0 || len(content) > 4096 {
		return false
	}
	return true
}
