package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	if len(id) != 32 { // 16 bytes = 32 hex chars
		t.Errorf("GenerateID() returned length %d, want 32", len(id))
	}

	// 验证是有效的十六进制
	for _, c := range id {
		if !strings.ContainsAny(string(c), "0123456789abcdef") {
			t.Errorf("GenerateID() returned invalid hex character: %c", c)
		}
	}

	// 验证每次生成不同的ID
	id2 := GenerateID()
	if id == id2 {
		t.Error("GenerateID() returned same ID twice")
	}
}

func TestNewWorkOrderNumber(t *testing.T) {
	number := NewWorkOrderNumber()
	if !strings.HasPrefix(number, "WO-") {
		t.Errorf("NewWorkOrderNumber() should start with 'WO-', got %s", number)
	}
	if len(number) != 11 {
		t.Errorf("NewWorkOrderNumber() returned length %d, want 11", len(number))
	}

	suffix := strings.TrimPrefix(number, "WO-")
	if suffix != strings.ToUpper(suffix) {
		t.Errorf("NewWorkOrderNumber() suffix should be uppercase, got %s", suffix)
	}

	// 验证每次生成不同的编号
	if number == NewWorkOrderNumber() {
		t.Error("NewWorkOrderNumber() returned same number twice")
	}
}

func TestFormatTime(t *testing.T) {
	testTime := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	formatted := FormatTime(testTime)

	if formatted != "2024-01-15 14:30:45" {
		t.Errorf("FormatTime() = %s, want 2024-01-15 14:30:45", formatted)
	}
}

func TestValidateActivityText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{
			name:    "valid text",
			content: "Replaced front brake pads",
			want:    true,
		},
		{
			name:    "empty text",
			content: "",
			want:    false,
		},
		{
			name:    "text at max length",
			content: strings.Repeat("a", 4096),
			want:    true,
		},
		{
			name:    "text exceeding max length",
			content: strings.Repeat("a", 4097),
			want:    false,
		},
		{
			name:    "text with special characters",
			content: "更换刹车片！@#$%^&*()",
			want:    true,
		},
		{
			name:    "single character",
			content: "a",
			want:    true,
		},
		{
			name:    "text with newlines",
			content: "Line 1\nLine 2\r\nLine 3",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateActivityText(tt.content)
			if got != tt.want {
				t.Errorf("ValidateActivityText() = %v, want %v", got, tt.want)
			}
		})
	}
}
