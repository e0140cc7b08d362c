package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CommandLog 브리지가 처리한 요청 한 건의 감사 기록
type CommandLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ExecutionID string    `gorm:"size:64;not null;uniqueIndex" json:"execution_id"`
	Serial      string    `gorm:"size:50;not null;index" json:"serial"`
	Action      string    `gorm:"size:32;not null;index" json:"action"`
	Source      string    `gorm:"size:16" json:"source"`                // mqtt, api, cli
	Params      JSON      `gorm:"type:jsonb" json:"params"`             // 요청 파라미터
	Status      string    `gorm:"size:20;not null;index" json:"status"` // succeeded, rejected, failed
	Result      string    `gorm:"size:32" json:"result"`                // 로봇 result 코드
	Alert       string    `gorm:"size:64" json:"alert"`
	Error       string    `gorm:"size:500" json:"error"`
	FellBack    bool      `gorm:"default:false" json:"fell_back"` // category 2 재전송 여부
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// JSON jsonb 컬럼 타입
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", value)
	}
	return json.Unmarshal(data, j)
}
