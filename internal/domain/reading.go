package domain

import "time"

// Reading 遥测读数领域模型（对应 readings 表）
// append-only：一旦写入不再修改；reading_time 决定保留期，不是写入时间
type Reading struct {
	// 主键
	ID int64 `db:"id"` // BIGSERIAL

	// 归属（写入时刻的 device/patient 绑定，写入后不变）
	DeviceID  string `db:"device_id"`  // UUID, NOT NULL
	PatientID string `db:"patient_id"` // UUID, NOT NULL

	// 生命体征
	HeartRate int  `db:"heart_rate"` // NOT NULL, [0,300]
	SpO2      *int `db:"spo2"`       // nullable, [0,100]

	// 时间戳：设备上报时间，缺失时为服务端接收时间
	ReadingTime time.Time `db:"reading_time"` // TIMESTAMPTZ, NOT NULL

	// 原始报文快照（排障用，opaque）
	Raw []byte `db:"raw"` // JSONB, nullable

	CreatedAt time.Time `db:"created_at"`
}

// MetricPoint 单个时间点的指标值（图表用 {x, y} 形态）
// SpO2 缺失时 Y 为 nil，序列化为 null 而不是 0
type MetricPoint struct {
	X time.Time `json:"x"`
	Y *int      `json:"y"`
}

// MetricSummary 单指标滚动窗口统计
// Count==0 表示窗口内无数据；此时 Avg/Min/Max 为 0，调用方以 Count 区分"无数据"与"零值"
type MetricSummary struct {
	Avg   int `json:"avg"` // 取整到最近整数
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count"`
}

// VitalsSummary 心率 + 血氧的窗口统计
type VitalsSummary struct {
	HeartRate MetricSummary `json:"heartRate"`
	SpO2      MetricSummary `json:"spo2"`
}

// DailySeries 单日明细序列（按 reading_time 升序）
type DailySeries struct {
	HeartRate []MetricPoint `json:"heartRate"`
	SpO2      []MetricPoint `json:"spo2"`
}
