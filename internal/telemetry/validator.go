package telemetry

import (
	"math"
	"strconv"
	"time"
)

// SentinelNoMeasurement 设备端"本次无有效测量"的哨兵值
// 固件在测量失败时上报 -999，与真正的错误区分开
const SentinelNoMeasurement = -999

// 心率/血氧的合法区间
const (
	HeartRateMax = 300
	SpO2Max      = 100
)

// Status 校验结论
type Status int

const (
	// StatusOK 载荷合法，产出 Candidate 待持久化
	StatusOK Status = iota
	// StatusIgnored 心率为哨兵/NaN/负值：设备声明"无测量"，按 no-op 接受，不持久化
	StatusIgnored
	// StatusUnauthorized API key 不匹配
	StatusUnauthorized
	// StatusMissingDeviceID 缺少 hardwareId/deviceId
	StatusMissingDeviceID
	// StatusOutOfRange 心率或血氧越界（非哨兵）
	StatusOutOfRange
)

// Candidate 通过校验的标准化读数候选
type Candidate struct {
	HardwareID string
	HeartRate  int
	// SpO2 为 nil 表示未提供或被哨兵清除
	SpO2 *int
	// ReadingTime 为 nil 时由存储层回退到服务端接收时间
	ReadingTime *time.Time
}

// Verdict 校验结果：Status != StatusOK 时 Candidate 为 nil
type Verdict struct {
	Status    Status
	Reason    string
	Candidate *Candidate
}

// Validate 纯函数：对原始遥测载荷做鉴权、别名归一、哨兵处理和区间校验
// payload 是解码后的 JSON body；requiredKey 为空时该通道不做 API key 校验
// 规则按顺序应用，前面的失败短路后面的检查
func Validate(payload map[string]any, requiredKey string) Verdict {
	// 1. API key（仅当通道要求时）
	if requiredKey != "" {
		key, _ := payload["apiKey"].(string)
		if key != requiredKey {
			return Verdict{Status: StatusUnauthorized, Reason: "invalid API key"}
		}
	}

	// 2. hardwareId，兼容别名 deviceId
	hardwareID, _ := payload["hardwareId"].(string)
	if hardwareID == "" {
		hardwareID, _ = payload["deviceId"].(string)
	}
	if hardwareID == "" {
		return Verdict{Status: StatusMissingDeviceID, Reason: "Missing deviceId"}
	}

	// 3. 心率：哨兵/NaN/负值优先于区间检查，按 no-op 接受
	hr, hrOK := coerceNumber(payload["heartRate"])
	if !hrOK || math.IsNaN(hr) || hr < 0 || hr == SentinelNoMeasurement {
		return Verdict{Status: StatusIgnored, Reason: "heart rate sentinel or invalid, reading ignored"}
	}
	if hr > HeartRateMax {
		return Verdict{Status: StatusOutOfRange, Reason: "heartRate must be a number between 0 and 300"}
	}

	c := &Candidate{
		HardwareID: hardwareID,
		HeartRate:  int(math.Round(hr)),
	}

	// 4. 血氧：可选；哨兵/NaN/负值清除为"未提供"，超上限按越界拒绝
	if raw, present := payload["spo2"]; present {
		ox, oxOK := coerceNumber(raw)
		switch {
		case !oxOK || math.IsNaN(ox) || ox < 0:
			// cleared, reading stays valid
		case ox > SpO2Max:
			return Verdict{Status: StatusOutOfRange, Reason: "spo2 must be a number between 0 and 100"}
		default:
			v := int(math.Round(ox))
			c.SpO2 = &v
		}
	}

	// 5. 时间戳：unix 秒；解码失败直接省略，由存储层回退服务端时间
	if raw, present := payload["timestamp"]; present {
		if sec, ok := coerceNumber(raw); ok && !math.IsNaN(sec) && sec > 0 {
			t := time.Unix(int64(sec), 0).UTC()
			c.ReadingTime = &t
		}
	}

	return Verdict{Status: StatusOK, Candidate: c}
}

// coerceNumber JSON 值到数值的宽松转换（对齐设备端多种上报形态）
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return math.NaN(), true // 对齐 Number("abc") => NaN
		}
		return f, true
	default:
		return 0, false
	}
}
