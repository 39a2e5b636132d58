package checkup

// Config 保养计算阈值，构造时注入
type Config struct {
	// LateThreshold 距离下次保养节点小于该值即不算逾期（固定业务常量，单位与计量一致）
	LateThreshold int64
	// RangeWindow 当前保养节点之后仍视为“当前窗口”的容差
	RangeWindow int64
	// LeftKmForCheckup 剩余里程小于等于该值视为即将到期
	LeftKmForCheckup int64
	// LeftHoursForCheckup 剩余小时数小于等于该值视为即将到期
	LeftHoursForCheckup int64
	// EngineCacheSize 发动机元数据缓存上限
	EngineCacheSize int
}

// DefaultConfig 默认阈值
func DefaultConfig() Config {
	return Config{
		LateThreshold:       5000,
		RangeWindow:         3000,
		LeftKmForCheckup:    3000,
		LeftHoursForCheckup: 50,
		EngineCacheSize:     10000,
	}
}
