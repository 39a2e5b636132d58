package chassis

import (
	"regexp"
	"strings"
)

// 17 位车架号结构：WMI(3) + 4-5 + 6 + 7-8 + 校验位 + 年款 + 工厂 + 序列号(6)
// I、O、Q 不允许出现
var pattern = regexp.MustCompile(
	`^([A-HJ-NPR-Z0-9]{3})([A-HJ-NPR-Z0-9]{2})([A-HJ-NPR-Z0-9])([A-HJ-NPR-Z0-9]{2})([A-HJ-NPR-Z0-9])([A-HJ-NPR-Z0-9])([A-HJ-NPR-Z0-9])([A-HJ-NPR-Z0-9]{6})$`,
)

// Fragments 车架号解析结果
type Fragments struct {
	WMI        string `json:"wmi"`
	Digits4To5 string `json:"digits_4_5"`
	Digit6     string `json:"digit_6"`
	Digits7To8 string `json:"digits_7_8"`
	CheckDigit string `json:"check_digit"`
	ModelYear  string `json:"model_year"`
	Plant      string `json:"plant"`
	Serial     string `json:"serial"`
}

// Key 发动机型号表的查询键
func (f Fragments) Key() string {
	return f.Digits4To5 + "|" + f.Digit6 + "|" + f.Digits7To8
}

// Normalize 去除空白并转大写
func Normalize(chassis string) string {
	return strings.ToUpper(strings.TrimSpace(chassis))
}

// Decode 解析车架号
// 不符合结构时返回 false（不是错误），调用方应回退到默认值
func Decode(chassis string) (Fragments, bool) {
	m := pattern.FindStringSubmatch(Normalize(chassis))
	if m == nil {
		return Fragments{}, false
	}

	return Fragments{
		WMI:        m[1],
		Digits4To5: m[2],
		Digit6:     m[3],
		Digits7To8: m[4],
		CheckDigit: m[5],
		ModelYear:  m[6],
		Plant:      m[7],
		Serial:     m[8],
	}, true
}

// Valid 检查车架号结构是否合法
func Valid(chassis string) bool {
	_, ok := Decode(chassis)
	return ok
}
