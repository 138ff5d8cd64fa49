package utils

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// IsValidPhone 验证手机号是否为10位数字
func IsValidPhone(phone string) bool {
	matched, _ := regexp.MatchString(`^\d{10}$`, phone)
	return matched
}

// DigitsOnly 去掉号码中的非数字字符
func DigitsOnly(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// EditablePhone 去掉国家码前缀 91，方便编辑
func EditablePhone(phone string) string {
	if len(phone) > 10 && strings.HasPrefix(phone, "91") {
		return strings.TrimPrefix(phone, "91")
	}
	return phone
}

// SplitQueryList 解析逗号分隔或重复出现的查询参数
func SplitQueryList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
