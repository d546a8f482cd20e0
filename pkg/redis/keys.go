package redis

import "fmt"

// EventValidationKey 防重记录键：逻辑 key 为「聚合名-载荷ID」。
func EventValidationKey(aggregateName, payloadID string) string {
	return fmt.Sprintf("event_validation:%s-%s", aggregateName, payloadID)
}

// RateLimitCustomerKey 按买家限流的滑动窗口键。
func RateLimitCustomerKey(customerID uint) string {
	return fmt.Sprintf("rate_limit:orders:customer:%d", customerID)
}

// RateLimitIPKey 买家解析失败时按 IP 降级限流。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:orders:ip:%s", ip)
}
