package cache

import "fmt"

func AppByKeyKey(apiKey string) string {
	return fmt.Sprintf("app:key:%s", apiKey)
}

func RateLimitKey(apiKey string) string {
	return fmt.Sprintf("ratelimit:%s", apiKey)
}
