package common

import "fmt"

var (
	// Gateway keys
	gatewayPrefix   string = "gateway"
	gatewayInitLock string = "gateway:init:%s:lock" // name

	// Gmail sync keys
	gmailPrefix       string = "gmail"
	gmailSyncLock     string = "gmail:sync:lock:%s:%s" // userId, labelId
	schedulerTickLock string = "gmail:scheduler:tick:lock"
)

var Keys = &redisKeys{}

type redisKeys struct{}

// Gateway keys
func (rk *redisKeys) GatewayPrefix() string {
	return gatewayPrefix
}

func (rk *redisKeys) GatewayInitLock(name string) string {
	return fmt.Sprintf(gatewayInitLock, name)
}

// Gmail keys
func (rk *redisKeys) GmailPrefix() string {
	return gmailPrefix
}

func (rk *redisKeys) GmailSyncLock(userId, labelId string) string {
	return fmt.Sprintf(gmailSyncLock, userId, labelId)
}

func (rk *redisKeys) SchedulerTickLock() string {
	return schedulerTickLock
}
