package telegram

import (
	"time"

	"github.com/patrickmn/go-cache"
	tele "gopkg.in/telebot.v3"
)

// adminCache кэширует AdminsOf по группам.
// Русский комментарий: ttl <= 0 отключает кэш: у go-cache нулевой TTL означает
// "никогда не истекает", а снятый админ не должен сохранять права до рестарта.
type adminCache struct {
	c *cache.Cache
}

func newAdminCache(ttl time.Duration) *adminCache {
	if ttl <= 0 {
		return &adminCache{}
	}
	return &adminCache{c: cache.New(ttl, 2*ttl)}
}

func (a *adminCache) get(groupID string) ([]tele.ChatMember, bool) {
	if a.c == nil {
		return nil, false
	}
	v, ok := a.c.Get(groupID)
	if !ok {
		return nil, false
	}
	return v.([]tele.ChatMember), true
}

func (a *adminCache) set(groupID string, admins []tele.ChatMember) {
	if a.c == nil {
		return
	}
	a.c.Set(groupID, admins, cache.DefaultExpiration)
}
