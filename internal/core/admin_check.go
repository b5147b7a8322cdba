package core

// IsAdmin проверяет, является ли пользователь админом или владельцем группы
func IsAdmin(info *GroupInfo, userID string) bool {
	if info == nil || userID == "" {
		return false
	}
	for _, p := range info.Participants {
		if p.ID == userID {
			return p.Role == RoleAdmin || p.Role == RoleCreator
		}
	}
	// Не нашли в списке участников — не админ
	return false
}
