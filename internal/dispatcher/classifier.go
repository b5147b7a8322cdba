package dispatcher

import (
	"regexp"
	"strings"
	"unicode"
)

// Category — результат классификации текста (без учёта состояния группы).
type Category string

const (
	CategoryText    Category = "text"
	CategoryPrice   Category = "price"
	CategoryCommand Category = "command"
	// Категории ниже выставляет Dispatcher, когда сработало правило с состоянием группы
	CategoryLink  Category = "link"
	CategoryReply Category = "reply"
)

// Command — разобранная команда.
type Command struct {
	Keyword string // В нижнем регистре, без префикса и без @botname
	Args    string // Сырая строка аргументов после первого пробела (обрезанная)
}

var tickerPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]{0,19}$`)

// Parser разбирает текст сообщения на команду или ценовой запрос.
type Parser struct {
	Prefixes    []string // Префиксы команд ("!", "/")
	Sigil       string   // Префикс ценового запроса ("$")
	BotUsername string   // Username бота без @ для /cmd@botname
}

// Parse классифицирует текст. Порядок: ценовой запрос, затем команда, иначе обычный текст.
func (p Parser) Parse(text string) (Category, Command) {
	body := strings.TrimSpace(text)
	if body == "" {
		return CategoryText, Command{}
	}

	if p.Sigil != "" && strings.HasPrefix(body, p.Sigil) {
		keyword, _ := splitFirst(strings.TrimPrefix(body, p.Sigil))
		if tickerPattern.MatchString(keyword) {
			return CategoryPrice, Command{Args: keyword}
		}
		return CategoryText, Command{}
	}

	for _, prefix := range p.Prefixes {
		if prefix == "" || !strings.HasPrefix(body, prefix) {
			continue
		}
		keyword, args := splitFirst(strings.TrimPrefix(body, prefix))
		keyword, ok := p.stripMention(keyword)
		if !ok || keyword == "" {
			return CategoryText, Command{}
		}
		return CategoryCommand, Command{Keyword: strings.ToLower(keyword), Args: args}
	}

	return CategoryText, Command{}
}

// stripMention убирает суффикс @botname. Команда, адресованная другому боту, не наша.
func (p Parser) stripMention(keyword string) (string, bool) {
	at := strings.IndexByte(keyword, '@')
	if at < 0 {
		return keyword, true
	}
	target := keyword[at+1:]
	if p.BotUsername != "" && !strings.EqualFold(target, p.BotUsername) {
		return "", false
	}
	return keyword[:at], true
}

// splitFirst делит строку по первому пробельному символу.
func splitFirst(s string) (string, string) {
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}

// NormalizeTrigger приводит текст к виду ключа автоответа: trim + lower.
func NormalizeTrigger(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
