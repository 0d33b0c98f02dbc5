// redact предоставляет утилиты безопасного редактирования чувствительных
// данных для логов: e-mail и телефонов.
package redact

import "strings"

// Email маскирует e-mail для логирования.
//
// Правила:
//   - строка должна содержать ровно один символ '@', иначе возвращается "***";
//   - локальная часть заменяется на первые две руны + "***";
//   - если локальная часть не длиннее двух рун, возвращается "***@<domain>";
//   - домен сохраняется как есть.
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Phone оставляет только последние четыре цифры номера.
//
//	"9876543210"     -> "******3210"
//	"+91 98765 43210" -> "********3210"
//	"123"            -> "***"
func Phone(s string) string {
	var digits []rune
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}

	if len(digits) <= 4 {
		return "***"
	}

	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}

// Identity маскирует идентификатор входа: e-mail, если он задан, иначе телефон.
func Identity(email, phone string) string {
	if email != "" {
		return Email(email)
	}

	return Phone(phone)
}
