// internal/bot/encoding.go
package bot

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// fixEncoding чинит текст, пришедший не в UTF-8 (старые клиенты шлют windows-1251)
func fixEncoding(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	fixed, err := charmap.Windows1251.NewDecoder().String(s)
	if err == nil && utf8.ValidString(fixed) {
		return fixed
	}

	return strings.ToValidUTF8(s, "")
}

// sanitizeInput сводит любые пробельные символы к одиночным пробелам
func sanitizeInput(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
