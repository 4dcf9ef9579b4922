// Package sanitize реализует очистку внешних строковых данных перед их
// использованием: удаление HTML-разметки, нормализацию пробелов и email-адресов.
// Очистка применяется после структурной валидации и независимо от неё.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTags   = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Text убирает HTML-теги, схлопывает последовательности пробельных символов
// в один пробел и обрезает пробелы по краям.
func Text(s string) string {
	s = htmlTags.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Email приводит email к канонической форме: обрезает пробелы и
// переводит в нижний регистр. Email уникален с точностью до регистра.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
