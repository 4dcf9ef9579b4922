// Package sl содержит общие атрибуты slog журнала шлюза: ошибки и имена
// операций пишутся под одними и теми же ключами во всех пакетах.
package sl

import "log/slog"

// Err возвращает атрибут с ключом "error" и текстом ошибки.
func Err(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Op возвращает атрибут с ключом "op" и именем операции вида "pkg.Func".
func Op(op string) slog.Attr {
	return slog.String("op", op)
}
