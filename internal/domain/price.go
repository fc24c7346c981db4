package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatPrice muestra un importe en wones con separador de miles, p.ej. "189,000원".
func FormatPrice(price int64) string {
	return humanize.Comma(price) + "원"
}

// ParsePrice extrae los dígitos de un precio de listado como "189,000원".
// Sin dígitos (p.ej. "-" para "sin listado") devuelve 0. Un número que no
// cabe en int64 es un error, no un "sin listado".
func ParsePrice(s string) (int64, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain.ParsePrice: %q: %w", s, err)
	}
	return n, nil
}
