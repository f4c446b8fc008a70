package translator

import (
	"errors"
	"strings"
)

// symbol.go - разрешение имени инструмента против каталога получателя
//
// Один и тот же инструмент у разных брокеров называется по-разному:
// EURUSD, EURUSDm, EURUSD.cash, fx_eurusd. Резолвер приводит имя
// мастера к имени, которое знает терминал получателя, в четыре шага:
//
//  1. Точное совпадение без учёта регистра.
//  2. Совпадение после нормализации (срезание брокерских
//     суффиксов/префиксов и хвостовых цифр).
//  3. Поиск по похожести с порогом; при равных оценках побеждает
//     первый кандидат в порядке каталога - детерминированный tie-break.
//  4. Запасной вариант: вхождение подстроки в любую сторону.
//
// Если ни один шаг не дал результата - ErrSymbolUnresolved, команда
// для этого получателя не создаётся (остальных это не затрагивает).

// ErrSymbolUnresolved возвращается, когда каталог получателя
// не содержит приемлемого соответствия запрошенному инструменту.
var ErrSymbolUnresolved = errors.New("symbol not resolvable against destination catalog")

// similarityThreshold - минимальная оценка похожести для шага 3.
// Кандидаты с оценкой <= порога на этом шаге отбрасываются.
const similarityThreshold = 0.75

// Брокерские суффиксы, срезаемые при нормализации (не более одного).
var brokerSuffixes = []string{
	".m", ".", "_m", "m", "_mini", ".mini", "_micro", ".micro",
	".cash", "_cash", ".spot", "_spot", "_fx", ".fx",
}

// Брокерские префиксы, срезаемые при нормализации (не более одного).
var brokerPrefixes = []string{
	"m_", "mini_", "micro_", "fx_", "forex_", "cfd_",
}

// ResolveSymbol разрешает запрошенный инструмент против каталога получателя.
//
// overrides - явные соответствия из настроек пары (приоритет над
// любым автоматическим поиском); ключи сравниваются без учёта регистра.
//
// Возвращает имя инструмента ровно в том виде, в каком оно
// присутствует в каталоге, либо ErrSymbolUnresolved.
func ResolveSymbol(requested string, catalog []string, overrides map[string]string) (string, error) {
	if requested == "" || len(catalog) == 0 {
		return "", ErrSymbolUnresolved
	}

	reqLower := strings.ToLower(strings.TrimSpace(requested))

	// Явное переопределение из настроек пары
	for src, dst := range overrides {
		if strings.ToLower(strings.TrimSpace(src)) != reqLower {
			continue
		}
		// Цель переопределения тоже должна существовать в каталоге
		for _, c := range catalog {
			if strings.EqualFold(c, dst) {
				return c, nil
			}
		}
	}

	// Шаг 1: точное совпадение без учёта регистра
	for _, c := range catalog {
		if strings.ToLower(c) == reqLower {
			return c, nil
		}
	}

	// Шаг 2: совпадение после нормализации
	reqNorm := NormalizeSymbol(requested)
	if reqNorm != "" {
		for _, c := range catalog {
			if NormalizeSymbol(c) == reqNorm {
				return c, nil
			}
		}
	}

	// Шаг 3: поиск по похожести, строго выше порога; побеждает
	// первый кандидат с максимальной оценкой
	best := ""
	bestScore := similarityThreshold
	for _, c := range catalog {
		candLower := strings.ToLower(c)
		score := similarity(reqLower, candLower)
		if reqNorm != "" {
			if s := similarity(reqNorm, NormalizeSymbol(c)); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best != "" {
		return best, nil
	}

	// Шаг 4: вхождение подстроки в любую сторону
	for _, c := range catalog {
		candLower := strings.ToLower(c)
		if strings.Contains(candLower, reqLower) || strings.Contains(reqLower, candLower) {
			return c, nil
		}
	}

	return "", ErrSymbolUnresolved
}

// NormalizeSymbol приводит имя инструмента к канонической форме:
// нижний регистр, срезан один брокерский суффикс и один префикс,
// удалены не-алфавитноцифровые символы и хвостовые цифры.
//
// Примеры: "EURUSD.m" -> "eurusd", "fx_GBPUSD2" -> "gbpusd".
func NormalizeSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return ""
	}

	for _, suffix := range brokerSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
			break
		}
	}

	for _, prefix := range brokerPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}

	// Оставляем только буквы и цифры
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s = b.String()

	// Хвостовые цифры - чаще всего номер варианта контракта
	s = strings.TrimRight(s, "0123456789")

	return s
}

// similarity возвращает оценку похожести двух строк в [0, 1]:
// 1.0 - строки равны, 0.9 - одна содержится в другой,
// иначе - доля позиционно совпавших символов от длины большей строки.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}

	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	matches := 0
	for i := 0; i < len(shorter); i++ {
		if shorter[i] == longer[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(longer))
}
