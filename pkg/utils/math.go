package utils

import (
	"math"
)

// math.go - математические утилиты для копирования сделок
//
// Назначение:
// Вспомогательные математические функции для пересчёта объёмов.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - RoundToStep: округление объёма до шага инструмента
// - ClampVolume: ограничение объёма диапазоном [min, max]
// - NearlyEqual: сравнение float с эпсилоном

// VolumeEpsilon - порог сравнения объёмов.
//
// Объёмы позиций приходят из терминала как float, поэтому точное
// сравнение недопустимо: разница меньше эпсилона считается нулевой.
const VolumeEpsilon = 1e-5

// RoundToStep округляет объём ВНИЗ до ближайшего кратного step.
//
// Используется для приведения рассчитанного объёма к шагу инструмента
// брокера. Округление вниз гарантирует, что объём не превысит расчётный.
//
// Параметры:
//   - value: исходный объём (лоты)
//   - step: минимальный шаг изменения объёма инструмента
//
// Возвращает:
//   - Округлённое значение, кратное step
//   - Если step <= 0, возвращает исходное значение
//
// Примеры:
//   - RoundToStep(0.123456, 0.01) = 0.12
//   - RoundToStep(1.999, 0.01) = 1.99
//   - RoundToStep(100.5, 1.0) = 100.0
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	// math.Floor может дать 0.11999... из-за представления float,
	// поэтому добавляем малую поправку перед делением
	return math.Floor(value/step+VolumeEpsilon) * step
}

// ClampVolume ограничивает объём диапазоном [min, max].
//
// Если max <= 0, верхняя граница не применяется (инструмент без лимита).
func ClampVolume(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if max > 0 && value > max {
		return max
	}
	return value
}

// NearlyEqual сравнивает два float с порогом VolumeEpsilon.
//
// Примеры:
//   - NearlyEqual(0.1+0.2, 0.3) = true
//   - NearlyEqual(1.0, 1.01) = false
func NearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= VolumeEpsilon
}

// NearlyZero проверяет, что значение неотличимо от нуля.
func NearlyZero(v float64) bool {
	return math.Abs(v) <= VolumeEpsilon
}

// PercentBelow возвращает, на сколько процентов value ниже base.
//
// Используется политикой минимального объёма: если рассчитанный объём
// на 80%+ ниже минимального лота, поднятие до минимума многократно
// увеличивает риск относительно мастера.
//
// Возвращает 0, если base <= 0 или value >= base.
func PercentBelow(value, base float64) float64 {
	if base <= 0 || value >= base {
		return 0
	}
	return (base - value) / base * 100
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}
