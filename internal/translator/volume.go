package translator

import (
	"errors"
	"fmt"

	"copytrade/internal/models"
	"copytrade/pkg/utils"
)

// volume.go - пересчёт объёма мастера в объём получателя
//
// Три режима:
//   - fixed: объём получателя всегда равен параметру
//   - multiply: объём мастера умножается на параметр
//   - percent: масштабирование по отношению балансов счетов
//
// Результат затем приводится к ограничениям инструмента получателя
// (min/max/step). Percent-режим без известных балансов не исполняется:
// молчаливая отправка немасштабированного объёма опаснее пропуска.

// ErrVolumeUnavailable возвращается percent-режимом, когда баланс
// мастера или получателя неизвестен либо равен нулю.
var ErrVolumeUnavailable = errors.New("balance unavailable for percent volume mode")

// ErrVolumeSkipped возвращается политикой skip, когда рассчитанный
// объём настолько меньше минимального лота, что поднятие до минимума
// многократно увеличило бы риск относительно мастера.
var ErrVolumeSkipped = errors.New("volume below instrument minimum, trade skipped by policy")

// minVolumeSkipPct - порог политики skip: объём, который ниже
// минимального лота более чем на этот процент, не исполняется.
const minVolumeSkipPct = 80.0

// Instrument описывает ограничения инструмента на стороне получателя.
// Данные приходят из терминала агента вместе с каталогом символов.
type Instrument struct {
	Symbol       string  `json:"symbol"`
	MinVolume    float64 `json:"min_volume"`
	MaxVolume    float64 `json:"max_volume"`
	VolumeStep   float64 `json:"volume_step"`
	ContractSize float64 `json:"contract_size"`
}

// ComputeVolume рассчитывает сырой объём получателя по режиму пары.
//
// Балансы нужны только percent-режиму; остальные режимы их игнорируют.
func ComputeVolume(mode string, param, masterVolume, masterBalance, slaveBalance float64) (float64, error) {
	switch mode {
	case models.VolumeModeFixed:
		return param, nil

	case models.VolumeModeMultiply:
		return masterVolume * param, nil

	case models.VolumeModePercent:
		if masterBalance <= 0 || slaveBalance <= 0 {
			return 0, ErrVolumeUnavailable
		}
		return (slaveBalance / masterBalance) * masterVolume * param, nil

	default:
		return 0, fmt.Errorf("unknown volume mode %q", mode)
	}
}

// AdjustContractSize выравнивает объём по различию contract size
// инструментов мастера и получателя.
//
// Один лот XAUUSD у одного брокера может стоить в 10 раз дороже,
// чем у другого. Если обе величины известны и различаются, объём
// умножается на их отношение, чтобы денежная стоимость сделки
// совпадала. При неполных данных объём возвращается без изменений.
func AdjustContractSize(volume, masterContract, slaveContract float64) float64 {
	if masterContract <= 0 || slaveContract <= 0 {
		return volume
	}
	if utils.NearlyEqual(masterContract, slaveContract) {
		return volume
	}
	return volume * (masterContract / slaveContract)
}

// ClampToInstrument приводит объём к ограничениям инструмента.
//
// Порядок: округление вниз до шага, затем ограничение [min, max].
// Если округление обнулило объём либо он ниже минимального лота,
// объём поднимается до минимума - кроме случая, когда действует
// политика skip и дефицит превышает minVolumeSkipPct (тогда
// ErrVolumeSkipped: сделка пропускается, а не искажается).
func ClampToInstrument(volume float64, inst Instrument, minVolumePolicy string) (float64, error) {
	if volume <= 0 {
		return 0, ErrVolumeSkipped
	}

	rounded := utils.RoundToStep(volume, inst.VolumeStep)

	if rounded < inst.MinVolume || utils.NearlyZero(rounded) {
		if minVolumePolicy == models.MinVolumeSkip &&
			utils.PercentBelow(volume, inst.MinVolume) > minVolumeSkipPct {
			return 0, ErrVolumeSkipped
		}
		// Политика warn: торгуем минимальным лотом, предупреждение
		// пишет вызывающая сторона
		return inst.MinVolume, nil
	}

	return utils.ClampVolume(rounded, inst.MinVolume, inst.MaxVolume), nil
}
