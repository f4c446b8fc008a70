package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики relay-сервера
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации потока сигналов
// - Alertmanager для алертов на переполнения очередей и
//   отваливающихся агентов

// ============ Счётчики потока сигналов ============

// SignalsReceived - принятые сигналы от master-агентов по типам событий
var SignalsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "signals_received_total",
		Help:      "Total trade events received from master agents",
	},
	[]string{"event"}, // open, close, partial_close, modify
)

// SignalsRejected - отклонённые сигналы по причинам
var SignalsRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "signals_rejected_total",
		Help:      "Total trade events rejected at submit",
	},
	[]string{"reason"}, // auth, ownership, validation
)

// CommandsEnqueued - команды, поставленные в очереди агентов
var CommandsEnqueued = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "commands_enqueued_total",
		Help:      "Total commands enqueued for slave agents",
	},
	[]string{"action"}, // BUY, SELL, MODIFY, CLOSE, CLOSE_SYMBOL
)

// CommandsDelivered - команды, выданные агентам (включая повторные выдачи)
var CommandsDelivered = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "commands_delivered_total",
		Help:      "Total commands handed to polling agents (redeliveries included)",
	},
)

// CommandsAcked - подтверждённые команды по исходу
var CommandsAcked = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "commands_acked_total",
		Help:      "Total command acknowledgements by outcome",
	},
	[]string{"outcome"}, // success, failed
)

// CommandsEvicted - команды, вытесненные из переполненных очередей
var CommandsEvicted = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "commands_evicted_total",
		Help:      "Total pending commands evicted on queue overflow",
	},
)

// TranslationFailures - сбои трансляции по типам
var TranslationFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "translation_failures_total",
		Help:      "Commands dropped for a single destination by translation failure type",
	},
	[]string{"reason"}, // symbol_unresolved, volume_unavailable, volume_skipped
)

// ============ Метрики состояния ============

// QueueDepth - суммарная глубина всех очередей команд
var QueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "queue_depth",
		Help:      "Total commands currently sitting in agent queues",
	},
)

// AgentsOnline - количество агентов в статусе online
var AgentsOnline = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "copytrade",
		Subsystem: "relay",
		Name:      "agents_online",
		Help:      "Number of agents currently considered online",
	},
)

// ============ Вспомогательные функции ============

// RecordSignal учитывает принятый сигнал
func RecordSignal(event string) {
	SignalsReceived.WithLabelValues(event).Inc()
}

// RecordRejection учитывает отклонённый сигнал
func RecordRejection(reason string) {
	SignalsRejected.WithLabelValues(reason).Inc()
}

// RecordAck учитывает подтверждение команды
func RecordAck(success bool) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	CommandsAcked.WithLabelValues(outcome).Inc()
}

// RecordTranslationFailure учитывает отброшенную при трансляции команду
func RecordTranslationFailure(reason string) {
	TranslationFailures.WithLabelValues(reason).Inc()
}
