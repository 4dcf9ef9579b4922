// Package metrics содержит метрики Prometheus ядра и агрегатор проверок
// работоспособности подсистем.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AdmissionDecisions счётчик решений лимитера допуска по маршрутам.
var AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_gateway_admission_decisions_total",
	Help: "Admission limiter decisions by route and outcome.",
}, []string{"route", "allowed"})

// ReconcileOutcomes счётчик исходов сверки по триггерам.
var ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_gateway_reconcile_outcomes_total",
	Help: "Reconciliation outcomes by trigger and result.",
}, []string{"trigger", "outcome"})

// AuditEvents счётчик событий аудита по видам.
var AuditEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_gateway_audit_events_total",
	Help: "Audit events emitted by kind.",
}, []string{"kind"})
