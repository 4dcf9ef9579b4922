package metrics

import (
	"context"
	"time"
)

// HealthState трёхзначное состояние сервиса.
type HealthState string

const (
	// StateHealthy все подсистемы отвечают.
	StateHealthy HealthState = "healthy"
	// StateDegraded отказали вспомогательные подсистемы, сервис работает.
	StateDegraded HealthState = "degraded"
	// StateUnhealthy отказала критичная подсистема (база данных).
	StateUnhealthy HealthState = "unhealthy"
)

// Probe одна проверка подсистемы.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Health агрегирует проверки подсистем в одно состояние.
type Health struct {
	probes []Probe
}

// NewHealth создает агрегатор по списку проверок.
func NewHealth(probes ...Probe) *Health {
	return &Health{probes: probes}
}

// CheckResult результат одной проверки.
type CheckResult struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Err  string `json:"error,omitempty"`
}

// Evaluate прогоняет все проверки с общим таймаутом и сводит их в состояние:
// все прошли — healthy; отказала критичная — unhealthy; иначе degraded.
func (h *Health) Evaluate(ctx context.Context) (HealthState, []CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	state := StateHealthy
	results := make([]CheckResult, 0, len(h.probes))
	for _, p := range h.probes {
		res := CheckResult{Name: p.Name, OK: true}
		if err := p.Check(ctx); err != nil {
			res.OK = false
			res.Err = err.Error()
			if p.Critical {
				state = StateUnhealthy
			} else if state == StateHealthy {
				state = StateDegraded
			}
		}
		results = append(results, res)
	}
	return state, results
}
