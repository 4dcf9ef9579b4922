// Package ratelimit реализует лимитер допуска с фиксированным окном по ключу
// вызывающей стороны. Хранилище окон создаётся один раз на процесс, передаётся
// в лимитер явно и нигде не персистится: потеря счётчиков при рестарте допустима.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// loopbackSentinel единый ключ для запросов без определимого адреса.
// Все неотслеживаемые источники попадают в одно общее окно.
const loopbackSentinel = "127.0.0.1"

// Decision результат проверки допуска одного запроса.
type Decision struct {
	Allowed   bool      // Запрос в пределах лимита
	Remaining int       // Сколько запросов осталось в текущем окне
	ResetAt   time.Time // Момент сброса окна
}

type window struct {
	count   int
	resetAt time.Time
}

// Store хранит окна допуска по ключам. Ключи независимы друг от друга,
// блокировка общая на карту. Протухшие окна вычищаются лениво —
// при следующем обращении к своему ключу.
type Store struct {
	mu       sync.Mutex
	windows  map[string]*window
	interval time.Duration
	now      func() time.Time
}

// NewStore создает хранилище окон с заданной длительностью окна.
func NewStore(interval time.Duration) *Store {
	return &Store{
		windows:  make(map[string]*window),
		interval: interval,
		now:      time.Now,
	}
}

// Check учитывает один запрос для ключа и сравнивает счётчик с лимитом.
// Счётчик увеличивается всегда, в том числе для отклонённых запросов.
func (s *Store) Check(key string, limit int) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(s.interval)}
		s.windows[key] = w
	}
	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}
}

// ClientKey выводит отпечаток вызывающей стороны: первый адрес из
// X-Forwarded-For, иначе адрес соединения, иначе loopback-сентинел.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return loopbackSentinel
}
