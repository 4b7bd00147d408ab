// Package fanout рассылает события случая всем его подписчикам.
package fanout

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber - получатель событий одного случая.
// Send не должен блокироваться: он вызывается под блокировкой комнаты.
type Subscriber interface {
	ID() string
	Send(Event) error
}

// Hub хранит комнаты подписчиков по идентификатору случая
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger *zap.Logger
}

type room struct {
	mu   sync.Mutex
	subs map[string]Subscriber
}

// NewHub создает пустой Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]*room),
		logger: logger.Named("fanout"),
	}
}

// Join добавляет подписчика в комнату случая
func (h *Hub) Join(caseID string, s Subscriber) {
	h.mu.Lock()
	r, ok := h.rooms[caseID]
	if !ok {
		r = &room{subs: make(map[string]Subscriber)}
		h.rooms[caseID] = r
	}
	r.mu.Lock()
	h.mu.Unlock()

	r.subs[s.ID()] = s
	n := len(r.subs)
	r.mu.Unlock()

	h.logger.Debug("subscriber joined",
		zap.String("case_id", caseID),
		zap.String("subscriber", s.ID()),
		zap.Int("subscribers", n))
}

// Leave удаляет подписчика; пустая комната удаляется
func (h *Hub) Leave(caseID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[caseID]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.subs, s.ID())
	empty := len(r.subs) == 0
	r.mu.Unlock()

	if empty {
		delete(h.rooms, caseID)
	}
	h.logger.Debug("subscriber left", zap.String("case_id", caseID), zap.String("subscriber", s.ID()))
}

// Broadcast доставляет событие всем подписчикам случая и возвращает число успешных доставок.
// Подписчики, доставка которым не удалась, молча удаляются из комнаты.
func (h *Hub) Broadcast(caseID string, ev Event) int {
	h.mu.RLock()
	r, ok := h.rooms[caseID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	delivered, pruned := 0, false
	for id, s := range r.subs {
		if err := s.Send(ev); err != nil {
			delete(r.subs, id)
			pruned = true
			h.logger.Debug("pruned subscriber",
				zap.String("case_id", caseID),
				zap.String("subscriber", id),
				zap.Error(err))
			continue
		}
		delivered++
	}
	r.mu.Unlock()

	if pruned && delivered == 0 {
		h.dropIfEmpty(caseID, r)
	}
	return delivered
}

// dropIfEmpty удаляет комнату, если в ней никого не осталось.
// Порядок блокировок тот же, что в Join и Leave: сначала h.mu, потом r.mu.
func (h *Hub) dropIfEmpty(caseID string, r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[caseID] != r {
		return
	}
	r.mu.Lock()
	empty := len(r.subs) == 0
	r.mu.Unlock()

	if empty {
		delete(h.rooms, caseID)
	}
}

// Count возвращает число подписчиков случая
func (h *Hub) Count(caseID string) int {
	h.mu.RLock()
	r, ok := h.rooms[caseID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
