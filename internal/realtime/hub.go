package realtime

import "sync"

// Hub tracks which sessions receive global and per-channel frames. Delivery
// is fire-and-forget through each session's Sink.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[*Session]struct{}
	channelSubs map[string]map[*Session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions:    make(map[*Session]struct{}),
		channelSubs: make(map[string]map[*Session]struct{}),
	}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

func (h *Hub) subscribe(s *Session, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.channelSubs[channelID]
	if subs == nil {
		subs = make(map[*Session]struct{})
		h.channelSubs[channelID] = subs
	}
	subs[s] = struct{}{}
}

func (h *Hub) unsubscribe(s *Session, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.channelSubs[channelID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.channelSubs, channelID)
		}
	}
}

// remove drops the session from the global scope and every channel.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
	for channelID, subs := range h.channelSubs {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.channelSubs, channelID)
			}
		}
	}
}

func (h *Hub) broadcastAll(frame []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.send(frame)
	}
}

// broadcast sends frame to the channel's subscribers, skipping exclude when
// it is not nil.
func (h *Hub) broadcast(channelID string, frame []byte, exclude *Session) {
	h.mu.RLock()
	subs := h.channelSubs[channelID]
	targets := make([]*Session, 0, len(subs))
	for s := range subs {
		if s != exclude {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.send(frame)
	}
}

// Connections is the number of live sessions.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Subscribers(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channelSubs[channelID])
}
