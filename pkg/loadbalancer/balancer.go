package loadbalancer

import "sync"

// RoundRobin hands out base URLs in rotation. The accelerator gateway uses
// it to spread delegated processing calls across configured endpoints.
type RoundRobin struct {
	mu      sync.Mutex
	servers []string
	current int
}

func NewRoundRobin(servers []string) *RoundRobin {
	return &RoundRobin{servers: servers}
}

// Next returns the next server in rotation, or "" when none are configured.
func (lb *RoundRobin) Next() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if len(lb.servers) == 0 {
		return ""
	}
	server := lb.servers[lb.current]
	lb.current = (lb.current + 1) % len(lb.servers)
	return server
}

// Len reports how many endpoints are configured.
func (lb *RoundRobin) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.servers)
}
