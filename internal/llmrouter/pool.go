package llmrouter

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// connectionPool shares one http.Transport per provider so repeated
// calls to the same upstream reuse TCP/TLS connections instead of each
// request paying a fresh handshake. Grounded on a per-provider
// connection-pool pattern, trimmed to what the LLM Router actually
// needs — no per-provider tunable config, no metrics round-tripper,
// since request counting already lives in the Key Store.
type connectionPool struct {
	mu      sync.Mutex
	clients map[string]*http.Client
}

func newConnectionPool() *connectionPool {
	return &connectionPool{clients: make(map[string]*http.Client)}
}

func (p *connectionPool) clientFor(provider string, timeout time.Duration) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[provider]; ok {
		return c
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	c := &http.Client{Transport: transport, Timeout: timeout}
	p.clients[provider] = c
	return c
}

func (p *connectionPool) closeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		if t, ok := c.Transport.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
}
