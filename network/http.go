package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Http builds the http client used as transport for JSON-RPC calls to the node.
type Http struct {
	timeout  time.Duration
	proxyUrl string
}

func NewHttp(timeout time.Duration, proxyUrl string) *Http {
	return &Http{
		timeout:  timeout,
		proxyUrl: proxyUrl,
	}
}

// Client returns an http client with the configured timeout. When a proxy url is set, all
// connections are dialed through it (socks5 or socks5h).
func (h *Http) Client() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if h.proxyUrl != "" {
		u, err := url.Parse(h.proxyUrl)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %s: %w", h.proxyUrl, err)
		}

		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("cannot create proxy dialer: %w", err)
		}

		transport.Proxy = nil
		if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   h.timeout,
	}, nil
}
