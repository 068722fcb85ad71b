package mqtt311

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// ProxyConfig holds proxy configuration for client connections.
type ProxyConfig struct {
	// URL is the proxy URL: http://host:port or socks5://host:port.
	URL string

	// Username for proxy authentication (optional).
	Username string

	// Password for proxy authentication (optional).
	Password string
}

// ProxyDialer dials the broker through an HTTP CONNECT or SOCKS5 proxy.
type ProxyDialer struct {
	proxyURL *url.URL
	username string
	password string
	forward  net.Dialer
}

// NewProxyDialer creates a new proxy dialer from the given proxy URL.
// Supported schemes: http, https (HTTP CONNECT), socks5.
func NewProxyDialer(proxyURL, username, password string) (*ProxyDialer, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	// Extract auth from URL if not provided separately
	if username == "" && u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	return &ProxyDialer{
		proxyURL: u,
		username: username,
		password: password,
		forward:  net.Dialer{},
	}, nil
}

// DialContext connects to the target address through the proxy.
func (d *ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	switch d.proxyURL.Scheme {
	case "http", "https":
		return d.dialHTTPConnect(ctx, addr)
	case "socks5", "socks5h":
		return d.dialSOCKS5(ctx, network, addr)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", d.proxyURL.Scheme)
	}
}

// dialHTTPConnect establishes a connection through an HTTP CONNECT proxy.
func (d *ProxyDialer) dialHTTPConnect(ctx context.Context, targetAddr string) (net.Conn, error) {
	proxyAddr := d.proxyURL.Host
	if d.proxyURL.Port() == "" {
		if d.proxyURL.Scheme == "https" {
			proxyAddr = net.JoinHostPort(d.proxyURL.Hostname(), "443")
		} else {
			proxyAddr = net.JoinHostPort(d.proxyURL.Hostname(), "8080")
		}
	}

	conn, err := d.forward.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: targetAddr},
		Host:   targetAddr,
		Header: make(http.Header),
	}

	if d.username != "" {
		auth := d.username + ":" + d.password
		basicAuth := base64.StdEncoding.EncodeToString([]byte(auth))
		req.Header.Set("Proxy-Authorization", "Basic "+basicAuth)
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT request: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", resp.Status)
	}

	return conn, nil
}

// dialSOCKS5 establishes a connection through a SOCKS5 proxy.
func (d *ProxyDialer) dialSOCKS5(ctx context.Context, network, targetAddr string) (net.Conn, error) {
	proxyAddr := d.proxyURL.Host
	if d.proxyURL.Port() == "" {
		proxyAddr = net.JoinHostPort(d.proxyURL.Hostname(), "1080")
	}

	var auth *proxy.Auth
	if d.username != "" {
		auth = &proxy.Auth{
			User:     d.username,
			Password: d.password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, &d.forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	// proxy.Dialer has no DialContext; dial in a goroutine so the
	// context is still respected.
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := dialer.Dial(network, targetAddr)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("SOCKS5 dial failed: %w", result.err)
		}
		return result.conn, nil
	}
}
