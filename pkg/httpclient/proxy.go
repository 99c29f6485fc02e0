// Package httpclient builds HTTP clients for talking to travel-supplier
// APIs, including proxy-fronted sandbox environments.
package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// New creates an HTTP client honoring an optional proxy URL.
// SOCKS5 and HTTP/HTTPS proxies are supported.
func New(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{
			Timeout: timeout,
		}, nil
	}

	parsedProxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedProxy.Scheme {
	case "socks5":
		return newSOCKS5Client(parsedProxy, timeout)
	case "http", "https":
		return newHTTPProxyClient(parsedProxy, timeout)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsedProxy.Scheme)
	}
}

// newSOCKS5Client dials through a SOCKS5 proxy, with optional credentials.
func newSOCKS5Client(proxyURL *url.URL, timeout time.Duration) (*http.Client, error) {
	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &http.Client{
		Transport: &http.Transport{
			Dial: dialer.Dial,
		},
		Timeout: timeout,
	}, nil
}

// newHTTPProxyClient routes requests through an HTTP/HTTPS proxy.
func newHTTPProxyClient(proxyURL *url.URL, timeout time.Duration) (*http.Client, error) {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: timeout,
	}, nil
}
