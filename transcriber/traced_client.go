package transcriber

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

const maxErrorBody = 300

// APIError is a non-2xx answer from a transcription API.
type APIError struct {
	Provider string
	Op       string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Provider, e.Op, e.Status, e.Body)
}

// Warmer is implemented by backends that can open their API connection
// before the first job.
type Warmer interface {
	Warm(ctx context.Context)
}

// TracedClient is the HTTP client shared by the cloud backends. Every
// request carries an httptrace hook that fills NetworkMetrics.
type TracedClient struct {
	client *http.Client
}

func NewTracedClient() *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// check turns a non-2xx response into an *APIError.
func (r *TracedResponse) check(provider, op string) error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	body := string(r.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return &APIError{Provider: provider, Op: op, Status: r.StatusCode, Body: body}
}

// phaseTimer records when each connection phase started so the trace
// callbacks can store durations.
type phaseTimer struct {
	m                                   *NetworkMetrics
	getConn, dns, tcp, tls              time.Time
	gotConn, wroteHeaders, wroteRequest time.Time
	firstByte                           time.Time
}

func (p *phaseTimer) trace() *httptrace.ClientTrace {
	m := p.m
	return &httptrace.ClientTrace{
		GetConn: func(string) { p.getConn = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			p.gotConn = time.Now()
			m.ConnWait = p.gotConn.Sub(p.getConn)
			m.ConnReused = info.Reused
		},
		DNSStart:          func(httptrace.DNSStartInfo) { p.dns = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { m.DNS = time.Since(p.dns) },
		ConnectStart:      func(_, _ string) { p.tcp = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { m.TCP = time.Since(p.tcp) },
		TLSHandshakeStart: func() { p.tls = time.Now() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { m.TLS = time.Since(p.tls) },
		WroteHeaders: func() {
			p.wroteHeaders = time.Now()
			m.ReqHeaders = p.wroteHeaders.Sub(p.gotConn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			p.wroteRequest = time.Now()
			m.ReqBody = p.wroteRequest.Sub(p.wroteHeaders)
		},
		GotFirstResponseByte: func() {
			p.firstByte = time.Now()
			m.TTFB = p.firstByte.Sub(p.wroteRequest)
		},
	}
}

// Do sends req and reads the whole body. Status codes are not checked.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	timer := &phaseTimer{m: &NetworkMetrics{}}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), timer.trace()))
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !timer.firstByte.IsZero() {
		timer.m.Download = time.Since(timer.firstByte)
	}
	timer.m.Total = time.Since(start)
	if resp.TLS != nil {
		timer.m.TLSProtocol = resp.TLS.NegotiatedProtocol
	}

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    timer.m,
	}, nil
}

// Warm sends a HEAD to url so the first upload reuses an open connection.
// It returns the metrics of that request, or nil when it failed.
func (c *TracedClient) Warm(ctx context.Context, url string) *NetworkMetrics {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil
	}
	return resp.Metrics
}
