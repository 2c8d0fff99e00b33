package assetsdk

import (
	"sync/atomic"
	"time"

	"github.com/imroc/req/v3"
)

// httpStats tracks HTTP traffic of one client.
type httpStats struct {
	requests   atomic.Int64
	failures   atomic.Int64
	bytesSent  atomic.Int64
	bytesRecv  atomic.Int64
	lastSentNs atomic.Int64
	lastRecvNs atomic.Int64

	lastErrorValue atomic.Value // string
}

func newHTTPStats() *httpStats {
	s := &httpStats{}
	s.lastErrorValue.Store("")
	return s
}

func (s *httpStats) onSend(n int64) {
	s.requests.Add(1)
	if n <= 0 {
		return
	}
	s.bytesSent.Add(n)
	s.lastSentNs.Store(time.Now().UnixNano())
}

func (s *httpStats) onRecv(n int) {
	if n <= 0 {
		return
	}
	s.bytesRecv.Add(int64(n))
	s.lastRecvNs.Store(time.Now().UnixNano())
}

func (s *httpStats) setLastError(err error) {
	if err == nil {
		return
	}
	s.failures.Add(1)
	s.lastErrorValue.Store(err.Error())
}

func (s *httpStats) middleware(_ *req.Client, resp *req.Response) error {
	if resp.Request != nil && resp.Request.RawRequest != nil {
		s.onSend(resp.Request.RawRequest.ContentLength)
	}
	if resp.Err != nil {
		s.setLastError(resp.Err)
		return nil
	}
	s.onRecv(len(resp.Bytes()))
	return nil
}

func (s *httpStats) snapshot() HTTPStatsSnapshot {
	lastErr, _ := s.lastErrorValue.Load().(string)
	return HTTPStatsSnapshot{
		Requests:       s.requests.Load(),
		Failures:       s.failures.Load(),
		BytesSentTotal: s.bytesSent.Load(),
		BytesRecvTotal: s.bytesRecv.Load(),
		LastSentAtNs:   s.lastSentNs.Load(),
		LastRecvAtNs:   s.lastRecvNs.Load(),
		LastError:      lastErr,
	}
}

// HTTPStatsSnapshot is a stable, JSON-friendly view of HTTP traffic.
type HTTPStatsSnapshot struct {
	Requests       int64  `json:"requests"`
	Failures       int64  `json:"failures"`
	BytesSentTotal int64  `json:"bytes_sent_total"`
	BytesRecvTotal int64  `json:"bytes_recv_total"`
	LastSentAtNs   int64  `json:"last_sent_at_ns,omitempty"`
	LastRecvAtNs   int64  `json:"last_recv_at_ns,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}
