package server

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/mpetrunic/ChainGuardian/lib/store"
	"github.com/mpetrunic/ChainGuardian/rpc/common"
)

// liveStreams counts the producers running in this process
var liveStreams atomic.Int64

var (
	_             = metrics.NewGauge(`cgdb_streams_live`, func() float64 { return float64(liveStreams.Load()) })
	streamEvents  = metrics.NewCounter(`cgdb_stream_events_total`)
	streamsFailed = metrics.NewCounter(`cgdb_streams_failed_total`)
)

// observeRequest records count, errors and duration of one request
func observeRequest(op common.MessageType, resp *common.Message, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`cgdb_requests_total{op=%q}`, op)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`cgdb_request_duration_seconds{op=%q}`, op)).UpdateDuration(start)

	if resp != nil && resp.Code != 0 {
		code := store.RetCode(resp.Code)
		metrics.GetOrCreateCounter(fmt.Sprintf(`cgdb_request_errors_total{op=%q,code=%q}`, op, code)).Inc()
	}
}
