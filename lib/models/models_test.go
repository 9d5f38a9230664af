package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNetworkMetricsPrune(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var m NetworkMetrics
	m.AddRecord(NetworkMetric{URL: "old", Code: 200, Time: now.Add(-26 * time.Hour).UnixMilli()}, now)
	m.AddRecord(NetworkMetric{URL: "recent", Code: 500, Latency: 30, Time: now.Add(-time.Hour).UnixMilli()}, now)
	m.AddRecord(NetworkMetric{URL: "now", Code: 404, Latency: 10, Time: now.UnixMilli()}, now)

	assert.Len(t, m.Records, 2)
	assert.Equal(t, "recent", m.Records[0].URL)

	avg, ok := m.AverageLatency(now.Add(-2*time.Hour), now.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, 20.0, avg)

	_, ok = m.AverageLatency(now.Add(time.Hour), now.Add(2*time.Hour))
	assert.False(t, ok)

	assert.Equal(t, ResponseCounts{ClientError: 1, ServerError: 1}, m.ResponseCounts())
}

func TestBeaconNodes(t *testing.T) {
	var nodes BeaconNodes
	assert.True(t, nodes.Add(BeaconNode{URL: "http://localhost:5052"}))
	assert.False(t, nodes.Add(BeaconNode{URL: "http://localhost:5052", DockerID: "abc"}))
	assert.True(t, nodes.Add(BeaconNode{URL: "http://remote:5052"}))

	assert.True(t, nodes.Remove("http://localhost:5052"))
	assert.False(t, nodes.Remove("http://localhost:5052"))
	assert.Equal(t, []BeaconNode{{URL: "http://remote:5052"}}, nodes.Nodes)

	assert.Equal(t, "account-1", BeaconNodeID(DefaultAccount, "1"))
}

func TestValidatorLogsCap(t *testing.T) {
	var logs ValidatorLogs
	for i := 0; i < MaxValidatorLogs+5; i++ {
		logs.Append(LogEntry{Time: int64(i)})
	}
	assert.Len(t, logs.Logs, MaxValidatorLogs)
	assert.Equal(t, int64(5), logs.Logs[0].Time)
}
