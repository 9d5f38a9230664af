package models

import (
	"time"
)

// DefaultAccount is the id of the account used by the desktop app.
const DefaultAccount = "account"

// Account is a user profile of the desktop app.
type Account struct {
	Name      string `json:"name"`
	Directory string `json:"directory"`
	SendStats bool   `json:"sendStats"`
}

// Validator is a validator managed by an account.
type Validator struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
	Network   string `json:"network"`
	Keystore  string `json:"keystore,omitempty"`
}

// --------------------------------------------------------------------------
// Beacon Nodes
// --------------------------------------------------------------------------

// BeaconNode is a beacon node a validator talks to, either remote or a local docker container.
type BeaconNode struct {
	URL      string `json:"url"`
	DockerID string `json:"dockerId,omitempty"`
}

// BeaconNodes is the list of beacon nodes of one validator.
type BeaconNodes struct {
	Nodes []BeaconNode `json:"nodes"`
}

// BeaconNodeID builds the id under which the beacon nodes of a validator are stored.
func BeaconNodeID(account, validator string) string {
	return account + "-" + validator
}

// Add appends node unless a node with the same URL exists. It reports whether the list changed.
func (b *BeaconNodes) Add(node BeaconNode) bool {
	for _, n := range b.Nodes {
		if n.URL == node.URL {
			return false
		}
	}
	b.Nodes = append(b.Nodes, node)
	return true
}

// Remove deletes the node with the given URL. It reports whether the list changed.
func (b *BeaconNodes) Remove(url string) bool {
	for i, n := range b.Nodes {
		if n.URL == url {
			b.Nodes = append(b.Nodes[:i], b.Nodes[i+1:]...)
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Network Metrics
// --------------------------------------------------------------------------

// MetricsRetention is how long network metric records are kept.
const MetricsRetention = 25 * time.Hour

// NetworkMetric is a single request against a beacon node.
// Latency is in milliseconds, Time in unix milliseconds.
type NetworkMetric struct {
	URL     string `json:"url"`
	Code    int    `json:"code"`
	Latency int64  `json:"latency"`
	Time    int64  `json:"time"`
}

// NetworkMetrics are the recent requests against the beacon nodes of a validator.
type NetworkMetrics struct {
	Records []NetworkMetric `json:"records"`
}

// ResponseCounts counts responses per status class.
type ResponseCounts struct {
	Success     int `json:"2xx"`
	ClientError int `json:"4xx"`
	ServerError int `json:"5xx"`
}

// AddRecord appends record and drops records older than MetricsRetention relative to now.
func (m *NetworkMetrics) AddRecord(record NetworkMetric, now time.Time) {
	m.Records = append(m.Records, record)
	m.Prune(now)
}

// Prune drops records older than MetricsRetention relative to now.
func (m *NetworkMetrics) Prune(now time.Time) {
	cutoff := now.Add(-MetricsRetention).UnixMilli()
	kept := m.Records[:0]
	for _, r := range m.Records {
		if r.Time > cutoff {
			kept = append(kept, r)
		}
	}
	m.Records = kept
}

// RecordsInRange returns the records with from < Time < to.
func (m *NetworkMetrics) RecordsInRange(from, to time.Time) []NetworkMetric {
	var result []NetworkMetric
	for _, r := range m.Records {
		if r.Time > from.UnixMilli() && r.Time < to.UnixMilli() {
			result = append(result, r)
		}
	}
	return result
}

// AverageLatency returns the mean latency of the records in range, false if there are none.
func (m *NetworkMetrics) AverageLatency(from, to time.Time) (float64, bool) {
	records := m.RecordsInRange(from, to)
	if len(records) == 0 {
		return 0, false
	}
	var sum int64
	for _, r := range records {
		sum += r.Latency
	}
	return float64(sum) / float64(len(records)), true
}

// ResponseCounts counts all records per status class.
func (m *NetworkMetrics) ResponseCounts() ResponseCounts {
	var counts ResponseCounts
	for _, r := range m.Records {
		switch {
		case r.Code >= 200 && r.Code < 300:
			counts.Success++
		case r.Code >= 400 && r.Code < 500:
			counts.ClientError++
		case r.Code >= 500:
			counts.ServerError++
		}
	}
	return counts
}

// --------------------------------------------------------------------------
// Validator Logs
// --------------------------------------------------------------------------

// MaxValidatorLogs is the number of log lines kept per validator.
const MaxValidatorLogs = 1000

// LogEntry is one line of validator output.
type LogEntry struct {
	Time    int64  `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ValidatorLogs are the most recent log lines of a validator, oldest first.
type ValidatorLogs struct {
	Logs []LogEntry `json:"logs"`
}

// Append adds entries and drops the oldest lines beyond MaxValidatorLogs.
func (l *ValidatorLogs) Append(entries ...LogEntry) {
	l.Logs = append(l.Logs, entries...)
	if over := len(l.Logs) - MaxValidatorLogs; over > 0 {
		l.Logs = append([]LogEntry(nil), l.Logs[over:]...)
	}
}
