package database

import (
	"context"
	"time"

	"github.com/mpetrunic/ChainGuardian/lib/models"
	"github.com/mpetrunic/ChainGuardian/lib/repository"
	"github.com/mpetrunic/ChainGuardian/lib/schema"
	"github.com/mpetrunic/ChainGuardian/lib/store"
)

// Database groups one repository per bucket. It works on any store.IStore,
// in the server process on the local store and in the UI process on the rpc client.
type Database struct {
	Account        *repository.Repository[models.Account]
	Validator      *repository.Repository[models.Validator]
	BeaconNode     *BeaconNodeRepository
	NetworkMetrics *NetworkMetricsRepository
	ValidatorLogs  *ValidatorLogsRepository
}

// New builds the repositories on top of s.
func New(s store.IStore) *Database {
	return &Database{
		Account:   repository.New[models.Account](s, schema.BucketAccounts, nil),
		Validator: repository.New[models.Validator](s, schema.BucketValidators, nil),
		BeaconNode: &BeaconNodeRepository{
			repo:    repository.New[models.BeaconNodes](s, schema.BucketBeaconNodes, nil),
			account: models.DefaultAccount,
		},
		NetworkMetrics: &NetworkMetricsRepository{
			repo: repository.New[models.NetworkMetrics](s, schema.BucketNetworkLogs, nil),
			now:  time.Now,
		},
		ValidatorLogs: &ValidatorLogsRepository{
			repo: repository.New[models.ValidatorLogs](s, schema.BucketValidatorLogs, nil),
		},
	}
}

// --------------------------------------------------------------------------
// Beacon Nodes
// --------------------------------------------------------------------------

// BeaconNodeRepository stores the beacon node list of each validator of the account.
type BeaconNodeRepository struct {
	repo    *repository.Repository[models.BeaconNodes]
	account string
}

// Get returns the beacon nodes of a validator. A validator without nodes yields an empty list.
func (r *BeaconNodeRepository) Get(ctx context.Context, validator string) (models.BeaconNodes, error) {
	nodes, _, err := r.repo.Get(ctx, models.BeaconNodeID(r.account, validator))
	return nodes, err
}

func (r *BeaconNodeRepository) Has(ctx context.Context, validator string) (bool, error) {
	return r.repo.Has(ctx, models.BeaconNodeID(r.account, validator))
}

func (r *BeaconNodeRepository) Set(ctx context.Context, validator string, nodes models.BeaconNodes) error {
	return r.repo.Set(ctx, models.BeaconNodeID(r.account, validator), nodes)
}

func (r *BeaconNodeRepository) Delete(ctx context.Context, validator string) error {
	return r.repo.Delete(ctx, models.BeaconNodeID(r.account, validator))
}

// Upsert adds node to the list of a validator.
func (r *BeaconNodeRepository) Upsert(ctx context.Context, validator string, node models.BeaconNode) error {
	nodes, err := r.Get(ctx, validator)
	if err != nil {
		return err
	}
	if !nodes.Add(node) {
		return nil
	}
	return r.Set(ctx, validator, nodes)
}

// GetAll returns the beacon node lists of every validator of the account.
func (r *BeaconNodeRepository) GetAll(ctx context.Context) ([]models.BeaconNodes, error) {
	return r.repo.GetByPrefix(ctx, models.BeaconNodeID(r.account, ""))
}

// --------------------------------------------------------------------------
// Network Metrics
// --------------------------------------------------------------------------

// NetworkMetricsRepository stores the request metrics of each validator.
type NetworkMetricsRepository struct {
	repo *repository.Repository[models.NetworkMetrics]
	now  func() time.Time
}

func (r *NetworkMetricsRepository) Get(ctx context.Context, validator string) (models.NetworkMetrics, error) {
	metrics, _, err := r.repo.Get(ctx, validator)
	return metrics, err
}

// AddRecord appends record to the metrics of a validator and prunes expired records.
// Concurrent writers of the same validator are not coordinated, the last write wins.
func (r *NetworkMetricsRepository) AddRecord(ctx context.Context, validator string, record models.NetworkMetric) error {
	metrics, err := r.Get(ctx, validator)
	if err != nil {
		return err
	}
	metrics.AddRecord(record, r.now())
	return r.repo.Set(ctx, validator, metrics)
}

func (r *NetworkMetricsRepository) Delete(ctx context.Context, validator string) error {
	return r.repo.Delete(ctx, validator)
}

// --------------------------------------------------------------------------
// Validator Logs
// --------------------------------------------------------------------------

// ValidatorLogsRepository stores the recent log lines of each validator.
type ValidatorLogsRepository struct {
	repo *repository.Repository[models.ValidatorLogs]
}

func (r *ValidatorLogsRepository) Get(ctx context.Context, validator string) (models.ValidatorLogs, error) {
	logs, _, err := r.repo.Get(ctx, validator)
	return logs, err
}

// Append adds entries to the logs of a validator.
func (r *ValidatorLogsRepository) Append(ctx context.Context, validator string, entries ...models.LogEntry) error {
	logs, err := r.Get(ctx, validator)
	if err != nil {
		return err
	}
	logs.Append(entries...)
	return r.repo.Set(ctx, validator, logs)
}

func (r *ValidatorLogsRepository) Delete(ctx context.Context, validator string) error {
	return r.repo.Delete(ctx, validator)
}
