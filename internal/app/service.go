/**
 * @description
 * This file defines the core application service for the point system. The
 * `Service` struct orchestrates grant issuance, spend allocation, and the two
 * cancellation paths, coordinating the database repository, the policy
 * provider, and the event producer.
 *
 * Every public operation captures `now` exactly once and threads it through
 * validation, allocation and persistence, so expiry checks and the allocation
 * walk are deterministic within one call. All durable effects of an operation
 * commit atomically through Repository.InTx; validation failures abort before
 * any mutation.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - internal/domain, internal/policy, internal/store: Domain models, policy
 *   limits, and data access.
 * - pkg/rabbitmq: Point event publishing.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/pointsystem/point-service/internal/policy"
	"github.com/pointsystem/point-service/internal/store"
	"github.com/pointsystem/point-service/pkg/rabbitmq"
)

const (
	minExpireDays  = 1
	maxExpireYears = 5
)

// Service provides the core business logic for point grants and spends.
type Service struct {
	repo     store.Repository
	policies *policy.Provider
	events   rabbitmq.Publisher
	now      func() time.Time
}

// NewService creates a new point service instance. The events producer may be
// nil when no broker is configured.
func NewService(repo store.Repository, policies *policy.Provider, events rabbitmq.Publisher) *Service {
	return &Service{
		repo:     repo,
		policies: policies,
		events:   events,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// publishPointEvent publishes best-effort after commit; a broker failure must
// never affect an already-committed operation.
func (s *Service) publishPointEvent(ctx context.Context, routingKey string, event rabbitmq.PointEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishPointEvent(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"point event publish failed\" routing_key=%s customer_id=%s err=%v", routingKey, event.CustomerID, err)
	}
}
