package messaging

import (
	"context"
	"time"

	"github.com/qw-energy/victron-poller/internal/catalog"
	"github.com/qw-energy/victron-poller/internal/logging"
	"github.com/qw-energy/victron-poller/internal/poller"
	"github.com/qw-energy/victron-poller/internal/state"
)

// SnapshotMessage is the retained per-cycle payload on <prefix>/snapshot.
type SnapshotMessage struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"` // "ok" | "error"
	Values    poller.Snapshot `json:"values"`
}

// CatalogMessage describes the published measurements; retained on
// <prefix>/catalog every (re)connect so consumers can label values.
type CatalogMessage struct {
	Measurements []MeasurementSummary `json:"measurements"`
}

type MeasurementSummary struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Unit     string `json:"unit,omitempty"`
	Register uint16 `json:"register"`
	Computed bool   `json:"computed,omitempty"`
	UnitID   uint8  `json:"unitId,omitempty"`
}

// SnapshotPublisher republishes poll cycles over MQTT, skipping unchanged
// snapshots between heartbeats.
type SnapshotPublisher struct {
	broker    Broker
	store     state.SnapshotStore
	heartbeat time.Duration
}

func NewSnapshotPublisher(broker Broker, cat catalog.Catalog, heartbeat time.Duration) *SnapshotPublisher {
	p := &SnapshotPublisher{
		broker:    broker,
		store:     state.NewSnapshotStore(),
		heartbeat: heartbeat,
	}
	broker.AddOnConnectPublisher("catalog", catalogPublisher(broker, cat))
	return p
}

func catalogPublisher(broker Broker, cat catalog.Catalog) OnConnectPublisher {
	msg := CatalogMessage{Measurements: make([]MeasurementSummary, 0, len(cat))}
	for _, m := range cat {
		msg.Measurements = append(msg.Measurements, MeasurementSummary{
			Key:      m.Key,
			Name:     m.Name,
			Unit:     m.Unit,
			Register: m.Register,
			Computed: m.Computed,
			UnitID:   m.UnitID,
		})
	}
	return func() (PublishRequest, error) {
		return PublishRequest{
			Topic:   broker.Topic("catalog"),
			Qos:     AtLeastOnce,
			Retain:  true,
			Payload: msg,
		}, nil
	}
}

// PublishSnapshot implements poller.Publisher.
func (p *SnapshotPublisher) PublishSnapshot(ctx context.Context, snap poller.Snapshot, ok bool) error {
	status := "ok"
	if !ok {
		status = "error"
	}

	isChanged := p.store.HasChanged(snap, status)
	needsHeartbeat := false
	if !isChanged {
		_, _, lastSent, hasPrev := p.store.GetLast()
		if p.heartbeat > 0 {
			needsHeartbeat = !hasPrev || time.Since(lastSent) > p.heartbeat
		}
	}
	if !isChanged && !needsHeartbeat {
		return nil
	}

	msg := SnapshotMessage{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Values:    snap,
	}
	logging.Debug("publishing snapshot", "status", status, "values", len(snap))
	err := p.broker.PublishJSON(ctx, p.broker.Topic("snapshot"), FireAndForget, true, msg)
	if err == nil {
		p.store.Update(snap, status)
	}
	return err
}
