package publish

import (
	"context"
	"encoding/json"
	"time"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// ModelTarget is one model-exporting output on one connection.
type ModelTarget struct {
	ConnectionID string
	Output       api.OutputConfiguration
}

// ModelSink delivers a serialised model document to one target.
type ModelSink func(ctx context.Context, target ModelTarget, topic string, payload []byte) error

// ModelPublisher periodically walks the active namespace structure and
// emits a model document to every model-exporting output. Model publishes
// bypass change detection and rate limiting by design: the model is a
// heartbeat of the namespace shape, not a data stream.
type ModelPublisher struct {
	interval  time.Duration
	hierarchy api.HierarchyHandler
	targets   func() []ModelTarget
	sink      ModelSink

	cancel context.CancelFunc
	done   chan struct{}
}

// NewModelPublisher builds a publisher emitting every interval (default 10
// minutes) to the targets enumerated by targets().
func NewModelPublisher(interval time.Duration, hierarchy api.HierarchyHandler, targets func() []ModelTarget, sink ModelSink) *ModelPublisher {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ModelPublisher{interval: interval, hierarchy: hierarchy, targets: targets, sink: sink}
}

// Start launches the periodic loop. One model round also fires immediately
// so sinks see the structure without waiting a full interval.
func (p *ModelPublisher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.PublishOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.PublishOnce(ctx)
			}
		}
	}()
}

// Stop terminates the loop.
func (p *ModelPublisher) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// PublishOnce runs one model round: build the document, emit to every
// target. Per-target failures are logged; the round continues.
func (p *ModelPublisher) PublishOnce(ctx context.Context) {
	structure, err := p.hierarchy.GetNamespaceStructure()
	if err != nil {
		logging.Warn("ModelPublisher", "skipping round, namespace structure unavailable: %v", err)
		return
	}

	targets := p.targets()
	if len(targets) == 0 {
		return
	}

	sent := 0
	for _, target := range targets {
		attribute := target.Output.ModelAttributeName
		if attribute == "" {
			attribute = "namespaceModel"
		}
		payload, err := json.Marshal(map[string]interface{}{
			"schemaVersion": 1,
			"generatedAt":   time.Now().UTC(),
			attribute:       structure,
		})
		if err != nil {
			logging.Error("ModelPublisher", err, "failed to serialise model document")
			continue
		}

		topic := target.Output.ModelTopic
		if topic == "" {
			topic = "uns/model"
		}
		if target.Output.TopicPrefix != "" {
			topic = target.Output.TopicPrefix + topic
		}

		if err := p.sink(ctx, target, topic, payload); err != nil {
			logging.Warn("ModelPublisher", "model publish to %s via %s failed: %v",
				topic, target.ConnectionID, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		logging.Debug("ModelPublisher", "published model to %d outputs", sent)
	}
}
