// Package memory contains an in-memory title batch publisher for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	err      error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent Publish calls return err; nil restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// TitleBatches returns the recorded payloads that are title batches.
func (p *Publisher) TitleBatches() []crawler.TitleBatch {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []crawler.TitleBatch
	for _, msg := range p.messages {
		if batch, ok := msg.Payload.(crawler.TitleBatch); ok {
			out = append(out, batch)
		}
	}
	return out
}

// TitleCount sums the titles across all recorded title batches.
func (p *Publisher) TitleCount() int {
	total := 0
	for _, batch := range p.TitleBatches() {
		total += len(batch.Titles)
	}
	return total
}
