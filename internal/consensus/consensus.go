// Package consensus stands in for the black-box replicated state-machine
// runtime spec §1 assumes is available: membership, leader election,
// command ordering, snapshot/recover and subscription delivery. Real
// deployments replace this package with a genuine consensus client; the
// Sequencer and Broker types here are a single-node reference
// implementation sufficient to satisfy the testable properties of spec §8
// (total order per state machine, at-least-once notification delivery).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package consensus

import (
	"sync"

	"github.com/ShisoftResearch/hivemind-go/cmn/nlog"
)

// Sequencer totally orders every command submitted to one state machine by
// running them one at a time under a single writer lock, mirroring a
// single-leader consensus log's commit order without requiring an actual
// cluster for the reference implementation.
type Sequencer struct {
	mu sync.Mutex
}

// Do runs fn as the next committed command; fn's return value is the
// result the caller observes as "committed". Callers publish their
// notifications either inside fn (gstore) or after Do returns (resmgr).
func (s *Sequencer) Do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Notification is one callback-delivered event from a state machine to its
// subscribers (spec §4.5 on_changed, §4.6 on_member_changed /
// on_occupation_changed / on_resource_available).
type Notification struct {
	Topic   string
	Payload any
}

// Broker is the callback-based notification subsystem shared by the
// Global Store and Resource Manager state machines. Delivery is
// at-least-once and synchronous with Publish; subscribers must be
// idempotent (spec §4.6).
type Broker struct {
	mu   sync.Mutex
	subs map[string][]*subscription
	next uint64
}

type subscription struct {
	id uint64
	fn func(Notification)
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]*subscription)}
}

// Subscribe registers fn for every Publish on topic and returns a cancel
// function.
func (b *Broker) Subscribe(topic string, fn func(Notification)) (cancel func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[topic] = append(b.subs[topic], &subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every current subscriber of topic.
func (b *Broker) Publish(topic string, payload any) {
	b.mu.Lock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	note := Notification{Topic: topic, Payload: payload}
	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					nlog.Errorf("consensus: subscriber panicked on topic %s: %v", topic, r)
				}
			}()
			s.fn(note)
		}()
	}
}
