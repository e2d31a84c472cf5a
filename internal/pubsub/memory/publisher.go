// Package memory is an in-process pubsub.Publisher. It keeps every
// published message and fans them out to subscribers; it backs the
// memory storage mode and tests.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/labdepot/labdepot/internal/pubsub"
)

var ErrClosed = errors.New("publisher is closed")

// Message is one published payload.
type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

// Publisher implements pubsub.Publisher in memory.
type Publisher struct {
	opts pubsub.PublisherOptions

	mu       sync.Mutex
	messages []Message
	subs     map[string][]chan Message
	closed   bool
}

var _ pubsub.Publisher = (*Publisher)(nil)

func NewPublisher(opts pubsub.PublisherOptions) *Publisher {
	return &Publisher{
		opts: opts,
		subs: make(map[string][]chan Message),
	}
}

// Publish records the message and delivers it to matching subscribers.
// Slow subscribers miss messages rather than block the publisher.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	fullSubject := p.opts.FullSubject(subject)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	msg := Message{Subject: fullSubject, Data: append([]byte(nil), data...), Timestamp: start}
	p.messages = append(p.messages, msg)
	for pattern, chans := range p.subs {
		if !matchSubject(pattern, fullSubject) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- msg:
			default:
			}
		}
	}
	p.mu.Unlock()

	if p.opts.OnPublish != nil {
		p.opts.OnPublish(fullSubject, nil, time.Since(start))
	}
	return nil
}

// Subscribe returns a channel receiving messages whose subject matches
// pattern ("*" matches one token, ">" the rest).
func (p *Publisher) Subscribe(pattern string, bufSize int) <-chan Message {
	ch := make(chan Message, bufSize)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch
	}
	p.subs[pattern] = append(p.subs[pattern], ch)
	return ch
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, chans := range p.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	p.subs = nil
	return nil
}

func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
