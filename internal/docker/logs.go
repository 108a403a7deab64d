package docker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
)

// LogRecord is one decoded container log frame.
type LogRecord struct {
	Timestamp   int64  `json:"ts"`
	ContainerID string `json:"cid"`
	Name        string `json:"name"`
	// Source is the stream byte of the frame header: 1 stdout, 2 stderr.
	Source byte   `json:"source"`
	Size   uint32 `json:"size"`
	Data   string `json:"data"`
}

// LogHub fans container log records out to subscribers.
type LogHub struct {
	mu   sync.RWMutex
	subs map[chan LogRecord]bool
}

// NewLogHub creates an empty hub.
func NewLogHub() *LogHub {
	return &LogHub{subs: make(map[chan LogRecord]bool)}
}

// Subscribe registers a new subscriber channel.
func (h *LogHub) Subscribe() chan LogRecord {
	ch := make(chan LogRecord, 64)
	h.mu.Lock()
	h.subs[ch] = true
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *LogHub) Unsubscribe(ch chan LogRecord) {
	h.mu.Lock()
	if h.subs[ch] {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers a record to every subscriber, dropping it for
// subscribers that cannot keep up.
func (h *LogHub) Publish(rec LogRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// frameHeaderSize is the length of the multiplexed log stream header:
// one stream byte, three zero bytes, a big-endian uint32 payload size.
// https://docs.docker.com/engine/api/v1.37/#tag/Container/operation/ContainerAttach
const frameHeaderSize = 8

// decodeLogFrame parses one multiplexed frame header and returns the
// stream byte and payload size.
func decodeLogFrame(header []byte) (source byte, size uint32, err error) {
	if len(header) < frameHeaderSize {
		return 0, 0, fmt.Errorf("short log frame header: %d bytes", len(header))
	}
	return header[0], binary.BigEndian.Uint32(header[4:8]), nil
}

// pumpLogs follows one container's log stream, decoding frames and
// publishing them to the hub until the stream closes or ctx ends.
func (m *Manager) pumpLogs(ctx context.Context, cid, name string) {
	since := strconv.FormatInt(time.Now().Unix(), 10)
	reader, err := m.client.dockerClient.ContainerLogs(ctx, cid, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Since:      since,
	})
	if err != nil {
		log.Printf("Failed to open log stream for %s: %v", name, err)
		return
	}
	defer reader.Close()

	header := make([]byte, frameHeaderSize)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Printf("Log stream for %s ended: %v", name, err)
			}
			return
		}

		source, size, err := decodeLogFrame(header)
		if err != nil {
			log.Printf("Bad log frame from %s: %v", name, err)
			return
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return
		}

		m.hub.Publish(LogRecord{
			Timestamp:   time.Now().UnixMilli(),
			ContainerID: cid,
			Name:        name,
			Source:      source,
			Size:        size,
			Data:        string(payload),
		})
	}
}
