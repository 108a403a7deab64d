package docker

import (
	"context"
	"log"

	"github.com/docker/docker/api/types/events"
)

// EventHandler receives container lifecycle events as they happen.
type EventHandler func(containerName, action, actorID string)

// WatchEvents follows the Docker event stream. It attaches a log pump
// to every managed container already running, then pumps logs for each
// container that starts and forwards lifecycle events to the handler.
// Blocks until ctx is cancelled.
func (m *Manager) WatchEvents(ctx context.Context, handler EventHandler) error {
	// Attach pumps to containers already running
	running, err := m.Containers(ctx, true)
	if err != nil {
		return err
	}
	for _, cont := range running {
		if cont.Running() {
			log.Printf("Attaching log pump to %s", cont.Name())
			go m.pumpLogs(ctx, cont.ID(), cont.Name())
		}
	}

	msgCh, errCh := m.client.dockerClient.Events(ctx, events.ListOptions{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		case msg := <-msgCh:
			if msg.Type != events.ContainerEventType {
				continue
			}
			name := msg.Actor.Attributes["name"]

			switch msg.Action {
			case events.ActionStart:
				log.Printf("Container %s started", name)
				go m.pumpLogs(ctx, msg.Actor.ID, name)
			case events.ActionStop, events.ActionDie, events.ActionDestroy, events.ActionRestart:
				log.Printf("Container %s: %s", name, msg.Action)
			default:
				continue
			}

			if handler != nil {
				handler(name, string(msg.Action), msg.Actor.ID)
			}
		}
	}
}
