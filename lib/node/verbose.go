// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package node

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/tenderlove/ping-pong-pear/lib/events"
)

// The verbose logging service subscribes to events and prints these in
// verbose format to the console using INFO level.
type verboseService struct {
	evLogger events.Logger
}

func newVerboseService(evLogger events.Logger) *verboseService {
	return &verboseService{
		evLogger: evLogger,
	}
}

// serve runs the verbose logging service.
func (s *verboseService) Serve(ctx context.Context) error {
	sub := s.evLogger.Subscribe(events.AllEvents)
	defer sub.Unsubscribe()
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				<-ctx.Done()
				return ctx.Err()
			}
			formatted := s.formatEvent(ev)
			if formatted != "" {
				slog.Info(formatted)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *verboseService) formatEvent(ev events.Event) string {
	switch ev.Type {
	case events.Starting:
		data := ev.Data.(events.StartingEventData)
		return fmt.Sprintf("Starting up as %q in project %q", data.InstanceID, data.Project)

	case events.StartupComplete:
		return "Startup complete"

	case events.PeerDiscovered:
		data := ev.Data.(events.PeerEventData)
		return fmt.Sprintf("Discovered peer %q at %s", data.ID, hostPort(data.Address, data.Port))

	case events.PeerRemoved:
		data := ev.Data.(events.PeerEventData)
		return fmt.Sprintf("Peer %q went away", data.ID)

	case events.CommitReceived:
		data := ev.Data.(events.CommitEventData)
		return fmt.Sprintf("Peer %q at %s has a new commit", data.InstanceID, hostPort(data.Address, data.Port))

	case events.FetchQueued:
		data := ev.Data.(events.FetchEventData)
		return fmt.Sprintf("Queued fetch from %s", data.URL)

	case events.FetchStarted:
		// Always followed by FetchFinished
		return ""

	case events.FetchFinished:
		data := ev.Data.(events.FetchEventData)
		result := "Success"
		if data.Error != nil {
			result = *data.Error
		}
		return fmt.Sprintf("Finished fetching from %s: %s", data.URL, result)

	case events.PushSent:
		data := ev.Data.(events.PushEventData)
		result := "Success"
		if data.Error != nil {
			result = *data.Error
		}
		return fmt.Sprintf("Asked peer %q at %s to pull: %s", data.Peer, data.URL, result)
	}

	return fmt.Sprintf("%s %#v", ev.Type, ev)
}

func hostPort(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}
