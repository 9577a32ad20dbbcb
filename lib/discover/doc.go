// Copyright (C) 2026 The Ping Pong Pear Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

/*
Package discover finds peers working on the same project on the local
network.

Two strategies are available, behind the Discoverer interface.

Gossip
======

The gossip discoverer uses the envelope transport. Advertising a record
broadcasts a Locate for the project, followed by an Announce, and then
repeats the Announce at a fixed interval (with some jitter) until the
advertisement is released. Peers receiving a Locate for their project answer
with their own Announce.

Resolving watches received Announce envelopes for the project. A peer is
reported as added the first time it is seen and again whenever its endpoint
changes. Gossip has no departure message, so peers are never reported as
removed.

mDNS
====

The mDNS discoverer registers a DNS-SD service instance of type
_pingpongpear._tcp in the local. domain. The instance name is the node's
instance identifier, the port is its transfer port, and the TXT record
carries

	project=<name>

Resolving browses the service type in rounds. Entries without an IPv4
address or without a project TXT entry are skipped. A peer that has not
been seen for the expiry period, for example because it withdrew its
service, is reported as removed.

In both cases a resolver never reports the records advertised through the
same Discoverer.
*/
package discover
