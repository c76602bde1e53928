// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay implements the core of the multi-tenant message redirection
// service: per-user transport sessions, named redirection rules, live
// subscriptions that mirror messages from a source conversation to a
// destination conversation, and the message-identity map that keeps edits and
// reply threading attached to the right mirrored messages.
//
// # Core Types
//
// [SessionManager] owns at most one live transport connection per user. It
// lazily dials connections, reuses them across redirections, and tears them
// down when a user's last rule disappears.
//
// [Registry] is the catalog of [Rule] values per user. A rule is created
// pending, completed when both chat ids are supplied, and only then realized
// as a live [Subscription] by the [Engine].
//
// [Engine] installs the listener pair (new message, edited message) for each
// active rule and performs the forward/edit/reply mirroring. Listener
// failures are isolated per event: a failed send means one message is not
// mirrored, never a dead subscription.
//
// [MirrorMap] records which destination message mirrors which source message
// so edits and replies land on the right copy. It is a process-lifetime cache
// with no eviction.
//
// [Service] is the facade the command/UI layer talks to, and [Reconciler]
// replays persisted rules through the same activation path at process start.
//
// # External Collaborators
//
// The messaging transport is consumed through the [Client] and [Dialer]
// interfaces; no concrete MTProto implementation lives in this package. The
// persistence API is consumed through [Store].
package relay
