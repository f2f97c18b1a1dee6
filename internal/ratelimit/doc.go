/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides throttlers that pace the egress of outbound
// HTTP requests dispatched to a single target host.
package ratelimit
