// Package domain defines the core domain types and interfaces.
//
// Files are grouped by concept (chat.go, moderation.go, presence.go, stats.go).
// No implementation code here, only contracts consumed by internal/app and
// satisfied by the adapters.
package domain
