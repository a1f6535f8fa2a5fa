// Package app holds the event handlers that sit between the chat and webhook
// feeds and the domain ports: moderation, presence tracking and uptime
// reconciliation. It depends on domain interfaces, not concrete adapters.
package app
