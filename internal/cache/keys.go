package cache

import "strings"

// Search keys a search result by source and normalised query.
func Search(source, query string) string {
	return "search:" + source + ":" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Snapshot keys a market data snapshot.
func Snapshot(entityType, entityValue string) string {
	return "snapshot:" + strings.ToUpper(entityType) + ":" + entityValue
}
