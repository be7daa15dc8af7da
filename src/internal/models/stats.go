package models

// StoreStats is the point-in-time store summary served by the detailed
// health endpoint and cached in Redis.
type StoreStats struct {
	ActiveSessions int64 `json:"activeSessions"`
	OpenRequests   int64 `json:"openRequests"`
	ClosedRequests int64 `json:"closedRequests"`
	WhitelistUsers int64 `json:"whitelistUsers"`
}
