package clientdata

import "time"

// Default TTLs, added to time.Now() when storing.
const (
	TTLCurrentPrice = time.Minute   // Live quotes; overridden by QUOTE_CACHE_TTL
	TTLRecentClose  = 6 * time.Hour // Previous close changes once per session
)
