package cache

// SQL schemas for cache tables. All tables use "cache_key" as the primary
// key column for consistency.

// SearchCountTable caches Custom Search result-count responses by query.
const SearchCountTable = "search_count_cache"

// SearchCountSchema defines the search-count response cache.
const SearchCountSchema = `
CREATE TABLE IF NOT EXISTS search_count_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_search_count_cached_at ON search_count_cache(cached_at);
`

// ImageSearchTable caches image-search URL lists by source and query.
const ImageSearchTable = "image_search_cache"

// ImageSearchSchema defines the image-search response cache.
const ImageSearchSchema = `
CREATE TABLE IF NOT EXISTS image_search_cache (
	cache_key TEXT PRIMARY KEY NOT NULL,
	data TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_image_search_cached_at ON image_search_cache(cached_at);
`

var allSchemas = []string{
	SearchCountSchema,
	ImageSearchSchema,
}
