package anthropic

// BuildCachedSystemBlocks constructs a system block with a prompt-cache
// breakpoint. The classification instructions are identical for every
// batch of a job, so consecutive batches read them from cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "5m"},
		},
	}
}
