package domain

import "github.com/erigontech/domaincore/internal/affinity"

// RecommendedDomainCount is spec section 6's recommended_domain_count:
// an OS-derived core count clamped to [1, cfg.MaxDomains].
func RecommendedDomainCount(cfg Config) int {
	return affinity.Recommended(cfg.MaxDomains)
}
