package retrieval

// Similarity maps a raw store distance into [0,1], higher meaning more
// relevant. The transform is piecewise because backends differ: conventional
// metrics return distances >= 0 (smaller is closer), while score-like
// backends can return negative or unbounded values. Both branches are
// monotonic, and a distance of 0 maps to exactly 1.
func Similarity(distance float64) float64 {
	if distance < 0 {
		return 1.0 / (1.0 + (-distance))
	}
	if distance > 1 {
		distance = 1
	}
	return 1.0 - distance
}
