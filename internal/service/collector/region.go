// internal/service/collector/region.go

package collector

// Backend identifiers returned by the region classifier.
const (
	RegionNorthAmerica = "north_america"
	RegionGlobal       = "global"
)

// BoxClassifier classifies coordinates with a coarse bounding-box test.
// New regions plug in by implementing collection.RegionClassifier; the
// orchestrator never hardcodes region logic.
type BoxClassifier struct{}

// NewBoxClassifier creates a new bounding-box classifier
func NewBoxClassifier() *BoxClassifier {
	return &BoxClassifier{}
}

// Classify returns the backend identifier for a coordinate.
func (BoxClassifier) Classify(lat, lng float64) string {
	if lat >= 20 && lat <= 85 && lng >= -170 && lng <= -50 {
		return RegionNorthAmerica
	}
	return RegionGlobal
}
