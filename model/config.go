package model

// LayoutConfig holds the spacing constants of the layout algorithms.
type LayoutConfig struct {
	Scale        float64 `json:"scale"`         // Radius of circular and force layouts
	LevelHeight  float64 `json:"level_height"`  // Vertical distance between hierarchy levels
	MinSpacing   float64 `json:"min_spacing"`   // Minimum horizontal distance inside a level
	LevelWidth   float64 `json:"level_width"`   // Width a level is spread over before MinSpacing applies
	RingSpacing  float64 `json:"ring_spacing"`  // Radius step per hop in radial layouts
	Iterations   int     `json:"iterations"`    // Force layout update steps
	IdealLength  float64 `json:"ideal_length"`  // Preferred edge length of force layouts before scaling
	ResultRadius float64 `json:"result_radius"` // Radius transform results are placed on
}

// DefaultLayoutConfig returns the layout constants used by the canvas.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		Scale:        400,
		LevelHeight:  200,
		MinSpacing:   150,
		LevelWidth:   800,
		RingSpacing:  150,
		Iterations:   100,
		IdealLength:  2,
		ResultRadius: 200,
	}
}

// CorrelationConfig configures matching entities against the archive.
type CorrelationConfig struct {
	// Exact key matches
	MatchKeys bool `json:"match_keys"`

	// Vector search parameters
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// Restrict matches to these entity types, all types when empty
	EntityTypes []EntityType `json:"entity_types,omitempty"`

	// Ranking
	KeyWeight        float64 `json:"key_weight"`
	SimilarityWeight float64 `json:"similarity_weight"`
}

// DefaultCorrelationConfig returns a sensible default configuration.
func DefaultCorrelationConfig() CorrelationConfig {
	return CorrelationConfig{
		MatchKeys:           true,
		TopK:                5,
		SimilarityThreshold: 0.8,
		EntityTypes:         nil,
		KeyWeight:           1.0,
		SimilarityWeight:    0.7,
	}
}
