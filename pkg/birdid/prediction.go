package birdid

// Prediction is one ranked species hypothesis for an audio clip.
// Rank is 1-based and increases as Confidence decreases.
type Prediction struct {
	BirdID         string  `json:"birdId" yaml:"bird_id"`
	BirdName       string  `json:"birdName" yaml:"bird_name"`
	ScientificName string  `json:"scientificName" yaml:"scientific_name"`
	Confidence     float64 `json:"confidence" yaml:"confidence"`
	Rank           int     `json:"rank" yaml:"rank"`
}

// Geo is the optional recording context used by the metadata model.
// Week follows the BirdNET convention: 1..48, four weeks per month.
type Geo struct {
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
	Week int     `json:"week" yaml:"week"`
}

// IdentifyResult is the response shape of an identification request.
// It is always well-formed: failures set Success=false and Error, and the
// demo fallback sets Demo=true.
type IdentifyResult struct {
	Success          bool         `json:"success" yaml:"success"`
	Predictions      []Prediction `json:"predictions" yaml:"predictions"`
	Spectrogram      [][]float32  `json:"spectrogram,omitempty" yaml:"-"`
	ProcessingTimeMs int64        `json:"processingTimeMs" yaml:"processing_time_ms"`
	Error            string       `json:"error,omitempty" yaml:"error,omitempty"`
	Demo             bool         `json:"demo,omitempty" yaml:"demo,omitempty"`
}

// Status reports the model lifecycle to external collaborators.
type Status struct {
	Loaded     bool   `json:"loaded" yaml:"loaded"`
	State      string `json:"state" yaml:"state"`
	NumClasses int    `json:"numClasses" yaml:"num_classes"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}
