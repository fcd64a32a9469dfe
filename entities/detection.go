package entities

// OCRDetection is a medicine recognized on one line of a scanned prescription.
// It only lives for the duration of a scan.
type OCRDetection struct {
	RawLine         string                     `json:"rawLine"`
	Name            string                     `json:"name"`
	MatchedEntryID  string                     `json:"matchedEntryId,omitempty"`
	ConfidenceScore int                        `json:"confidenceScore"`
	DosageText      string                     `json:"dosageText,omitempty"`
	GenericName     string                     `json:"genericName,omitempty"`
	Provisional     bool                       `json:"provisional"`
	Ambiguous       bool                       `json:"ambiguous,omitempty"`
	Found           bool                       `json:"found"`
	StockOffers     []StockOffer               `json:"stockOffers"`
	Substitutions   []GenericSubstitutionOffer `json:"substitutions"`
}

// IsMatched reports whether the detection points to a catalog entry
func (d OCRDetection) IsMatched() bool {
	return d.MatchedEntryID != ""
}

// StockOffer is a pharmacy able to deliver the detected medicine
type StockOffer struct {
	PharmacyID        string `json:"pharmacyId"`
	PharmacyName      string `json:"pharmacyName"`
	Address           string `json:"address"`
	PriceUnits        int64  `json:"price"`
	QuantityAvailable int64  `json:"quantityAvailable"`
	ProximityLabel    string `json:"proximityLabel"`
}

// GenericSubstitutionOffer is a brand sharing the DCI of the detected medicine
type GenericSubstitutionOffer struct {
	CandidateName     string `json:"candidateName"`
	PharmacyID        string `json:"pharmacyId"`
	PharmacyName      string `json:"pharmacyName"`
	PriceUnits        int64  `json:"price"`
	QuantityAvailable int64  `json:"quantityAvailable"`
}

// ScanResult is the outcome of a full prescription scan
type ScanResult struct {
	ScanID     string         `json:"scanId"`
	Detections []OCRDetection `json:"detections"`
	LineCount  int            `json:"lineCount"`
	Message    string         `json:"message,omitempty"`
}
