package services

// CaptureTally summarizes one capture scan run.
type CaptureTally struct {
	Created  int `json:"created"`
	Captured int `json:"captured"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// ScanTally summarizes one monitor or retry scan run.
type ScanTally struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
