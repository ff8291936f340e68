package evidence

import (
	"encoding/json"
	"os"
	"time"
)

// DetectionRecord is one line of detections.jsonl (spec.md §6 Outputs).
type DetectionRecord struct {
	Timestamp      string    `json:"timestamp"`
	StartTime      float64   `json:"start_time"`
	EndTime        float64   `json:"end_time"`
	Duration       float64   `json:"duration"`
	StartPoint     [2]float64 `json:"start_point"`
	EndPoint       [2]float64 `json:"end_point"`
	LengthPixels   float64   `json:"length_pixels"`
	PeakBrightness float64   `json:"peak_brightness"`
	Confidence     float64   `json:"confidence"`
	ClipFile       string    `json:"clip_file,omitempty"`
	CompositeFile  string    `json:"composite_file,omitempty"`
}

// appendJSONL appends a single JSON line to path, creating it if absent
// (spec.md §4.8 step 5).
func appendJSONL(path string, rec DetectionRecord) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}

func isoLocal(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05.000Z07:00")
}
