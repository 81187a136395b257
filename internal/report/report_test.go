package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/tbruckner/voxatlas/internal/align"
	"github.com/tbruckner/voxatlas/internal/pipeline"
	"github.com/tbruckner/voxatlas/internal/report"
	"github.com/tbruckner/voxatlas/pkg/provider/psycho"
)

func testRun() *pipeline.Run {
	return &pipeline.Run{
		SessionID: "session-1",
		Turns: []pipeline.TurnRecord{
			{
				Turn:          align.Turn{Start: 0, End: 2, Text: "hi there", Label: "A"},
				SpeakerName:   "Alice",
				Psychometrics: psycho.Score{"happy": 1, "valence": 1},
			},
			{
				Turn:          align.Turn{Start: 2, End: 5, Text: "how are you doing", Label: "A"},
				SpeakerName:   "Alice",
				Psychometrics: psycho.Score{"happy": 0, "valence": 0},
			},
			{
				Turn: align.Turn{Start: 5, End: 6, Text: "fine", Label: "B"},
			},
		},
		Statuses: map[string]*pipeline.SpeakerStatus{
			"A": {Label: "A", Status: pipeline.StatusMatched, ProfileID: "p1", DisplayName: "Alice"},
			"B": {Label: "B", Status: pipeline.StatusUnmatched, Reason: "deferred"},
		},
	}
}

func TestWriteTranscriptCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := report.WriteTranscriptCSV(&buf, testRun().Turns); err != nil {
		t.Fatalf("WriteTranscriptCSV returned error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3 turns", len(rows))
	}
	wantHeader := []string{"speaker_label", "speaker_name", "start", "end", "text"}
	for i, h := range wantHeader {
		if rows[0][i] != h {
			t.Errorf("header[%d]=%q, want %q", i, rows[0][i], h)
		}
	}
	if rows[1][0] != "A" || rows[1][1] != "Alice" || rows[1][4] != "hi there" {
		t.Errorf("row 1 = %v, want A/Alice/hi there", rows[1])
	}
	if rows[1][2] != "0.00" || rows[1][3] != "2.00" {
		t.Errorf("row 1 times = %q/%q, want 0.00/2.00", rows[1][2], rows[1][3])
	}
	if rows[3][0] != "B" || rows[3][1] != "" {
		t.Errorf("row 3 = %v, want unresolved B with empty name", rows[3])
	}
}

func TestWriteSpeakerReportJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := report.WriteSpeakerReportJSON(&buf, testRun()); err != nil {
		t.Fatalf("WriteSpeakerReportJSON returned error: %v", err)
	}

	var doc struct {
		SessionID string `json:"session_id"`
		Speakers  []struct {
			Label         string             `json:"label"`
			Status        string             `json:"status"`
			Reason        string             `json:"reason"`
			ProfileID     string             `json:"profile_id"`
			DisplayName   string             `json:"display_name"`
			TurnCount     int                `json:"turn_count"`
			TotalDuration float64            `json:"total_duration"`
			WordCount     int                `json:"word_count"`
			SpeakingRate  float64            `json:"speaking_rate"`
			Psychometrics map[string]float64 `json:"psychometrics"`
		} `json:"speakers"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc.SessionID != "session-1" {
		t.Errorf("session_id=%q, want session-1", doc.SessionID)
	}
	if len(doc.Speakers) != 2 {
		t.Fatalf("got %d speakers, want 2", len(doc.Speakers))
	}

	a := doc.Speakers[0]
	if a.Label != "A" || a.Status != "matched" || a.DisplayName != "Alice" {
		t.Errorf("speaker A = %+v, want matched Alice", a)
	}
	if a.TurnCount != 2 {
		t.Errorf("A turn_count=%d, want 2", a.TurnCount)
	}
	if math.Abs(a.TotalDuration-5) > 1e-9 {
		t.Errorf("A total_duration=%g, want 5", a.TotalDuration)
	}
	if a.WordCount != 6 {
		t.Errorf("A word_count=%d, want 6", a.WordCount)
	}
	// 6 words over 5 seconds = 72 words per minute.
	if math.Abs(a.SpeakingRate-72) > 1e-9 {
		t.Errorf("A speaking_rate=%g, want 72", a.SpeakingRate)
	}
	if math.Abs(a.Psychometrics["happy"]-0.5) > 1e-9 {
		t.Errorf("A pooled happy=%g, want 0.5", a.Psychometrics["happy"])
	}

	b := doc.Speakers[1]
	if b.Label != "B" || b.Status != "unmatched" || b.Reason != "deferred" {
		t.Errorf("speaker B = %+v, want unmatched/deferred", b)
	}
	if b.Psychometrics != nil {
		t.Errorf("B psychometrics=%v, want omitted", b.Psychometrics)
	}

	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("report is not indented")
	}
}
