// Package report renders a completed pipeline run to its on-disk outputs: a
// CSV transcript and a JSON speaker report.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tbruckner/voxatlas/internal/pipeline"
)

// WriteTranscriptCSV writes one row per aligned turn, in timeline order.
func WriteTranscriptCSV(w io.Writer, turns []pipeline.TurnRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"speaker_label", "speaker_name", "start", "end", "text"}); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, t := range turns {
		row := []string{
			t.Label,
			t.SpeakerName,
			strconv.FormatFloat(t.Start, 'f', 2, 64),
			strconv.FormatFloat(t.End, 'f', 2, 64),
			t.Text,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

// speakerEntry is the JSON shape of one local speaker in the report.
type speakerEntry struct {
	Label          string             `json:"label"`
	Status         string             `json:"status"`
	Reason         string             `json:"reason,omitempty"`
	ProfileID      string             `json:"profile_id,omitempty"`
	DisplayName    string             `json:"display_name,omitempty"`
	TurnCount      int                `json:"turn_count"`
	TotalDuration  float64            `json:"total_duration"`
	WordCount      int                `json:"word_count"`
	SpeakingRate   float64            `json:"speaking_rate"`
	VoicedDuration float64            `json:"voiced_duration"`
	Psychometrics  map[string]float64 `json:"psychometrics,omitempty"`
}

type reportDoc struct {
	SessionID string         `json:"session_id"`
	Speakers  []speakerEntry `json:"speakers"`
}

// WriteSpeakerReportJSON writes the per-speaker resolution summary. Speakers
// appear in the order of run.Statuses' sorted labels via the pending and
// resolved state recorded on the run.
func WriteSpeakerReportJSON(w io.Writer, run *pipeline.Run) error {
	doc := reportDoc{SessionID: run.SessionID}

	// Signatures still pending keep their session stats available; resolved
	// ones are summarised from the turn records.
	sigStats := make(map[string]pipeline.PendingDecision)
	for _, pd := range run.Pending {
		sigStats[pd.Label] = pd
	}

	for _, label := range sortedLabels(run) {
		status := run.Statuses[label]
		entry := speakerEntry{
			Label:       label,
			Status:      string(status.Status),
			Reason:      status.Reason,
			ProfileID:   status.ProfileID,
			DisplayName: status.DisplayName,
		}
		if pd, ok := sigStats[label]; ok {
			entry.VoicedDuration = pd.Signature.TotalVoicedDuration
		}
		entry.Psychometrics = pooledPsychometrics(run.Turns, label)
		for _, t := range run.Turns {
			if t.Label != label {
				continue
			}
			entry.TurnCount++
			entry.TotalDuration += t.Duration()
			entry.WordCount += len(strings.Fields(t.Text))
		}
		if entry.TotalDuration > 0 {
			entry.SpeakingRate = float64(entry.WordCount) / (entry.TotalDuration / 60)
		}
		doc.Speakers = append(doc.Speakers, entry)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// pooledPsychometrics averages per-turn scores for one speaker. Returns nil
// when no turn carries a score.
func pooledPsychometrics(turns []pipeline.TurnRecord, label string) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, t := range turns {
		if t.Label != label {
			continue
		}
		for k, v := range t.Psychometrics {
			sums[k] += v
			counts[k]++
		}
	}
	if len(sums) == 0 {
		return nil
	}
	out := make(map[string]float64, len(sums))
	for k, sum := range sums {
		out[k] = sum / float64(counts[k])
	}
	return out
}

func sortedLabels(run *pipeline.Run) []string {
	labels := make([]string, 0, len(run.Statuses))
	for label := range run.Statuses {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
