package exam

import (
	"fmt"
	"time"
)

// ScaleTable converts a raw correct-answer count (0-100) to the reported
// TOEIC score for one skill. Both tables are monotonically non-decreasing,
// start at 5 and end at 495.
type ScaleTable [101]int

// listeningTable maps parts 1-4 raw correct counts to the listening score.
var listeningTable = ScaleTable{
	5, 5, 5, 5, 5, 5, 5, 10, 15, 20,
	25, 30, 35, 40, 45, 50, 55, 60, 65, 70,
	75, 80, 85, 90, 95, 100, 110, 115, 120, 125,
	130, 135, 140, 145, 150, 160, 165, 170, 175, 180,
	185, 190, 195, 200, 210, 215, 220, 230, 240, 245,
	250, 255, 260, 270, 275, 280, 290, 295, 300, 310,
	315, 320, 325, 330, 340, 345, 350, 360, 365, 370,
	380, 385, 390, 395, 400, 405, 410, 420, 425, 430,
	440, 445, 450, 455, 460, 465, 470, 475, 480, 485,
	490, 495, 495, 495, 495, 495, 495, 495, 495, 495,
	495,
}

// readingTable maps parts 5-7 raw correct counts to the reading score.
var readingTable = ScaleTable{
	5, 5, 5, 5, 5, 5, 5, 10, 15, 20,
	25, 30, 35, 40, 45, 50, 55, 60, 65, 70,
	75, 80, 85, 90, 95, 100, 105, 110, 115, 120,
	125, 130, 135, 140, 145, 150, 155, 160, 165, 170,
	175, 180, 185, 190, 195, 200, 205, 210, 215, 220,
	225, 230, 235, 240, 245, 250, 255, 260, 265, 270,
	275, 280, 285, 290, 300, 305, 310, 320, 325, 330,
	335, 340, 350, 355, 360, 365, 370, 380, 385, 390,
	395, 400, 405, 410, 415, 420, 425, 430, 435, 445,
	450, 455, 465, 470, 480, 485, 490, 495, 495, 495,
	495,
}

// ListeningTable returns the listening conversion table.
func ListeningTable() ScaleTable { return listeningTable }

// ReadingTable returns the reading conversion table.
func ReadingTable() ScaleTable { return readingTable }

// ScaledScore looks up the scaled score for a raw correct count. Counts are
// clamped into [0,100]; the second return value carries a warning string
// when clamping happened so callers can log it. Malformed input never fails
// the result screen.
func ScaledScore(correct int, table ScaleTable) (int, string) {
	warn := ""
	if correct < 0 {
		warn = fmt.Sprintf("correct count %d below range, clamped to 0", correct)
		correct = 0
	} else if correct > 100 {
		warn = fmt.Sprintf("correct count %d above range, clamped to 100", correct)
		correct = 100
	}
	return table[correct], warn
}

// Summarize converts per-skill correct counts into a full result summary.
// Scaled scores for partial part selections are computed the same way; the
// Parts field lets consumers distinguish practice runs from a standard
// full-length attempt.
func Summarize(examID string, parts []int, listeningCorrect, readingCorrect int, details []DetailedAnswer) (ResultSummary, []string) {
	var warnings []string
	ls, w := ScaledScore(listeningCorrect, listeningTable)
	if w != "" {
		warnings = append(warnings, "listening: "+w)
	}
	rs, w := ScaledScore(readingCorrect, readingTable)
	if w != "" {
		warnings = append(warnings, "reading: "+w)
	}
	return ResultSummary{
		ExamID:           examID,
		Parts:            parts,
		ListeningCorrect: clampCount(listeningCorrect),
		ReadingCorrect:   clampCount(readingCorrect),
		ListeningScore:   ls,
		ReadingScore:     rs,
		TotalScore:       ls + rs,
		DetailedAnswers:  details,
		SubmittedAt:      time.Now().UTC(),
	}, warnings
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
