// ABOUTME: RAGAS-style metrics for faithfulness and context recall
// ABOUTME: Deterministic evaluation of answers and retrieved passages against ground truth

package ragas

import (
	"fmt"
	"strings"
)

// PassThreshold is the minimum score on both metrics for a PASS
const PassThreshold = 0.9

// MetricsCalculator computes RAGAS scores for benchmark tests
type MetricsCalculator struct{}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// CalculateFaithfulness scores whether the answer states what the documents
// say (every expected item) and nothing they contradict (no forbidden item).
// Missing or forbidden items alone halve the score; both zero it.
func (m *MetricsCalculator) CalculateFaithfulness(response string, expected, forbidden []string) (float64, string) {
	_, missing := partition(response, expected)
	found, _ := partition(response, forbidden)

	switch {
	case len(missing) == 0 && len(found) == 0:
		return 1.0, "Answer contains every expected item and no forbidden one"
	case len(missing) > 0 && len(found) > 0:
		return 0.0, fmt.Sprintf("Missing expected items %v and found forbidden items %v", missing, found)
	case len(missing) > 0:
		return 0.5, fmt.Sprintf("Missing expected items %v", missing)
	default:
		return 0.5, fmt.Sprintf("Found forbidden items %v", found)
	}
}

// CalculateContextRecall is the share of expected context items that appear
// in at least one retrieved passage
func (m *MetricsCalculator) CalculateContextRecall(retrieved []string, expected []string) (float64, string) {
	if len(expected) == 0 {
		return 1.0, "No context retrieval required"
	}

	found, missing := partition(strings.Join(retrieved, "\n"), expected)
	recall := float64(len(found)) / float64(len(expected))
	if len(missing) == 0 {
		return recall, "All expected passages retrieved"
	}
	return recall, fmt.Sprintf("Recall %.2f, not retrieved: %v", recall, missing)
}

// EvaluateTest scores one scenario run
func (m *MetricsCalculator) EvaluateTest(scenario TestScenario, finalResponse string, retrievedContext []string) TestResult {
	gt := scenario.GroundTruth
	faithfulness, faithfulnessDetail := m.CalculateFaithfulness(finalResponse, gt.ExpectedInResponse, gt.ForbiddenInResponse)
	recall, recallDetail := m.CalculateContextRecall(retrievedContext, gt.ExpectedContextItems)

	status := StatusFail
	if faithfulness >= PassThreshold && recall >= PassThreshold {
		status = StatusPass
	}

	return TestResult{
		TestID:             scenario.ID,
		TestName:           scenario.Name,
		FaithfulnessScore:  faithfulness,
		ContextRecallScore: recall,
		OverallScore:       (faithfulness + recall) / 2.0,
		Status:             status,
		Details: map[string]interface{}{
			"faithfulness_detail": faithfulnessDetail,
			"recall_detail":       recallDetail,
			"final_response":      truncateRunes(finalResponse, 200),
			"context_items":       len(retrievedContext),
		},
	}
}

// partition splits items by whether text contains them, ignoring case
func partition(text string, items []string) (found, missing []string) {
	upper := strings.ToUpper(text)
	for _, item := range items {
		if strings.Contains(upper, strings.ToUpper(item)) {
			found = append(found, item)
		} else {
			missing = append(missing, item)
		}
	}
	return found, missing
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
