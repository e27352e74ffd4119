package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/okellar/invoiceflow/internal/entity"
)

func validResult() entity.ValidationResult {
	return entity.ValidationResult{Status: entity.ValidationValid}
}

func invalidResult() entity.ValidationResult {
	return entity.ValidationResult{
		Status: entity.ValidationInvalid,
		Errors: map[string]string{"total_amount": "missing"},
	}
}

func TestGate_Decide(t *testing.T) {
	gate := NewGate(0.90, nil)

	cases := []struct {
		name string
		in   Input
		want Decision
	}{
		{"high confidence valid", Input{Validation: validResult(), Confidence: 0.95}, AutoAccept},
		{"exactly at threshold", Input{Validation: validResult(), Confidence: 0.90}, AutoAccept},
		{"just below threshold", Input{Validation: validResult(), Confidence: 0.89}, NeedsReview},
		{"invalid despite confidence", Input{Validation: invalidResult(), Confidence: 0.99}, NeedsReview},
		{"duplicate blocks auto-accept", Input{Validation: validResult(), Confidence: 0.99, Duplicate: true}, NeedsReview},
		{"recovered blocks auto-accept", Input{Validation: validResult(), Confidence: 0.99, Recovered: true}, NeedsReview},
		{"unrecoverable fails", Input{Validation: invalidResult(), Unrecoverable: true}, Failed},
		{"unrecoverable overrides everything", Input{Validation: validResult(), Confidence: 0.99, Unrecoverable: true}, Failed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gate.Decide(tc.in))
		})
	}
}

func TestDecision_Status(t *testing.T) {
	assert.Equal(t, entity.StatusValid, AutoAccept.Status())
	assert.Equal(t, entity.StatusNeedsReview, NeedsReview.Status())
	assert.Equal(t, entity.StatusFailed, Failed.Status())
}
