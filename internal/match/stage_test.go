package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/okellar/invoiceflow/internal/entity"
	"github.com/okellar/invoiceflow/internal/refdata"
)

func testDataset() *refdata.Dataset {
	return refdata.NewDataset([]refdata.Vendor{
		{Name: "Acme Corporation", PONumbers: []string{"PO-1001", "PO-1002"}},
		{Name: "Globex Industries", PONumbers: []string{"PO-2001"}},
		{Name: "Initech LLC", PONumbers: nil},
	})
}

func TestStage_ExactPOWins(t *testing.T) {
	stage := NewStage(testDataset(), 0.85, nil)

	res := stage.Run(context.Background(), "completely wrong vendor", "po-2001")
	assert.Equal(t, entity.MatchMatched, res.Status)
	assert.Equal(t, "po-2001", res.PONumber)
	assert.Equal(t, 1.0, res.MatchConfidence)
}

func TestStage_FuzzyVendorMatch(t *testing.T) {
	stage := NewStage(testDataset(), 0.85, nil)

	res := stage.Run(context.Background(), "Acme Corporatio", "")
	assert.Equal(t, entity.MatchMatched, res.Status)
	assert.Equal(t, "PO-1001", res.PONumber)
	assert.GreaterOrEqual(t, res.MatchConfidence, 0.85)
	assert.Less(t, res.MatchConfidence, 1.0)
}

func TestStage_BelowThresholdIsUnmatched(t *testing.T) {
	stage := NewStage(testDataset(), 0.85, nil)

	res := stage.Run(context.Background(), "Wayne Enterprises", "")
	assert.Equal(t, entity.MatchUnmatched, res.Status)
	assert.Empty(t, res.PONumber)
}

func TestStage_EmptyVendorIsUnmatched(t *testing.T) {
	stage := NewStage(testDataset(), 0.85, nil)

	res := stage.Run(context.Background(), "", "")
	assert.Equal(t, entity.MatchUnmatched, res.Status)
}

func TestStage_UnknownPOFallsBackToVendor(t *testing.T) {
	stage := NewStage(testDataset(), 0.85, nil)

	res := stage.Run(context.Background(), "Globex Industries", "PO-9999")
	assert.Equal(t, entity.MatchMatched, res.Status)
	assert.Equal(t, "PO-2001", res.PONumber)
}
