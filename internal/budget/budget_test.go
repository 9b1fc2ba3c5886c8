package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/contact-classifier/internal/model"
)

func TestGovernor_MaySearch(t *testing.T) {
	g := Governor{MaxSearchCalls: 3}

	job := &model.Job{SearchCallsCount: 2}
	assert.True(t, g.MaySearch(job))
	assert.Equal(t, 1, g.RemainingSearchCalls(job))

	job.SearchCallsCount = 3
	assert.False(t, g.MaySearch(job))
	assert.Equal(t, 0, g.RemainingSearchCalls(job))

	job.SearchCallsCount = 7
	assert.False(t, g.MaySearch(job))
	assert.Equal(t, 0, g.RemainingSearchCalls(job))
}

func TestGovernor_MayClassifyWithAI(t *testing.T) {
	g := Governor{MaxAIRowPercent: 30, MaxAITokens: 1000}

	tests := []struct {
		name string
		job  model.Job
		want bool
	}{
		{"under cap", model.Job{TotalRows: 100, AIRowsClassified: 29}, true},
		{"at row cap", model.Job{TotalRows: 100, AIRowsClassified: 30}, false},
		{"token cap", model.Job{TotalRows: 100, AITokensUsed: 1000}, false},
		{"empty job", model.Job{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.MayClassifyWithAI(&tt.job))
		})
	}
}

func TestGovernor_NoTokenCap(t *testing.T) {
	g := Governor{MaxAIRowPercent: 100}
	assert.True(t, g.MayClassifyWithAI(&model.Job{TotalRows: 1, AITokensUsed: 1 << 40}))
}

func TestGovernor_RemainingAIRows(t *testing.T) {
	g := Governor{MaxAIRowPercent: 25}
	assert.Equal(t, 3, g.RemainingAIRows(&model.Job{TotalRows: 10}))
	assert.Equal(t, 2, g.RemainingAIRows(&model.Job{TotalRows: 10, AIRowsClassified: 1}))
	assert.Equal(t, 1, g.RemainingAIRows(&model.Job{TotalRows: 10, AIRowsClassified: 2}))
	assert.Equal(t, 0, g.RemainingAIRows(&model.Job{TotalRows: 10, AIRowsClassified: 3}))
	assert.Equal(t, 1, Governor{MaxAIRowPercent: 30}.RemainingAIRows(&model.Job{TotalRows: 3}))
}

func TestAIUsagePercent(t *testing.T) {
	assert.Equal(t, 0.0, AIUsagePercent(&model.Job{}))
	assert.InDelta(t, 12.5, AIUsagePercent(&model.Job{TotalRows: 8, AIRowsClassified: 1}), 1e-9)
}
