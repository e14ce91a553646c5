package publish

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/literature-agent/internal/model"
	"github.com/sells-group/literature-agent/internal/report"
)

func sampleResult() report.Result {
	return report.Result{
		Record: model.Record{
			CanonicalID: "2406.01234v1",
			Title:       "Fast Gaussian Splatting",
			URL:         "http://arxiv.org/pdf/2406.01234v1.pdf",
		},
		Outputs: model.Outputs{LinkedInPost: "New paper alert!"},
	}
}

func TestBuildPayload(t *testing.T) {
	payload := NewPublisher(true).BuildPayload(sampleResult())

	assert.Equal(t, "PUBLISHED", payload.LifecycleState)
	assert.Equal(t, "New paper alert!", payload.SpecificContent.ShareContent.ShareCommentary.Text)
	assert.Equal(t, "ARTICLE", payload.SpecificContent.ShareContent.ShareMediaCategory)
	require.Len(t, payload.SpecificContent.ShareContent.Media, 1)
	assert.Equal(t, "Fast Gaussian Splatting", payload.SpecificContent.ShareContent.Media[0].Title.Text)
	assert.Equal(t, "http://arxiv.org/pdf/2406.01234v1.pdf", payload.SpecificContent.ShareContent.Media[0].OriginalURL)
	assert.Equal(t, "PUBLIC", payload.Visibility.MemberNetworkVisibility)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"com.linkedin.ugc.ShareContent"`)
	assert.Contains(t, string(raw), `"com.linkedin.ugc.MemberNetworkVisibility"`)
}

func TestPublishDryRun(t *testing.T) {
	results := NewPublisher(true).Publish([]report.Result{sampleResult()})
	require.Len(t, results, 1)
	assert.Equal(t, "dry-run", results[0].Status)
	assert.Equal(t, "2406.01234v1", results[0].CanonicalID)
}

func TestPublishNotImplemented(t *testing.T) {
	results := NewPublisher(false).Publish([]report.Result{sampleResult()})
	require.Len(t, results, 1)
	assert.Equal(t, "not-implemented", results[0].Status)
}

func TestPublishEmpty(t *testing.T) {
	assert.Nil(t, NewPublisher(true).Publish(nil))
}
