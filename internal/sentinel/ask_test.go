package sentinel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/model"
	"sentinel/internal/storage"
)

type stubAnalyst struct {
	digest   string
	question string
	answer   string
	err      error
}

func (a *stubAnalyst) Chat(_ context.Context, digest, question string) (string, error) {
	a.digest, a.question = digest, question
	return a.answer, a.err
}

func TestDigest(t *testing.T) {
	articles := []model.Article{
		{ID: "p", Title: "Pending", Source: "S"},
		model.Article{ID: "1", Title: "Chips", Source: "TechCrunch"}.Enriched(model.AnalysisResult{Summary: "Supply eases."}),
	}
	for i := 0; i < 20; i++ {
		articles = append(articles, analyzedArticle(fmt.Sprint(i+2), fmt.Sprintf("t%d", i), "W", model.CategoryGeneral, 0))
	}

	digest := Digest(articles)
	lines := strings.Split(digest, "\n")

	require.Len(t, lines, digestSize)
	assert.Equal(t, "[TechCrunch] Chips: Supply eases.", lines[0])
	assert.NotContains(t, digest, "Pending")
}

func TestAsk(t *testing.T) {
	h := newHarness(t)
	analyst := &stubAnalyst{answer: "Markets are calm."}
	h.svc.analyst = analyst

	require.NoError(t, h.state.Save(context.Background(), storage.KeyArticles, []model.Article{
		model.Article{ID: "1", Title: "Rates hold", Source: "FT"}.Enriched(model.AnalysisResult{Summary: "No change."}),
	}))

	answer, err := h.svc.Ask(context.Background(), "  what happened?  ")
	require.NoError(t, err)

	assert.Equal(t, "Markets are calm.", answer)
	assert.Equal(t, "what happened?", analyst.question)
	assert.Equal(t, "[FT] Rates hold: No change.", analyst.digest)
}

func TestAskErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Ask(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoAnalyst)

	h.svc.analyst = &stubAnalyst{}
	_, err = h.svc.Ask(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	answer, err := h.svc.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, noAnswer, answer)

	h.svc.analyst = &stubAnalyst{err: errors.New("quota")}
	_, err = h.svc.Ask(context.Background(), "hi")
	assert.ErrorContains(t, err, "ask analyst: quota")
}
