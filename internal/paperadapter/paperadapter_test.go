package paperadapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nocturnal-archive/gateway/internal/model"
	"github.com/nocturnal-archive/gateway/internal/paperadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name   string
	papers []model.Paper
	err    error
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]model.Paper, error) {
	return f.papers, f.err
}

type fakeRetryableSource struct {
	fakeSource
	reducedPapers []model.Paper
}

func (f *fakeRetryableSource) SearchReduced(ctx context.Context, query string, limit int) ([]model.Paper, error) {
	return f.reducedPapers, nil
}

func TestSearchPapersMergesAcrossSources(t *testing.T) {
	a := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "openalex", papers: []model.Paper{
			{PaperID: "1", Title: "Attention Is All You Need", Year: 2017, HasScore: true, Relevance: 0.9},
		}},
		&fakeSource{name: "semanticscholar", papers: []model.Paper{
			{PaperID: "2", Title: "BERT", Year: 2018, HasScore: true, Relevance: 0.95},
		}},
	})

	papers, empty, err := a.SearchPapers(context.Background(), "transformers", 10, nil)
	require.NoError(t, err)
	assert.False(t, empty)
	require.Len(t, papers, 2)
	assert.Equal(t, "BERT", papers[0].Title, "higher-relevance paper should rank first")
}

func TestSearchPapersFiltersInvalidRecords(t *testing.T) {
	a := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "openalex", papers: []model.Paper{
			{PaperID: "1", Title: "", Year: 2017},     // no title
			{PaperID: "2", Title: "Valid Paper", Year: 0}, // no year
			{PaperID: "3", Title: "Valid Paper With Year", Year: 2020},
		}},
	})

	papers, _, err := a.SearchPapers(context.Background(), "q", 10, nil)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "Valid Paper With Year", papers[0].Title)
}

func TestSearchPapersDedupesByDOI(t *testing.T) {
	a := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "openalex", papers: []model.Paper{
			{PaperID: "1", Title: "Attention", Year: 2017, DOI: "10.1/xyz"},
		}},
		&fakeSource{name: "semanticscholar", papers: []model.Paper{
			{PaperID: "2", Title: "Attention (duplicate)", Year: 2017, DOI: "10.1/XYZ"},
		}},
	})

	papers, _, err := a.SearchPapers(context.Background(), "q", 10, nil)
	require.NoError(t, err)
	assert.Len(t, papers, 1, "DOIs should be compared case-insensitively")
}

func TestSearchPapersDedupeKeepsSameTitleAndAuthorDifferentYears(t *testing.T) {
	a := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "openalex", papers: []model.Paper{
			{PaperID: "1", Title: "A Survey of Transformers", Year: 2019, Authors: []string{"Jane Doe"}},
		}},
		&fakeSource{name: "semanticscholar", papers: []model.Paper{
			{PaperID: "2", Title: "A Survey of Transformers", Year: 2022, Authors: []string{"Jane Doe"}},
		}},
	})

	papers, _, err := a.SearchPapers(context.Background(), "q", 10, nil)
	require.NoError(t, err)
	assert.Len(t, papers, 2, "same title and first author but different year are distinct papers")
}

func TestSearchPapersOnlyFiltersToNamedSources(t *testing.T) {
	a := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "openalex", papers: []model.Paper{{PaperID: "1", Title: "A", Year: 2020}}},
		&fakeSource{name: "semanticscholar", papers: []model.Paper{{PaperID: "2", Title: "B", Year: 2020}}},
	})

	papers, _, err := a.SearchPapers(context.Background(), "q", 10, []string{"semanticscholar"})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "B", papers[0].Title)
}

func TestSearchPapersSourceFailureIsAbsorbed(t *testing.T) {
	a := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "flaky", err: errors.New("upstream down")},
		&fakeSource{name: "openalex", papers: []model.Paper{{PaperID: "1", Title: "Survivor", Year: 2020}}},
	})

	papers, empty, err := a.SearchPapers(context.Background(), "q", 10, nil)
	require.NoError(t, err)
	assert.False(t, empty)
	require.Len(t, papers, 1)
	assert.Equal(t, "Survivor", papers[0].Title)
}

func TestSearchPapersNoSourcesSelectedReturnsEmpty(t *testing.T) {
	a := paperadapter.New([]paperadapter.Source{
		&fakeSource{name: "openalex", papers: []model.Paper{{PaperID: "1", Title: "A", Year: 2020}}},
	})

	papers, empty, err := a.SearchPapers(context.Background(), "q", 10, []string{"nonexistent"})
	require.NoError(t, err)
	assert.True(t, empty)
	assert.Empty(t, papers)
}

func TestSearchPapersRetriesReducedParamsOnValidationFailure(t *testing.T) {
	src := &fakeRetryableSource{
		fakeSource:    fakeSource{name: "openalex", err: &paperadapter.ValidationError{Err: errors.New("422")}},
		reducedPapers: []model.Paper{{PaperID: "1", Title: "Recovered", Year: 2021}},
	}
	a := paperadapter.New([]paperadapter.Source{src})

	papers, _, err := a.SearchPapers(context.Background(), "q", 10, nil)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "Recovered", papers[0].Title)
}
