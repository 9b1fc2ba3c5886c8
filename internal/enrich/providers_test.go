package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-classifier/pkg/google"
	googlemocks "github.com/sells-group/contact-classifier/pkg/google/mocks"
	"github.com/sells-group/contact-classifier/pkg/jina"
)

type mockJinaClient struct {
	mock.Mock
}

func (m *mockJinaClient) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

func TestJinaSearch_Snippets(t *testing.T) {
	client := &mockJinaClient{}
	client.On("Search", mock.Anything, "Acme Lyon FR", 1).Return(&jina.SearchResponse{
		Data: []jina.SearchResult{
			{Description: "Acme, grossiste"},
			{Content: "  "},
			{Content: "Acme distributeur"},
		},
	}, nil)

	got, err := NewJinaSearch(client, nil).Search(context.Background(), "Acme Lyon FR", "FR")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme, grossiste", "Acme distributeur"}, got)
	client.AssertExpectations(t)
}

func TestJinaSearch_UnknownCountryNotSent(t *testing.T) {
	client := &mockJinaClient{}
	client.On("Search", mock.Anything, "Acme", 0).Return(&jina.SearchResponse{}, nil)

	got, err := NewJinaSearch(client, nil).Search(context.Background(), "Acme", "")
	require.NoError(t, err)
	assert.Empty(t, got)
	client.AssertExpectations(t)
}

func TestJinaSearch_Error(t *testing.T) {
	client := &mockJinaClient{}
	client.On("Search", mock.Anything, "Acme", 0).Return(nil, errors.New("jina: search unexpected status 401"))

	_, err := NewJinaSearch(client, nil).Search(context.Background(), "Acme", "")
	require.Error(t, err)
}

func TestGooglePlaces_TopPlaceCategories(t *testing.T) {
	client := googlemocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, "Cabinet Martin Lyon FR").Return(&google.TextSearchResponse{
		Places: []google.Place{
			{
				PrimaryType:            "lawyer",
				PrimaryTypeDisplayName: google.LocalizedText{Text: "Avocat"},
				Types:                  []string{"lawyer", "point_of_interest"},
			},
			{PrimaryType: "bakery"},
		},
	}, nil)

	tags, err := NewGooglePlaces(client, nil).Lookup(context.Background(), "Cabinet Martin", "Lyon", "FR")
	require.NoError(t, err)
	assert.Equal(t, []string{"Avocat", "lawyer"}, tags)
}

func TestGooglePlaces_NoPlaces(t *testing.T) {
	client := googlemocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, "Nobody").Return(&google.TextSearchResponse{}, nil)

	tags, err := NewGooglePlaces(client, nil).Lookup(context.Background(), "Nobody", "", "")
	require.NoError(t, err)
	assert.Nil(t, tags)
}
