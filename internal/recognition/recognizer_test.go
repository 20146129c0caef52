package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

type countingRecognizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingRecognizer) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return `{"mealName": "` + string(image) + `", "detectedItems": []}`, nil
}

func TestCachingRecognizerReusesPayload(t *testing.T) {
	next := &countingRecognizer{}
	rec, err := NewCachingRecognizer(next, 8)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := rec.Recognize(ctx, []byte("plate-1"), "image/png")
	require.NoError(t, err)
	second, err := rec.Recognize(ctx, []byte("plate-1"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)

	_, err = rec.Recognize(ctx, []byte("plate-1"), "image/jpeg")
	require.NoError(t, err)
	_, err = rec.Recognize(ctx, []byte("plate-2"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls, "mime type and content are both part of the key")
	assert.Equal(t, 3, rec.Len())
}

func TestCachingRecognizerDefaultMIMETypeSharesKey(t *testing.T) {
	next := &countingRecognizer{}
	rec, err := NewCachingRecognizer(next, 8)
	require.NoError(t, err)

	_, err = rec.Recognize(context.Background(), []byte("plate"), "")
	require.NoError(t, err)
	_, err = rec.Recognize(context.Background(), []byte("plate"), DefaultMIMEType)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestCachingRecognizerDoesNotCacheErrors(t *testing.T) {
	next := &countingRecognizer{err: errors.New("quota exceeded")}
	rec, err := NewCachingRecognizer(next, 8)
	require.NoError(t, err)

	_, err = rec.Recognize(context.Background(), []byte("plate"), "image/png")
	require.Error(t, err)
	_, err = rec.Recognize(context.Background(), []byte("plate"), "image/png")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Zero(t, rec.Len())
}

func TestCachingRecognizerInvalidSize(t *testing.T) {
	_, err := NewCachingRecognizer(&countingRecognizer{}, 0)
	assert.Error(t, err)
}

func TestStaticRecognizer(t *testing.T) {
	rec := StaticRecognizer{Payload: `{"mealName": "x"}`}
	got, err := rec.Recognize(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, `{"mealName": "x"}`, got)
}

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestGeminiRecognizerSendsImageAndPrompt(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"mealName": "Toast", `, `"detectedItems": []}`)}
	rec := newGeminiRecognizer(gen, GeminiConfig{FoodNames: []string{"Bread", "Butter"}})

	payload, err := rec.Recognize(context.Background(), []byte{0xff, 0xd8}, "")
	require.NoError(t, err)

	assert.Equal(t, `{"mealName": "Toast", "detectedItems": []}`, payload)
	assert.Equal(t, DefaultGeminiModel, gen.model)
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)

	require.Len(t, gen.contents, 1)
	parts := gen.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "[Bread, Butter]")
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, DefaultMIMEType, parts[1].InlineData.MIMEType)
	assert.Equal(t, []byte{0xff, 0xd8}, parts[1].InlineData.Data)
}

func TestGeminiRecognizerErrors(t *testing.T) {
	t.Run("empty image", func(t *testing.T) {
		rec := newGeminiRecognizer(&fakeGenerator{}, GeminiConfig{})
		_, err := rec.Recognize(context.Background(), nil, "image/png")
		assert.ErrorIs(t, err, ErrEmptyImage)
	})

	t.Run("service error", func(t *testing.T) {
		cause := errors.New("503 unavailable")
		rec := newGeminiRecognizer(&fakeGenerator{err: cause}, GeminiConfig{Model: "gemini-2.5-flash"})
		_, err := rec.Recognize(context.Background(), []byte("img"), "image/png")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "gemini-2.5-flash")
	})

	t.Run("no candidates", func(t *testing.T) {
		rec := newGeminiRecognizer(&fakeGenerator{resp: &genai.GenerateContentResponse{}}, GeminiConfig{})
		_, err := rec.Recognize(context.Background(), []byte("img"), "image/png")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestBuildPrompt(t *testing.T) {
	assert.Contains(t, BuildPrompt([]string{"Rice", "Tofu"}), "[Rice, Tofu]")
	assert.Contains(t, BuildPrompt(nil), "any common food name")
	assert.Contains(t, BuildPrompt(nil), `"portionKg"`)
}
