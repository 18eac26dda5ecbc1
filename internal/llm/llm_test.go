package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatModel struct {
	reply *schema.Message
	err   error
	got   []*schema.Message
}

func (m *stubChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.got = in
	return m.reply, m.err
}

func (m *stubChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestChatGenerator_SendsSystemAndUser(t *testing.T) {
	stub := &stubChatModel{reply: schema.AssistantMessage("  hello  ", nil)}
	g := NewChatGenerator(RoleCoder, stub)

	out, err := g.Generate(context.Background(), "sys", "usr")

	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	require.Len(t, stub.got, 2)
	assert.Equal(t, schema.System, stub.got[0].Role)
	assert.Equal(t, "sys", stub.got[0].Content)
	assert.Equal(t, schema.User, stub.got[1].Role)
	assert.Equal(t, "usr", stub.got[1].Content)
}

func TestChatGenerator_WrapsErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	g := NewChatGenerator(RoleDocs, &stubChatModel{err: boom})

	_, err := g.Generate(context.Background(), "s", "u")

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, RoleDocs, genErr.Role)
	assert.ErrorIs(t, err, boom)
}

func TestChatGenerator_EmptyResponse(t *testing.T) {
	g := NewChatGenerator(RoleGeneral, &stubChatModel{reply: schema.AssistantMessage("   ", nil)})
	_, err := g.Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestValidateProvider(t *testing.T) {
	for _, p := range []string{"openai", "ollama", "anthropic", "gemini", "groq"} {
		got, err := ValidateProvider(p)
		assert.NoError(t, err, p)
		assert.Equal(t, Provider(p), got)
	}
	_, err := ValidateProvider("bedrock")
	assert.Error(t, err)
}

func TestNewChatModel_RequiresKeyAndModel(t *testing.T) {
	ctx := context.Background()
	_, err := NewChatModel(ctx, Config{Provider: ProviderOpenAI, Model: "gpt-4o"})
	assert.ErrorContains(t, err, "API key is required")

	_, err = NewChatModel(ctx, Config{Provider: ProviderGroq, APIKey: "k"})
	assert.ErrorContains(t, err, "model name is required")

	_, err = NewChatModel(ctx, Config{Provider: "nope", Model: "m", APIKey: "k"})
	assert.ErrorContains(t, err, "unsupported")
}

func TestNewModels_SharesModelsByName(t *testing.T) {
	models, err := NewModels(context.Background(),
		Config{Provider: ProviderOllama},
		RoleModels{General: "llama3", Coder: "qwen2.5-coder"})
	require.NoError(t, err)
	require.NoError(t, models.Validate())

	general := models.General.(*ChatGenerator)
	docs := models.Docs.(*ChatGenerator)
	coder := models.Coder.(*ChatGenerator)
	assert.Same(t, general.model, docs.model)
	assert.NotSame(t, general.model, coder.model)
}

func TestModelsValidate(t *testing.T) {
	g := NewScripted("x")
	assert.NoError(t, Same(g).Validate())
	assert.Error(t, Models{General: g, Docs: g}.Validate())
}

func TestScripted(t *testing.T) {
	s := NewScripted("default").
		On("reviewer", Text("revise"), Text("approve")).
		On("broken", Reply{Err: errors.New("down")})
	ctx := context.Background()

	out, _ := s.Generate(ctx, "you are a reviewer", "u")
	assert.Equal(t, "revise", out)
	out, _ = s.Generate(ctx, "you are a reviewer", "u")
	assert.Equal(t, "approve", out)
	out, _ = s.Generate(ctx, "you are a reviewer", "u")
	assert.Equal(t, "approve", out, "last reply repeats")

	out, _ = s.Generate(ctx, "other", "u")
	assert.Equal(t, "default", out)

	_, err := s.Generate(ctx, "broken thing", "u")
	var genErr *GenerationError
	assert.ErrorAs(t, err, &genErr)

	assert.Equal(t, 3, s.CallsMatching("reviewer"))
	assert.Len(t, s.Calls(), 5)
}

func TestScripted_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScripted("x").Generate(ctx, "s", "u")
	assert.ErrorIs(t, err, context.Canceled)
}
