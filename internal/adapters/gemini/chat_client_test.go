package gemini

import (
	"sync"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestModelDoesNotMutateSharedModel(t *testing.T) {
	c := &ChatClient{
		model:     &genai.GenerativeModel{},
		modelName: "gemini-pro",
		logger:    zap.NewNop(),
	}

	m := c.requestModel("you are a classifier")
	require.NotNil(t, m.SystemInstruction)
	assert.Equal(t, genai.Text("you are a classifier"), m.SystemInstruction.Parts[0])

	assert.Nil(t, c.model.SystemInstruction, "shared model must stay untouched")
	assert.NotSame(t, c.model, m)
}

func TestRequestModelConcurrentCalls(t *testing.T) {
	c := &ChatClient{
		model:     &genai.GenerativeModel{},
		modelName: "gemini-pro",
		logger:    zap.NewNop(),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := c.requestModel("prompt")
			assert.NotNil(t, m.SystemInstruction)
		}()
	}
	wg.Wait()

	assert.Nil(t, c.model.SystemInstruction)
}
