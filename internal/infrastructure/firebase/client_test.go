package firebase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMulticaster struct {
	batches [][]string
	err     error
}

func (f *fakeMulticaster) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, msg.Tokens)
	responses := make([]*messaging.SendResponse, len(msg.Tokens))
	for i := range responses {
		responses[i] = &messaging.SendResponse{Success: true}
	}
	return &messaging.BatchResponse{SuccessCount: len(msg.Tokens), Responses: responses}, nil
}

func TestChunkTokens(t *testing.T) {
	tokens := make([]string, 1201)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}

	chunks := chunkTokens(tokens, fcmBatchLimit)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Len(t, chunks[2], 201)
	assert.Nil(t, chunkTokens(nil, fcmBatchLimit))
}

func TestClient_SendMulticast_Batches(t *testing.T) {
	fake := &fakeMulticaster{}
	c := newClient(fake, nil, zerolog.Nop())

	tokens := make([]string, 501)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}

	require.NoError(t, c.SendMulticast(context.Background(), tokens, "title", "body", nil))
	require.Len(t, fake.batches, 2)
	assert.Len(t, fake.batches[1], 1)

	require.NoError(t, c.SendMulticast(context.Background(), nil, "title", "body", nil))
	assert.Len(t, fake.batches, 2)
}

func TestClient_SendMulticast_Error(t *testing.T) {
	boom := errors.New("unavailable")
	c := newClient(&fakeMulticaster{err: boom}, nil, zerolog.Nop())

	err := c.SendMulticast(context.Background(), []string{"a"}, "title", "body", nil)
	assert.ErrorIs(t, err, boom)
}
