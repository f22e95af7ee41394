package repeat

import (
	"context"

	kit "followbot/internal/transport"
)

// Emit delivers one outgoing message to the conversation the trigger came from.
type Emit func(ctx context.Context, text string) error

// FollowReader answers "跟我说<payload>" with the payload, once.
type FollowReader struct {
	extract *Extractor
}

func NewFollowReader() *FollowReader {
	return &FollowReader{extract: NewExtractor(PhraseFollow)}
}

func (f *FollowReader) Handle(ctx context.Context, msg *kit.Message, emit Emit) error {
	payload, ok := f.extract.Extract(msg.Text)
	if !ok {
		return nil
	}
	return emit(ctx, payload)
}
