package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens locally for bookkeeping when the provider
// response carries no usage metadata. cl100k_base is an approximation for
// non-OpenAI models; estimates feed metrics and stored per-message counts,
// not admission control, so best-effort is fine.
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewEstimator() *Estimator { return &Estimator{} }

func (e *Estimator) encoding() (*tiktoken.Tiktoken, error) {
	e.once.Do(func() {
		e.enc, e.err = tiktoken.GetEncoding("cl100k_base")
	})
	return e.enc, e.err
}

// Count returns the token estimate for text, or a rough chars/4 fallback
// when the encoding cannot be loaded (offline BPE fetch failure).
func (e *Estimator) Count(text string) int {
	enc, err := e.encoding()
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
