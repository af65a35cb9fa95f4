// Package mock provides in-memory test doubles for the core interfaces.
//
// The doubles keep real semantics where the pipeline depends on them: the
// repository enforces compare-and-set on status, the vector index ranks by
// cosine similarity and the blob source reports missing objects with
// core.ErrSourceMissing. Function fields let a test inject failures:
//
//	emb := mock.NewMockEmbedder()
//	emb.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, core.Transient(errors.New("rate limited"))
//	}
package mock
