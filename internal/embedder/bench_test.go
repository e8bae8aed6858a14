package embedder

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkComputeHash(b *testing.B) {
	text := "func Handle(ctx context.Context) error { return nil }"
	for b.Loop() {
		_ = ComputeHash(text)
	}
}

func BenchmarkLocalProvider(b *testing.B) {
	ctx := context.Background()

	b.Run("uncached", func(b *testing.B) {
		p := NewLocalProvider(nil)
		i := 0
		for b.Loop() {
			i++
			_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: fmt.Sprintf("class Repo%d: def save(self): pass", i)})
			if err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("cached", func(b *testing.B) {
		p := NewLocalProvider(NewCache(16))
		req := EmbeddingRequest{Text: "class Repo: def save(self): pass"}
		for b.Loop() {
			if _, err := p.GenerateEmbedding(ctx, req); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("batch", func(b *testing.B) {
		p := NewLocalProvider(nil)
		texts := make([]string, 32)
		for i := range texts {
			texts[i] = fmt.Sprintf("line %d of a markdown document", i)
		}
		for b.Loop() {
			if _, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts}); err != nil {
				b.Fatal(err)
			}
		}
	})
}
