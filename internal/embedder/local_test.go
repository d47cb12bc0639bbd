package embedder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/brbranch/vecstore/internal/distance"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	emb, err := NewLocalEmbedder(64)
	if err != nil {
		t.Fatalf("NewLocalEmbedder failed: %v", err)
	}
	ctx := context.Background()

	a, err := emb.Embed(ctx, "Memory leak after upgrade")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, _ := emb.Embed(ctx, "memory leak after upgrade")
	if len(a) != 64 {
		t.Fatalf("expected dim 64, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding should be case-insensitive and deterministic at %d", i)
		}
	}

	var norm float64
	for _, v := range a {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-9 {
		t.Errorf("expected unit norm, got %v", math.Sqrt(norm))
	}
}

func TestLocalEmbedder_Similarity(t *testing.T) {
	emb, _ := NewLocalEmbedder(256)
	ctx := context.Background()

	base, _ := emb.Embed(ctx, "login button does not respond")
	near, _ := emb.Embed(ctx, "login button not responding")
	far, _ := emb.Embed(ctx, "quarterly revenue spreadsheet export")

	if distance.Cosine(base, near) >= distance.Cosine(base, far) {
		t.Errorf("overlapping text should be closer: near=%v far=%v",
			distance.Cosine(base, near), distance.Cosine(base, far))
	}
}

func TestLocalEmbedder_Errors(t *testing.T) {
	if _, err := NewLocalEmbedder(0); !errors.Is(err, ErrInvalidDim) {
		t.Errorf("expected ErrInvalidDim, got %v", err)
	}

	emb, _ := NewLocalEmbedder(8)
	if _, err := emb.Embed(context.Background(), " \t"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	vec, err := emb.Embed(context.Background(), "!!!")
	if err != nil || len(vec) != 8 {
		t.Errorf("punctuation-only text should still embed, got %v %v", vec, err)
	}
}
